package alignment_test

import (
	"strings"
	"testing"

	"storyreel/internal/alignment"
)

// timingFor spaces every character 0.1s apart.
func timingFor(text string) alignment.CharacterTiming {
	var timing alignment.CharacterTiming
	for i, r := range []rune(text) {
		timing.Characters = append(timing.Characters, string(r))
		timing.StartTimes = append(timing.StartTimes, float64(i)*0.1)
		timing.EndTimes = append(timing.EndTimes, float64(i+1)*0.1)
	}
	return timing
}

func TestWordsWithoutWhitespaceYieldsSingleWord(t *testing.T) {
	timing := timingFor("storyteller")
	words := alignment.Words(timing)
	if len(words) != 1 {
		t.Fatalf("expected one word, got %d", len(words))
	}
	if words[0].Word != "storyteller" {
		t.Fatalf("unexpected word %q", words[0].Word)
	}
	if words[0].Start != timing.StartTimes[0] || words[0].End != timing.EndTimes[len(timing.EndTimes)-1] {
		t.Fatalf("expected full span, got %+v", words[0])
	}
}

func TestWordsTwoWordFixture(t *testing.T) {
	timing := alignment.CharacterTiming{
		Characters: []string{"a", " ", "b"},
		StartTimes: []float64{0.0, 0.1, 0.3},
		EndTimes:   []float64{0.1, 0.2, 0.4},
	}
	words := alignment.Words(timing)
	want := []alignment.WordTimestamp{
		{Word: "a", Start: 0.0, End: 0.1},
		{Word: "b", Start: 0.3, End: 0.4},
	}
	if len(words) != len(want) {
		t.Fatalf("expected %d words, got %+v", len(want), words)
	}
	for i := range want {
		if words[i] != want[i] {
			t.Fatalf("word %d: expected %+v, got %+v", i, want[i], words[i])
		}
	}
}

func TestWordsEdgeCases(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"empty", "", nil},
		{"only spaces", "   ", nil},
		{"trailing space", "once upon ", []string{"once", "upon"}},
		{"consecutive spaces", "a   time  there", []string{"a", "time", "there"}},
		{"leading space", " lived", []string{"lived"}},
		{"single character", "x", []string{"x"}},
		{"newline separated", "wolf\ncried", []string{"wolf", "cried"}},
		{"punctuation kept", "Hello, world!", []string{"Hello,", "world!"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			words := alignment.Words(timingFor(tc.text))
			if len(words) != len(tc.want) {
				t.Fatalf("expected %v, got %+v", tc.want, words)
			}
			for i, w := range tc.want {
				if words[i].Word != w {
					t.Fatalf("word %d: expected %q, got %q", i, w, words[i].Word)
				}
			}
		})
	}
}

func TestWordsTrailingSpaceEndsAtLastLetter(t *testing.T) {
	words := alignment.Words(timingFor("ab "))
	if len(words) != 1 {
		t.Fatalf("expected one word, got %+v", words)
	}
	// Finalized by the space at index 2, so the end is the space's end time.
	if got := words[0].End; got < 0.29 || got > 0.31 {
		t.Fatalf("expected end 0.3, got %v", got)
	}
}

func TestJoinWordsCollapsesWhitespace(t *testing.T) {
	text := "The  old fisherman\tsaw   a light  "
	words := alignment.Words(timingFor(text))
	if got, want := alignment.JoinWords(words), strings.Join(strings.Fields(text), " "); got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestWordsTruncatesMismatchedStreams(t *testing.T) {
	timing := alignment.CharacterTiming{
		Characters: []string{"a", "b", "c"},
		StartTimes: []float64{0, 0.1},
		EndTimes:   []float64{0.1, 0.2, 0.3},
	}
	if err := timing.Validate(); err == nil {
		t.Fatal("expected validation error")
	}
	words := alignment.Words(timing)
	if len(words) != 1 || words[0].Word != "ab" {
		t.Fatalf("expected truncated word, got %+v", words)
	}
}

func TestCharacterTimingHelpers(t *testing.T) {
	timing := timingFor("hi there")
	if err := timing.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if timing.Text() != "hi there" {
		t.Fatalf("unexpected text %q", timing.Text())
	}
	if d := timing.Duration(); d < 0.79 || d > 0.81 {
		t.Fatalf("unexpected duration %v", d)
	}
	if (alignment.CharacterTiming{}).Duration() != 0 {
		t.Fatal("expected zero duration for empty timing")
	}
}

func sequence() []alignment.WordTimestamp {
	words := make([]alignment.WordTimestamp, 10)
	for i := range words {
		words[i] = alignment.WordTimestamp{
			Word:  "w" + string(rune('0'+i)),
			Start: float64(i),
			End:   float64(i) + 0.5,
		}
	}
	return words
}

func TestFindSpanMiddle(t *testing.T) {
	words := sequence()
	span, ok := alignment.FindSpan(words, "w3 w4 w5")
	if !ok {
		t.Fatal("expected match")
	}
	if span.Start != words[3].Start || span.End != words[5].End {
		t.Fatalf("unexpected span %+v", span)
	}
	if len(span.Words) != 3 || span.Words[0] != words[3] || span.Words[2] != words[5] {
		t.Fatalf("unexpected matched words %+v", span.Words)
	}
}

func TestFindSpanNotFound(t *testing.T) {
	words := sequence()
	for _, text := range []string{"w3 w5", "w9 w0", "missing", "", "   ", strings.Repeat("w1 ", 11)} {
		span, ok := alignment.FindSpan(words, text)
		if ok {
			t.Fatalf("expected no match for %q", text)
		}
		if span.Start != 0 || span.End != 0 || span.Words != nil {
			t.Fatalf("expected zero span for %q, got %+v", text, span)
		}
	}
}

func TestFindSpanLeftmostOccurrence(t *testing.T) {
	words := alignment.Words(timingFor("the wolf came the wolf came again"))
	span, ok := alignment.FindSpan(words, "the wolf came")
	if !ok {
		t.Fatal("expected match")
	}
	if span.Start != words[0].Start || span.End != words[2].End {
		t.Fatalf("expected first occurrence, got %+v", span)
	}
	again, _ := alignment.FindSpan(words, "the wolf came")
	if again.Start != span.Start || again.End != span.End {
		t.Fatal("expected deterministic result")
	}
}

func TestFindSpanIsCaseAndPunctuationSensitive(t *testing.T) {
	words := alignment.Words(timingFor("Run, little fox."))
	if _, ok := alignment.FindSpan(words, "run little fox"); ok {
		t.Fatal("expected no match when punctuation and case differ")
	}
	if _, ok := alignment.FindSpan(words, "Run, little fox."); !ok {
		t.Fatal("expected exact match")
	}
}

func TestFindSpanCopiesWords(t *testing.T) {
	words := sequence()
	span, _ := alignment.FindSpan(words, "w0 w1")
	span.Words[0].Word = "changed"
	if words[0].Word != "w0" {
		t.Fatal("expected span words to be a copy")
	}
}
