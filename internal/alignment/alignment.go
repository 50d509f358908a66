package alignment

import (
	"fmt"
	"strings"
	"unicode"
)

// CharacterTiming is the per-character alignment returned by speech synthesis.
// The three slices are parallel.
type CharacterTiming struct {
	Characters []string  `json:"characters"`
	StartTimes []float64 `json:"character_start_times_seconds"`
	EndTimes   []float64 `json:"character_end_times_seconds"`
}

// WordTimestamp is one spoken word with its start and end in seconds.
type WordTimestamp struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Span is the located position of a clip's text in the word stream.
type Span struct {
	Start float64
	End   float64
	Words []WordTimestamp
}

// Validate reports whether the three timing slices have equal length.
func (c CharacterTiming) Validate() error {
	if len(c.Characters) != len(c.StartTimes) || len(c.Characters) != len(c.EndTimes) {
		return fmt.Errorf("character timing length mismatch: characters=%d starts=%d ends=%d",
			len(c.Characters), len(c.StartTimes), len(c.EndTimes))
	}
	return nil
}

// Len returns the number of characters in the stream.
func (c CharacterTiming) Len() int {
	return len(c.Characters)
}

// Duration returns the end time of the final character, or zero for an empty stream.
func (c CharacterTiming) Duration() float64 {
	if len(c.EndTimes) == 0 {
		return 0
	}
	return c.EndTimes[len(c.EndTimes)-1]
}

// Text concatenates the characters back into the synthesized text.
func (c CharacterTiming) Text() string {
	return strings.Join(c.Characters, "")
}

// Words reconstructs word timestamps from the character stream. The timing
// must be valid; a mismatched stream is truncated to its shortest slice.
func Words(timing CharacterTiming) []WordTimestamp {
	n := min(len(timing.Characters), len(timing.StartTimes), len(timing.EndTimes))
	words := make([]WordTimestamp, 0, n/4+1)
	var (
		current strings.Builder
		start   float64
		pending bool
	)
	last := n - 1
	for i := 0; i < n; i++ {
		char := timing.Characters[i]
		space := isSpace(char)
		if !space {
			if !pending {
				start = timing.StartTimes[i]
				pending = true
			}
			current.WriteString(char)
		}
		if !space && i != last {
			continue
		}
		if word := strings.TrimSpace(current.String()); word != "" {
			words = append(words, WordTimestamp{Word: word, Start: start, End: timing.EndTimes[i]})
		}
		current.Reset()
		pending = false
	}
	return words
}

// FindSpan returns the first contiguous run of words equal to the
// whitespace-separated words of text. The comparison is exact.
func FindSpan(words []WordTimestamp, text string) (Span, bool) {
	target := strings.Fields(text)
	n := len(target)
	if n == 0 || n > len(words) {
		return Span{}, false
	}
	for offset := 0; offset+n <= len(words); offset++ {
		if windowMatches(words[offset:offset+n], target) {
			window := words[offset : offset+n]
			return Span{
				Start: window[0].Start,
				End:   window[n-1].End,
				Words: append([]WordTimestamp(nil), window...),
			}, true
		}
	}
	return Span{}, false
}

// JoinWords joins the word texts with single spaces.
func JoinWords(words []WordTimestamp) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.Word
	}
	return strings.Join(parts, " ")
}

func windowMatches(window []WordTimestamp, target []string) bool {
	for i, word := range target {
		if window[i].Word != word {
			return false
		}
	}
	return true
}

func isSpace(char string) bool {
	if char == "" {
		return false
	}
	for _, r := range char {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
