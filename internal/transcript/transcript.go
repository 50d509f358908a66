package transcript

import (
	"strings"

	"storyreel/internal/alignment"
	"storyreel/internal/script"
)

// ClipAlignment is one clip of narration with its resolved timing and image
// prompts. Start and End are nil when the clip text could not be located in
// the word stream.
type ClipAlignment struct {
	Index          int                       `json:"index"`
	Text           string                    `json:"text"`
	StartTime      *float64                  `json:"start_time"`
	EndTime        *float64                  `json:"end_time"`
	WordTimestamps []alignment.WordTimestamp `json:"word_timestamps"`
	Duration       float64                   `json:"duration"`
	ImagePrompt    string                    `json:"image_prompt"`
	NegativePrompt string                    `json:"image_negative_prompt"`
}

// Resolved reports whether the clip has both boundaries.
func (c ClipAlignment) Resolved() bool {
	return c.StartTime != nil && c.EndTime != nil
}

// Start returns the start time or zero.
func (c ClipAlignment) Start() float64 {
	if c.StartTime == nil {
		return 0
	}
	return *c.StartTime
}

// Bundle is the transcript artifact stored under transcripts/{id}.json.
type Bundle struct {
	Script         string                    `json:"script"`
	Duration       float64                   `json:"duration"`
	WordCount      int                       `json:"word_count"`
	WordTimestamps []alignment.WordTimestamp `json:"word_timestamps"`
	Clips          []ClipAlignment           `json:"image_clips_data"`
	ClipCount      int                       `json:"clip_count"`
	FullAlignment  alignment.CharacterTiming `json:"full_alignment"`
}

// AlignClip locates text in words and builds the clip record. An unresolved
// clip serializes null boundaries and words with zero duration.
func AlignClip(idx int, text string, words []alignment.WordTimestamp, prompt script.ClipPrompt) ClipAlignment {
	clip := ClipAlignment{
		Index:          idx,
		Text:           text,
		ImagePrompt:    prompt.ImagePrompt,
		NegativePrompt: prompt.NegativePrompt,
	}
	span, ok := alignment.FindSpan(words, text)
	if !ok {
		return clip
	}
	start, end := span.Start, span.End
	clip.StartTime = &start
	clip.EndTime = &end
	clip.WordTimestamps = span.Words
	clip.Duration = end - start
	return clip
}

// NewBundle assembles the transcript for the synthesized text.
func NewBundle(text string, timing alignment.CharacterTiming, words []alignment.WordTimestamp, clips []ClipAlignment) Bundle {
	if words == nil {
		words = []alignment.WordTimestamp{}
	}
	if clips == nil {
		clips = []ClipAlignment{}
	}
	return Bundle{
		Script:         text,
		Duration:       timing.Duration(),
		WordCount:      len(strings.Fields(text)),
		WordTimestamps: words,
		Clips:          clips,
		ClipCount:      len(clips),
		FullAlignment:  timing,
	}
}

// Resolved counts clips with both boundaries.
func (b Bundle) Resolved() int {
	n := 0
	for _, clip := range b.Clips {
		if clip.Resolved() {
			n++
		}
	}
	return n
}
