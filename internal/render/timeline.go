package render

import (
	"storyreel/internal/alignment"
	"storyreel/internal/transcript"
)

// Segment is one clip placed on the video timeline.
type Segment struct {
	Index    int
	Text     string
	Prompt   string
	Negative string
	Start    float64
	// Duration is the spoken length of the clip.
	Duration float64
	// Tail extends an image clip past its narration. Only the last clip
	// carries one.
	Tail     float64
	Resolved bool
	Words    []alignment.WordTimestamp
}

// ImageSpan is how long a generated image stays on screen.
func (s Segment) ImageSpan() float64 {
	return s.Duration + s.Tail
}

// PlaceholderSpan is how long a placeholder stays on screen. Placeholders
// never carry the tail.
func (s Segment) PlaceholderSpan() float64 {
	return s.Duration
}

// Timeline is the render plan for one video.
type Timeline struct {
	Segments []Segment
	// Duration is the length of the finished video, equal to the narration.
	Duration float64
}

// PlanTimeline places every clip at its narration start. Clips whose text was
// never located keep a zero start and duration; they are still planned so
// their images exist. An unresolved last clip shows for the tail pad only,
// over the start of the video.
func PlanTimeline(bundle transcript.Bundle, tailPad float64) Timeline {
	timeline := Timeline{
		Segments: make([]Segment, 0, len(bundle.Clips)),
		Duration: bundle.Duration,
	}
	for i, clip := range bundle.Clips {
		duration := clip.Duration
		if duration < 0 {
			duration = 0
		}
		seg := Segment{
			Index:    clip.Index,
			Text:     clip.Text,
			Prompt:   clip.ImagePrompt,
			Negative: clip.NegativePrompt,
			Start:    clip.Start(),
			Duration: duration,
			Resolved: clip.Resolved(),
			Words:    clip.WordTimestamps,
		}
		if i == len(bundle.Clips)-1 {
			seg.Tail = tailPad
		}
		timeline.Segments = append(timeline.Segments, seg)
	}
	return timeline
}
