package script

import "math/rand/v2"

const (
	minStorySeconds = 32
	maxStorySeconds = 60
	secondsPerClip  = 4
	wordsPerClip    = 10
)

// Plan fixes the shape of a story before it is written.
type Plan struct {
	DurationSeconds int
	ClipCount       int
	WordsPerClip    int
}

// TotalWords is the exact word budget for the whole script.
func (p Plan) TotalWords() int {
	return p.ClipCount * p.WordsPerClip
}

// NewPlan picks a random story length. A nil source uses the global generator.
func NewPlan(r *rand.Rand) Plan {
	steps := (maxStorySeconds-minStorySeconds)/secondsPerClip + 1
	var pick int
	if r != nil {
		pick = r.IntN(steps)
	} else {
		pick = rand.IntN(steps)
	}
	return PlanFor(minStorySeconds + pick*secondsPerClip)
}

// PlanFor builds the plan for a fixed story length.
func PlanFor(durationSeconds int) Plan {
	if durationSeconds < secondsPerClip {
		durationSeconds = secondsPerClip
	}
	return Plan{
		DurationSeconds: durationSeconds,
		ClipCount:       durationSeconds / secondsPerClip,
		WordsPerClip:    wordsPerClip,
	}
}

// NarrativePosition labels a clip's place in the story arc.
func NarrativePosition(idx, total int) string {
	switch {
	case idx < 3:
		return "Opening hook"
	case float64(idx) < float64(total)*0.7:
		return "Rising action"
	default:
		return "Climax/Resolution"
	}
}
