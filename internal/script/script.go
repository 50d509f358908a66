package script

import (
	"regexp"
	"strings"
)

// Script is the parsed and cleaned LLM output.
type Script struct {
	Title       string   `json:"title" jsonschema_description:"A gripping curiosity-driven title"`
	Description string   `json:"description" jsonschema_description:"A punchy share-worthy description"`
	Hashtags    []string `json:"hashtags" jsonschema_description:"Ten lowercase viral hashtags without the # symbol"`
	ClipTexts   []string `json:"clip_texts" jsonschema_description:"One narration string per clip with the exact word count requested"`
}

var disallowed = regexp.MustCompile(`[^\p{L}\p{N}_\s.,?!:']`)

// CleanText removes every character other than letters, digits, underscore,
// whitespace and . , ? ! : ' and then trims surrounding single quotes.
// Internal whitespace is preserved so cleaning is idempotent.
func CleanText(text string) string {
	return strings.Trim(disallowed.ReplaceAllString(text, ""), "'")
}

// Clean returns a copy with every field cleaned. Clip positions are preserved
// even when a clip cleans down to nothing.
func (s Script) Clean() Script {
	out := Script{
		Title:       strings.TrimSpace(CleanText(s.Title)),
		Description: strings.TrimSpace(CleanText(s.Description)),
		Hashtags:    make([]string, 0, len(s.Hashtags)),
		ClipTexts:   make([]string, len(s.ClipTexts)),
	}
	for _, tag := range s.Hashtags {
		tag = strings.ToLower(strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(tag), "#")))
		tag = strings.Join(strings.Fields(CleanText(tag)), "")
		if tag != "" {
			out.Hashtags = append(out.Hashtags, tag)
		}
	}
	for i, text := range s.ClipTexts {
		out.ClipTexts[i] = CleanText(text)
	}
	return out
}

// FullText joins the clip texts with single spaces. This is the text sent to
// speech synthesis.
func (s Script) FullText() string {
	return strings.Join(s.ClipTexts, " ")
}

// ClipCount returns the number of clips.
func (s Script) ClipCount() int {
	return len(s.ClipTexts)
}
