// Package alignment turns the character-level timing returned by the speech
// synthesizer into word timestamps and locates each clip's narration within
// them.
//
// Words performs a single pass over the characters, splitting on whitespace.
// The final word absorbs the last character even when the stream does not end
// in whitespace. FindSpan slides a window the length of the clip's word count
// across the word sequence and returns the leftmost exact match; a clip whose
// wording recurs is always attributed to the first occurrence.
package alignment
