// Package script produces the narrated story behind each video.
//
// A Plan fixes the story length (32 to 60 seconds in 4 second steps), the
// clip count, and the words per clip. Generator asks the LLM for a script
// matching the plan, cleans every clip text before synthesis so the spoken
// words match the clip texts exactly, and later derives one image prompt
// pair per clip. Image prompts never fail: any LLM or parse failure falls
// back to the clip's own narration.
package script
