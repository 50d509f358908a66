// Package orchestrator is the front half of storyreel. One Run writes a story,
// voices it, prepares per-clip image prompts aligned to the narration,
// stores every artifact under the video id and hands the video to the GPU
// render worker.
//
// Run never returns an error. A failure anywhere becomes a Result with
// StatusCode 500, an "Error occurred: ..." message and the failure kind, so
// the scheduler and the CLI can report it without special casing panics.
package orchestrator
