// Package render builds the finished story video on the GPU worker.
//
// PlanTimeline places each clip at its narration start, Captions renders the
// per-word ASS track, and FFmpeg composes zooming stills, placeholders,
// captions and narration into an H.264 MP4. Renderer drives the whole job
// against object storage; Complete and RecordFailure write the metadata that
// marks the video finished or failed.
package render
