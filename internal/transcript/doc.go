// Package transcript defines the artifacts exchanged between the orchestrator
// and the render worker through object storage: the transcript bundle with its
// per-clip alignment, the video metadata record, error artifacts, and the
// storage key layout that ties them to a video id.
package transcript
