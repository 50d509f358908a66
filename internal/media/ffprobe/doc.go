// Package ffprobe inspects rendered videos and downloaded audio with ffprobe.
//
// Inspect runs ffprobe and decodes its JSON report. Result.Check compares the
// report with what a finished story video must contain: one video stream at
// the canvas size, one audio stream and a duration close to the narration.
package ffprobe
