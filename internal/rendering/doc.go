// Package rendering is the render stage of the worker pipeline.
//
// The Handler turns a pending queue job into a composed video by calling
// render.Renderer, then records the video key, duration, clip and
// placeholder counts on the job so the publish stage can finish it. Jobs
// leave this stage in the rendered status.
package rendering
