// Package publishing is the final stage of the worker pipeline. It rewrites
// metadata/{id}.json as completed with the video key, which is the signal
// consumers watch for, and sends the render-completed notification.
package publishing
