// Package workflow advances render jobs through the worker's stages.
//
// The Manager polls the queue, reclaims stale work via heartbeats, and feeds
// jobs into the registered stage handlers (render, then publish) while
// capturing progress and failure metadata. Failures are handed to a failure
// hook so the error artifact is written next to the job's other objects.
//
// The manager tracks queue activity. When the queue drains after at least one
// job started, the idle hook runs once; the daemon uses it to release the GPU
// pod whether the jobs succeeded or failed.
//
// Add new lifecycle stages by extending StageSet, updating the queue status
// enums, and teaching the manager how to transition jobs; this package is the
// authoritative home for that coordination logic.
package workflow
