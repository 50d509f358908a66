// Package daemon coordinates the long-running render worker process.
//
// It wires configuration, queue storage, and the workflow manager into a
// single lifecycle with flock-based locking to prevent multiple instances.
// The daemon serves the HTTP trigger API: POST /process enqueues a render
// job and answers immediately, GET /health reports liveness, GET /metrics
// exposes Prometheus counters, and the bearer-protected /api routes expose
// queue state for the CLI.
//
// Keep orchestration logic here: individual workflow steps should live in their
// respective packages while the daemon focuses on startup, shutdown, and high
// level coordination.
package daemon
