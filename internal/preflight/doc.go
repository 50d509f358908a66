// Package preflight provides readiness checks for the external services,
// binaries and filesystem paths storyreel depends on.
//
// These checks run in two contexts:
//   - The worker daemon calls RunWorker before it starts draining the queue.
//     A failed check stops startup instead of failing every job later.
//   - The CLI "storyreel health" command runs RunAll and prints every result.
package preflight
