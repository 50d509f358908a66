// Package services defines shared utilities consumed by the pipeline stages
// and the external API clients beneath it.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, video IDs, stage names, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so failures can be
//     classified (transient vs permanent) and named in error artifacts.
//
// Use these helpers when wiring new clients so operational behaviour (error
// handling, observability, retries) stays uniform across the pipeline.
package services
