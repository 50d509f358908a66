// Package notifications delivers render and generation events via ntfy.
//
// NewService publishes to the topic configured in config.toml and degrades to
// a no-op when no topic is set. Per-event toggles in the notifications section
// suppress queued, completed, or error messages individually. Callers depend
// only on the Service interface.
package notifications
