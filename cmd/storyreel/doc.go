// Package main hosts the storyreel operator CLI.
//
// The Cobra command tree runs story generation (once or on a cron schedule),
// inspects and repairs the render worker's job queue, runs the worker in the
// foreground, and scaffolds configuration. Queue commands open the SQLite
// queue directly so they work whether or not the worker is running; status
// asks the running worker over its HTTP API.
package main
