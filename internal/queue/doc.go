// Package queue persists render jobs in SQLite and exposes helpers for
// driving their lifecycle.
//
// POST /process only accepts a job; the workflow manager renders it later.
// The Store records every accepted job so a worker restart resumes work
// instead of dropping it. It manages the connection, schema initialization,
// stats queries, heartbeat tracking, stuck-job recovery and the status
// transitions pending → rendering → rendered → publishing → completed, with
// failed reachable from any stage.
//
// The database is transient storage for in-flight jobs rather than a
// long-term archive; the object store holds the durable artifacts. Schema
// changes bump schemaVersion; operators clear the database to adopt them.
package queue
