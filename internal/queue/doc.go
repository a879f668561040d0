// Package queue persists sheets and batch summaries in SQLite. The store is
// written to at enqueue time and at terminal transitions; mid-pipeline state
// lives only in memory, so a crash reprocesses the sheet from the start
// rather than resuming a half-written record.
package queue
