// Package batch runs groups of sheets through the pipeline engine under the
// task manager's concurrency bound and aggregates the outcome. One failed
// sheet never fails its batch: task-level errors become that sheet's terminal
// error state and the remaining sheets proceed.
package batch
