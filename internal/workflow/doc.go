// Package workflow drives continuous processing: it claims uploaded sheets
// from the queue store, runs them through the batch orchestrator, and emits
// notifications for the outcomes. The manager owns the task manager and
// pipeline engine it orchestrates with; callers supply the store, the
// notifier, and the processor set.
package workflow
