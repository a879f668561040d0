// Package services provides shared error classification and context
// annotation helpers used across the pipeline, task manager, and workflow
// layers.
package services
