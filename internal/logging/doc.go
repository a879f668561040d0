// Package logging builds the slog loggers used throughout platen and keeps
// structured field names consistent between the daemon, the workflow, and the
// CLI. Console output uses a compact single-line handler; JSON output is
// available for log aggregation.
package logging
