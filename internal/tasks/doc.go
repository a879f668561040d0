// Package tasks provides a bounded-concurrency task manager with priority
// ordering, timeouts, and retry-on-failure. It knows nothing about pipeline
// stages: callers submit opaque units of work and await their results. The
// manager is an explicitly constructed instance, never a process-wide
// singleton, so tests can run isolated managers side by side.
package tasks
