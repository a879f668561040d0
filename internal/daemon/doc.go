// Package daemon hosts the long-running process: single-instance locking,
// the inbox scanner that feeds the queue, the workflow manager that drains
// it, and the queue passthroughs the CLI talks to.
package daemon
