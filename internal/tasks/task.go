package tasks

import (
	"context"
	"strings"
	"time"
)

// Priority orders pending tasks. Higher values run first; ties are broken by
// submission order (FIFO within a tier).
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityUrgent
)

// ParsePriority converts a string into a known Priority.
func ParsePriority(value string) (Priority, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "low":
		return PriorityLow, true
	case "normal", "":
		return PriorityNormal, true
	case "high":
		return PriorityHigh, true
	case "urgent":
		return PriorityUrgent, true
	default:
		return PriorityNormal, false
	}
}

// String implements fmt.Stringer.
func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityHigh:
		return "high"
	case PriorityUrgent:
		return "urgent"
	default:
		return "normal"
	}
}

// Backend selects which executor runs the work. Both report completion
// through the same path, so the manager's contract is uniform.
type Backend string

const (
	// BackendGoroutine runs the work on its own goroutine (default).
	BackendGoroutine Backend = "goroutine"
	// BackendPool routes the work to a fixed worker pool, intended for
	// CPU-bound stages that should not oversubscribe the scheduler.
	BackendPool Backend = "pool"
)

// Work is a unit of schedulable work. It must be idempotent-safe for retry;
// that constraint is documented, not enforced.
type Work func(ctx context.Context) (any, error)

// DefaultMaxRetries applies when SubmitOptions leaves MaxRetries negative.
const DefaultMaxRetries = 3

// SubmitOptions controls scheduling of one task.
type SubmitOptions struct {
	Priority Priority
	// Timeout bounds each attempt; zero disables.
	Timeout time.Duration
	// MaxRetries is the number of re-attempts after the first failure. A
	// negative value selects DefaultMaxRetries.
	MaxRetries int
	Metadata   map[string]string
	Backend    Backend
}

// DefaultSubmitOptions returns the documented defaults.
func DefaultSubmitOptions() SubmitOptions {
	return SubmitOptions{Priority: PriorityNormal, MaxRetries: DefaultMaxRetries, Backend: BackendGoroutine}
}

// State is the lifecycle of a task.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// Status is an external snapshot of one task.
type Status struct {
	ID          string
	State       State
	Priority    Priority
	CreatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	Retries     int
	MaxRetries  int
	Err         string
	Metadata    map[string]string
}

// Statistics aggregates manager activity.
type Statistics struct {
	Submitted          uint64
	Completed          uint64
	Failed             uint64
	Canceled           uint64
	CurrentConcurrency int
	PeakConcurrency    int
	QueueDepth         int
	AvgDuration        time.Duration
}

// task is the internal record mutated only under the manager's lock or by the
// single goroutine executing it.
type task struct {
	id          string
	seq         uint64
	priority    Priority
	createdAt   time.Time
	startedAt   *time.Time
	completedAt *time.Time
	retries     int
	maxRetries  int
	timeout     time.Duration
	metadata    map[string]string
	backend     Backend
	work        Work

	state         State
	result        any
	err           error
	done          chan struct{}
	cancelPending bool
	cancelAttempt context.CancelFunc
}

func (t *task) snapshot() Status {
	status := Status{
		ID:         t.id,
		State:      t.state,
		Priority:   t.priority,
		CreatedAt:  t.createdAt,
		Retries:    t.retries,
		MaxRetries: t.maxRetries,
	}
	if t.startedAt != nil {
		started := *t.startedAt
		status.StartedAt = &started
	}
	if t.completedAt != nil {
		completed := *t.completedAt
		status.CompletedAt = &completed
	}
	if t.err != nil {
		status.Err = t.err.Error()
	}
	if len(t.metadata) > 0 {
		status.Metadata = make(map[string]string, len(t.metadata))
		for k, v := range t.metadata {
			status.Metadata[k] = v
		}
	}
	return status
}
