package tasks

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"platen/internal/logging"
	"platen/internal/services"
)

// Config sizes the manager. Zero values are normalized by New.
type Config struct {
	// MaxConcurrent bounds tasks executing at once.
	MaxConcurrent int
	// QueueCapacity bounds pending tasks; zero means unbounded.
	QueueCapacity int
	// PoolWorkers sizes the fixed pool backend; defaults to MaxConcurrent.
	PoolWorkers int
	// CompletedRetention caps how many finished task records are kept for
	// Status and Await lookups before the oldest are evicted.
	CompletedRetention int
}

const defaultCompletedRetention = 1024

// Manager schedules submitted work under a concurrency bound. A single
// dispatch loop admits tasks in priority order; each admitted task holds one
// semaphore permit across all of its retry attempts, so retries never
// multiply effective concurrency.
type Manager struct {
	cfg    Config
	logger *slog.Logger
	pool   *workerPool

	mu       sync.Mutex
	queue    taskHeap
	tasks    map[string]*task
	finished []string
	seq      uint64
	running  bool
	stopAll  context.CancelFunc

	notify  chan struct{}
	permits chan struct{}

	loopWG sync.WaitGroup
	runWG  sync.WaitGroup

	submitted uint64
	completed uint64
	failed    uint64
	canceled  uint64
	current   int
	peak      int
	totalRun  time.Duration
	runCount  uint64
}

// New constructs a stopped manager. Call Start before Submit.
func New(cfg Config, logger *slog.Logger) *Manager {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.PoolWorkers < 1 {
		cfg.PoolWorkers = cfg.MaxConcurrent
	}
	if cfg.CompletedRetention < 1 {
		cfg.CompletedRetention = defaultCompletedRetention
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:    cfg,
		logger: logger.With(logging.String(logging.FieldComponent, "tasks")),
		tasks:  make(map[string]*task),
		notify: make(chan struct{}, 1),
	}
}

// Start launches the dispatch loop. The supplied context is the lifetime
// ceiling for every task the manager runs.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return services.Wrap(services.ErrValidation, "", "start", "task manager already running", nil)
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.stopAll = cancel
	m.permits = make(chan struct{}, m.cfg.MaxConcurrent)
	m.pool = newWorkerPool(m.cfg.PoolWorkers, m.cfg.MaxConcurrent)
	m.running = true
	m.loopWG.Add(1)
	go m.dispatch(runCtx)
	m.logger.Info("task manager started",
		logging.Int("max_concurrent", m.cfg.MaxConcurrent),
		logging.Int("pool_workers", m.cfg.PoolWorkers))
	return nil
}

// Stop cancels in-flight attempts, waits for them to unwind, and marks all
// still-pending tasks canceled. Idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.stopAll
	m.mu.Unlock()

	cancel()
	m.loopWG.Wait()
	m.runWG.Wait()
	m.pool.stop()

	m.mu.Lock()
	for m.queue.Len() > 0 {
		t := heap.Pop(&m.queue).(*task)
		if t.state == StatePending {
			m.finalizeLocked(t, StateCanceled, nil,
				services.Wrap(services.ErrTaskExecution, "", "stop", "task manager stopped before task ran", nil))
		}
	}
	m.mu.Unlock()
	m.logger.Info("task manager stopped")
}

// Submit queues work and returns its task ID. The work function must treat
// context cancellation as a stop request and should be safe to re-run: a
// failed attempt is retried up to MaxRetries times with the same input.
func (m *Manager) Submit(work Work, opts SubmitOptions) (string, error) {
	if work == nil {
		return "", services.Wrap(services.ErrValidation, "", "submit", "work must not be nil", nil)
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = DefaultMaxRetries
	}
	if opts.Backend == "" {
		opts.Backend = BackendGoroutine
	}
	if opts.Backend != BackendGoroutine && opts.Backend != BackendPool {
		return "", services.Wrap(services.ErrValidation, "", "submit", fmt.Sprintf("unknown backend %q", opts.Backend), nil)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return "", services.Wrap(services.ErrValidation, "", "submit", "task manager is not running", nil)
	}
	if m.cfg.QueueCapacity > 0 && m.pendingLocked() >= m.cfg.QueueCapacity {
		return "", services.Wrap(services.ErrTaskExecution, "", "submit", "task queue is full", nil)
	}

	m.seq++
	t := &task{
		id:         uuid.NewString(),
		seq:        m.seq,
		priority:   opts.Priority,
		createdAt:  time.Now(),
		maxRetries: opts.MaxRetries,
		timeout:    opts.Timeout,
		backend:    opts.Backend,
		work:       work,
		state:      StatePending,
		done:       make(chan struct{}),
	}
	if len(opts.Metadata) > 0 {
		t.metadata = make(map[string]string, len(opts.Metadata))
		for k, v := range opts.Metadata {
			t.metadata[k] = v
		}
	}
	m.tasks[t.id] = t
	heap.Push(&m.queue, t)
	m.submitted++
	select {
	case m.notify <- struct{}{}:
	default:
	}
	m.logger.Debug("task submitted",
		logging.String(logging.FieldTaskID, t.id),
		logging.String("priority", t.priority.String()),
		logging.String("backend", string(t.backend)))
	return t.id, nil
}

// Await blocks until the task reaches a terminal state, then returns its
// result. The context bounds the wait only; it does not cancel the task.
func (m *Manager) Await(ctx context.Context, id string) (any, error) {
	m.mu.Lock()
	t, ok := m.tasks[id]
	m.mu.Unlock()
	if !ok {
		return nil, services.Wrap(services.ErrValidation, "", "await", fmt.Sprintf("unknown task %s", id), nil)
	}

	select {
	case <-t.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	switch t.state {
	case StateCompleted:
		return t.result, nil
	case StateCanceled:
		if t.err != nil {
			return nil, t.err
		}
		return nil, services.Wrap(services.ErrTaskExecution, "", "await", fmt.Sprintf("task %s was canceled", id), nil)
	default:
		return nil, t.err
	}
}

// Status reports a snapshot of one task.
func (m *Manager) Status(id string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return Status{}, false
	}
	return t.snapshot(), true
}

// Cancel requests cancellation. A pending task is canceled immediately; a
// running task has its attempt context canceled and unwinds cooperatively.
// Returns false when the task is unknown or already terminal.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return false
	}
	switch t.state {
	case StatePending:
		t.cancelPending = true
		m.finalizeLocked(t, StateCanceled, nil,
			services.Wrap(services.ErrTaskExecution, "", "cancel", fmt.Sprintf("task %s canceled before start", id), nil))
		return true
	case StateRunning:
		t.cancelPending = true
		if t.cancelAttempt != nil {
			t.cancelAttempt()
		}
		return true
	default:
		return false
	}
}

// Statistics reports aggregate counters for the manager's lifetime.
func (m *Manager) Statistics() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := Statistics{
		Submitted:          m.submitted,
		Completed:          m.completed,
		Failed:             m.failed,
		Canceled:           m.canceled,
		CurrentConcurrency: m.current,
		PeakConcurrency:    m.peak,
		QueueDepth:         m.pendingLocked(),
	}
	if m.runCount > 0 {
		stats.AvgDuration = m.totalRun / time.Duration(m.runCount)
	}
	return stats
}

func (m *Manager) pendingLocked() int {
	// The heap can hold records already canceled via Cancel; those are
	// skipped at admission and must not count as depth.
	depth := 0
	for _, t := range m.queue {
		if t.state == StatePending {
			depth++
		}
	}
	return depth
}

// dispatch is the single admission loop: acquire a permit, then hand it to
// the highest-priority pending task.
func (m *Manager) dispatch(ctx context.Context) {
	defer m.loopWG.Done()
	for {
		select {
		case m.permits <- struct{}{}:
		case <-ctx.Done():
			return
		}
		t := m.nextPending(ctx)
		if t == nil {
			<-m.permits
			return
		}
		m.runWG.Add(1)
		go m.execute(ctx, t)
	}
}

// nextPending blocks until a pending task is available, marks it running,
// and returns it. Returns nil when the manager is shutting down.
func (m *Manager) nextPending(ctx context.Context) *task {
	for {
		m.mu.Lock()
		for m.queue.Len() > 0 {
			t := heap.Pop(&m.queue).(*task)
			if t.state != StatePending {
				continue
			}
			t.state = StateRunning
			m.mu.Unlock()
			return t
		}
		m.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil
		case <-m.notify:
		}
	}
}

// execute runs every attempt of one task while holding a single permit.
func (m *Manager) execute(ctx context.Context, t *task) {
	defer m.runWG.Done()
	defer func() { <-m.permits }()

	m.mu.Lock()
	started := time.Now()
	t.startedAt = &started
	m.current++
	if m.current > m.peak {
		m.peak = m.current
	}
	m.mu.Unlock()

	logger := m.logger.With(logging.String(logging.FieldTaskID, t.id))
	logger.Debug("task started", logging.String("priority", t.priority.String()))

	var result any
	var err error
	for attempt := 0; ; attempt++ {
		result, err = m.attempt(ctx, t)
		if err == nil {
			break
		}
		if ctx.Err() != nil || m.cancelRequested(t) {
			break
		}
		if attempt >= t.maxRetries {
			break
		}
		m.mu.Lock()
		t.retries++
		m.mu.Unlock()
		logger.Warn("task attempt failed, retrying",
			logging.Int("attempt", attempt+1),
			logging.Int("max_retries", t.maxRetries),
			logging.Error(err))
	}

	m.mu.Lock()
	m.current--
	switch {
	case err == nil:
		m.finalizeLocked(t, StateCompleted, result, nil)
	case t.cancelPending || ctx.Err() != nil || errors.Is(err, context.Canceled):
		m.finalizeLocked(t, StateCanceled, nil, err)
	default:
		m.finalizeLocked(t, StateFailed, nil, err)
	}
	state := t.state
	m.mu.Unlock()

	switch state {
	case StateCompleted:
		logger.Debug("task completed", logging.Duration("duration", time.Since(started)))
	case StateCanceled:
		logger.Info("task canceled")
	default:
		logger.Error("task failed",
			logging.Int("retries", t.retries),
			logging.Error(err))
	}
}

// attempt runs the work once under the per-attempt deadline, with panic
// recovery, on the requested backend.
func (m *Manager) attempt(ctx context.Context, t *task) (result any, err error) {
	var attemptCtx context.Context
	var cancel context.CancelFunc
	if t.timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, t.timeout)
	} else {
		attemptCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	m.mu.Lock()
	t.cancelAttempt = cancel
	alreadyCanceled := t.cancelPending
	m.mu.Unlock()
	if alreadyCanceled {
		return nil, context.Canceled
	}

	run := func() {
		defer recoverToError(&err)
		result, err = t.work(attemptCtx)
	}
	if t.backend == BackendPool {
		m.pool.runWait(run)
	} else {
		run()
	}

	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return nil, services.Wrap(services.ErrTimeout, "", "execute",
			fmt.Sprintf("task %s timed out after %s", t.id, t.timeout), err)
	}
	if err != nil {
		result = nil
	}
	return result, err
}

func (m *Manager) cancelRequested(t *task) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return t.cancelPending
}

// finalizeLocked transitions a task to a terminal state exactly once and
// evicts the oldest finished records beyond the retention cap.
func (m *Manager) finalizeLocked(t *task, state State, result any, err error) {
	switch t.state {
	case StateCompleted, StateFailed, StateCanceled:
		return
	}
	t.state = state
	t.result = result
	t.err = err
	now := time.Now()
	t.completedAt = &now
	if t.startedAt != nil {
		m.totalRun += now.Sub(*t.startedAt)
		m.runCount++
	}
	switch state {
	case StateCompleted:
		m.completed++
	case StateFailed:
		m.failed++
	case StateCanceled:
		m.canceled++
	}
	close(t.done)
	m.finished = append(m.finished, t.id)
	for len(m.finished) > m.cfg.CompletedRetention {
		evicted := m.finished[0]
		m.finished = m.finished[1:]
		delete(m.tasks, evicted)
	}
}
