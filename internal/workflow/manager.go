package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"platen/internal/batch"
	"platen/internal/config"
	"platen/internal/logging"
	"platen/internal/notifications"
	"platen/internal/pipeline"
	"platen/internal/queue"
	"platen/internal/services"
	"platen/internal/tasks"
)

// Manager coordinates the poll-claim-process loop.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	notifier     notifications.Service
	logger       *slog.Logger
	tasksMgr     *tasks.Manager
	orchestrator *batch.Orchestrator
	pollInterval time.Duration

	mu        sync.RWMutex
	running   bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	lastErr   error
	lastBatch *batch.BatchResult
}

// New wires a manager from its collaborators. The processor set decides what
// actually runs per stage; the daemon passes sheetproc's stand-ins, tests
// pass stubs.
func New(cfg *config.Config, store *queue.Store, notifier notifications.Service, processors pipeline.ProcessorSet, logger *slog.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "workflow", "config is required", nil)
	}
	if store == nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "workflow", "queue store is required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	workflowLogger := logging.NewComponentLogger(logger, "workflow")
	engine, err := pipeline.NewEngine(processors, pipeline.GateConfigFromProcessing(cfg.Processing), logger)
	if err != nil {
		return nil, err
	}

	tasksMgr := tasks.New(tasks.Config{MaxConcurrent: cfg.Processing.MaxConcurrent}, logger)

	// One sheet crosses every processing stage, so its task deadline is the
	// per-stage timeout times the stage count.
	var sheetTimeout time.Duration
	if cfg.Processing.StageTimeout > 0 {
		sheetTimeout = time.Duration(cfg.Processing.StageTimeout) * time.Second *
			time.Duration(len(pipeline.ProcessingStages()))
	}

	manager := &Manager{
		cfg:          cfg,
		store:        store,
		notifier:     notifier,
		logger:       workflowLogger,
		tasksMgr:     tasksMgr,
		pollInterval: time.Duration(cfg.Workflow.QueuePollInterval) * time.Second,
	}

	orchestrator, err := batch.NewOrchestrator(tasksMgr, engine, batch.Config{
		SheetTimeout: sheetTimeout,
		Saver:        store,
		Observer:     manager.progressObserver(),
	}, logger)
	if err != nil {
		return nil, err
	}
	manager.orchestrator = orchestrator
	return manager, nil
}

// Start begins background processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	if err := m.tasksMgr.Start(runCtx); err != nil {
		cancel()
		m.mu.Unlock()
		return err
	}
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx)
	m.logger.Info("workflow started",
		logging.Int("batch_size", m.cfg.Workflow.BatchSize),
		logging.Int("max_concurrent", m.cfg.Processing.MaxConcurrent))
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
	m.tasksMgr.Stop()
	m.logger.Info("workflow stopped")
}

// progressObserver logs per-sheet progress as it happens; notifications wait
// until the batch result is final.
func (m *Manager) progressObserver() batch.Observer {
	return batch.ObserverFunc(func(event batch.Event) {
		m.logger.Debug("sheet finished",
			logging.String(logging.FieldBatchID, event.BatchID),
			logging.String(logging.FieldSheetID, event.SheetID),
			logging.String("terminal_stage", string(event.Terminal)),
			logging.Int("done", event.Completed),
			logging.Int("total", event.Total))
	})
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

func (m *Manager) setLastBatch(result *batch.BatchResult) {
	m.mu.Lock()
	m.lastBatch = result
	m.mu.Unlock()
}
