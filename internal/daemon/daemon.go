package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gofrs/flock"

	"platen/internal/config"
	"platen/internal/logging"
	"platen/internal/notifications"
	"platen/internal/pipeline"
	"platen/internal/queue"
	"platen/internal/workflow"
)

// scanExtensions are the source formats the inbox scanner and manual add
// accept.
var scanExtensions = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".tif":  {},
	".tiff": {},
	".pdf":  {},
}

// Daemon coordinates the background services and enforces single-instance
// execution.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *queue.Store
	workflow *workflow.Manager
	notifier notifications.Service
	logPath  string

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Status represents daemon runtime information.
type Status struct {
	Running      bool
	Workflow     workflow.StatusSummary
	QueueDBPath  string
	LockFilePath string
	InboxDir     string
}

// New constructs a daemon with initialized dependencies.
func New(cfg *config.Config, store *queue.Store, logger *slog.Logger, wf *workflow.Manager, notifier notifications.Service) (*Daemon, error) {
	if cfg == nil || store == nil || wf == nil {
		return nil, errors.New("daemon requires config, store, and workflow manager")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if notifier == nil {
		notifier = notifications.NewService(cfg)
	}

	lockPath := filepath.Join(cfg.Paths.LogDir, "platend.lock")
	return &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		store:    store,
		workflow: wf,
		notifier: notifier,
		logPath:  filepath.Join(cfg.Paths.LogDir, "platen.log"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// Start acquires the daemon lock, then launches the workflow manager and the
// inbox scanner.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !ok {
		return errors.New("another platen daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.workflow.Start(runCtx); err != nil {
		_ = d.lock.Unlock()
		cancel()
		return fmt.Errorf("start workflow: %w", err)
	}
	d.cancel = cancel

	d.wg.Add(1)
	go d.scanInbox(runCtx)

	d.running.Store(true)
	d.logger.Info("platen daemon started",
		logging.String("lock", d.lockPath),
		logging.String("inbox", d.cfg.Paths.InboxDir))
	return nil
}

// Stop stops background processing and releases the daemon lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}

	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.wg.Wait()
	d.workflow.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("platen daemon stopped")
}

// Close releases resources held by the daemon.
func (d *Daemon) Close() error {
	d.Stop()
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}

// ValidateScanFile resolves a candidate source file and checks that it is a
// regular file with a supported extension, returning its absolute path.
func ValidateScanFile(sourcePath string) (string, error) {
	trimmed := strings.TrimSpace(sourcePath)
	if trimmed == "" {
		return "", errors.New("source path is required")
	}
	absPath, err := filepath.Abs(trimmed)
	if err != nil {
		return "", fmt.Errorf("resolve source path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("stat source file: %w", err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("source path %q is a directory", absPath)
	}
	ext := strings.ToLower(filepath.Ext(info.Name()))
	if _, ok := scanExtensions[ext]; !ok {
		return "", fmt.Errorf("unsupported file extension %q", ext)
	}
	return absPath, nil
}

// AddFile enqueues a scanned sheet for processing.
func (d *Daemon) AddFile(ctx context.Context, sourcePath, priority string) (*pipeline.Sheet, error) {
	absPath, err := ValidateScanFile(sourcePath)
	if err != nil {
		return nil, err
	}

	existing, err := d.store.FindBySourcePath(ctx, absPath)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("file already queued as sheet %s", existing.ID)
	}

	sheet, err := d.store.NewSheet(ctx, absPath, priority)
	if err != nil {
		return nil, fmt.Errorf("enqueue sheet: %w", err)
	}
	if err := d.notifier.NotifySheetQueued(ctx, absPath); err != nil {
		d.logger.Debug("queue notification failed", logging.Error(err))
	}
	d.logger.Info("sheet queued",
		logging.String(logging.FieldSheetID, sheet.ID),
		logging.String("source", absPath))
	return sheet, nil
}

// ListQueue returns sheets filtered by optional stages.
func (d *Daemon) ListQueue(ctx context.Context, stages []pipeline.Stage) ([]*pipeline.Sheet, error) {
	return d.store.List(ctx, stages...)
}

// ClearQueue removes all sheets.
func (d *Daemon) ClearQueue(ctx context.Context) (int64, error) {
	return d.store.Clear(ctx)
}

// ClearTerminal removes completed, review, and errored sheets.
func (d *Daemon) ClearTerminal(ctx context.Context) (int64, error) {
	return d.store.ClearTerminal(ctx)
}

// RetrySheets resets errored and review sheets (optionally a subset) back to
// uploaded.
func (d *Daemon) RetrySheets(ctx context.Context, ids []string) (int64, error) {
	return d.store.RetrySheets(ctx, ids...)
}

// ListBatches returns recent batch summaries.
func (d *Daemon) ListBatches(ctx context.Context, limit int) ([]queue.BatchRecord, error) {
	return d.store.ListBatches(ctx, limit)
}

// QueueHealth returns aggregate queue diagnostics.
func (d *Daemon) QueueHealth(ctx context.Context) (queue.HealthSummary, error) {
	return d.store.Health(ctx)
}

// DatabaseHealth returns detailed database diagnostics.
func (d *Daemon) DatabaseHealth(ctx context.Context) (queue.DatabaseHealth, error) {
	return d.store.CheckHealth(ctx)
}

// TestNotification triggers a test notification using the current
// configuration.
func (d *Daemon) TestNotification(ctx context.Context) (bool, string, error) {
	if strings.TrimSpace(d.cfg.Notifications.NtfyTopic) == "" {
		return false, "ntfy topic not configured", nil
	}
	if err := d.notifier.TestNotification(ctx); err != nil {
		return false, "failed to send notification", err
	}
	return true, "test notification sent", nil
}

// LockHeld reports whether another process currently holds the daemon lock
// for the given configuration.
func LockHeld(cfg *config.Config) (bool, error) {
	lock := flock.New(filepath.Join(cfg.Paths.LogDir, "platend.lock"))
	ok, err := lock.TryLock()
	if err != nil {
		return false, err
	}
	if ok {
		_ = lock.Unlock()
		return false, nil
	}
	return true, nil
}

// LogPath returns the path to the daemon log file.
func (d *Daemon) LogPath() string {
	return d.logPath
}

// Status returns the current daemon status.
func (d *Daemon) Status(ctx context.Context) Status {
	return Status{
		Running:      d.running.Load(),
		Workflow:     d.workflow.Status(ctx),
		QueueDBPath:  filepath.Join(d.cfg.Paths.LogDir, "platen.db"),
		LockFilePath: d.lockPath,
		InboxDir:     d.cfg.Paths.InboxDir,
	}
}
