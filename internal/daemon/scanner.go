package daemon

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"platen/internal/logging"
)

// scanInbox periodically sweeps the inbox directory and enqueues supported
// files that are not already tracked.
func (d *Daemon) scanInbox(ctx context.Context) {
	defer d.wg.Done()

	interval := time.Duration(d.cfg.Workflow.InboxScanInterval) * time.Second
	if interval <= 0 {
		interval = time.Second
	}

	d.scanOnce(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.scanOnce(ctx)
		}
	}
}

func (d *Daemon) scanOnce(ctx context.Context) {
	entries, err := os.ReadDir(d.cfg.Paths.InboxDir)
	if err != nil {
		d.logger.Warn("inbox scan failed",
			logging.String("inbox", d.cfg.Paths.InboxDir),
			logging.Error(err))
		return
	}

	for _, entry := range entries {
		if ctx.Err() != nil {
			return
		}
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := scanExtensions[ext]; !ok {
			continue
		}

		absPath := filepath.Join(d.cfg.Paths.InboxDir, entry.Name())
		existing, err := d.store.FindBySourcePath(ctx, absPath)
		if err != nil {
			d.logger.Warn("inbox lookup failed",
				logging.String("source", absPath),
				logging.Error(err))
			continue
		}
		if existing != nil {
			continue
		}

		sheet, err := d.store.NewSheet(ctx, absPath, "")
		if err != nil {
			d.logger.Warn("failed to enqueue inbox file",
				logging.String("source", absPath),
				logging.Error(err))
			continue
		}
		if err := d.notifier.NotifySheetQueued(ctx, absPath); err != nil {
			d.logger.Debug("queue notification failed", logging.Error(err))
		}
		d.logger.Info("inbox file queued",
			logging.String(logging.FieldSheetID, sheet.ID),
			logging.String("source", absPath))
	}
}
