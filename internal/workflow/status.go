package workflow

import (
	"context"

	"platen/internal/batch"
	"platen/internal/logging"
	"platen/internal/pipeline"
	"platen/internal/tasks"
)

// StatusSummary represents lightweight workflow diagnostics.
type StatusSummary struct {
	Running    bool
	LastError  string
	LastBatch  *batch.BatchResult
	QueueStats map[pipeline.Stage]int
	Tasks      tasks.Statistics
}

// Status returns the latest workflow information.
func (m *Manager) Status(ctx context.Context) StatusSummary {
	m.mu.RLock()
	running := m.running
	lastErr := m.lastErr
	lastBatch := m.lastBatch
	m.mu.RUnlock()

	stats, err := m.store.Stats(ctx)
	if err != nil {
		m.logger.Warn("failed to read queue stats", logging.Error(err))
	}

	summary := StatusSummary{
		Running:    running,
		QueueStats: stats,
		Tasks:      m.tasksMgr.Statistics(),
	}
	if lastErr != nil {
		summary.LastError = lastErr.Error()
	}
	if lastBatch != nil {
		copied := *lastBatch
		summary.LastBatch = &copied
	}
	return summary
}
