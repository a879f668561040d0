package workflow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"platen/internal/logging"
	"platen/internal/pipeline"
)

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		sheets, err := m.store.NextUploaded(ctx, m.cfg.Workflow.BatchSize)
		if err != nil {
			m.handleStoreError(ctx, err)
			continue
		}
		if len(sheets) == 0 {
			m.waitForWorkOrShutdown(ctx)
			continue
		}

		m.processBatch(ctx, sheets)
	}
}

func (m *Manager) processBatch(ctx context.Context, sheets []*pipeline.Sheet) {
	if err := m.notifier.NotifyBatchStarted(ctx, len(sheets)); err != nil {
		m.logger.Debug("batch-started notification failed", logging.Error(err))
	}

	result, err := m.orchestrator.ProcessBatch(ctx, sheets)
	if err != nil {
		m.setLastError(err)
		m.logger.Error("batch processing failed",
			logging.Error(err),
			logging.String(logging.FieldEventType, "batch_failed"),
			logging.String(logging.FieldErrorHint, "check queue contents and configuration"))
		return
	}
	m.setLastError(nil)
	m.setLastBatch(result)

	for _, sheet := range sheets {
		m.notifySheet(ctx, sheet)
	}
	err = m.notifier.NotifyBatchCompleted(ctx, result.Completed, result.ManualReview,
		result.Errored, result.Finished.Sub(result.Started))
	if err != nil {
		m.logger.Debug("batch-completed notification failed", logging.Error(err))
	}
}

func (m *Manager) notifySheet(ctx context.Context, sheet *pipeline.Sheet) {
	var err error
	switch sheet.Stage {
	case pipeline.StageCompleted:
		err = m.notifier.NotifySheetCompleted(ctx, sheet.SourcePath, sheet.OverallConfidence())
	case pipeline.StageManualReview:
		err = m.notifier.NotifyManualReview(ctx, sheet.SourcePath, reviewReasons(sheet))
	case pipeline.StageError:
		err = m.notifier.NotifyError(ctx, sheetError(sheet), sheet.SourcePath)
	}
	if err != nil {
		m.logger.Debug("sheet notification failed",
			logging.String(logging.FieldSheetID, sheet.ID),
			logging.Error(err))
	}
}

func sheetError(sheet *pipeline.Sheet) error {
	message := sheet.ErrorMessage
	if message == "" {
		message = "processing failed"
	}
	if sheet.FailedStage != "" {
		return fmt.Errorf("%s: %s", sheet.FailedStage.Label(), message)
	}
	return errors.New(message)
}

func reviewReasons(sheet *pipeline.Sheet) []string {
	if result, ok := sheet.ResultFor(pipeline.StageQualityCheck); ok && result.Quality != nil {
		return result.Quality.Reasons
	}
	return nil
}

func (m *Manager) handleStoreError(ctx context.Context, err error) {
	m.setLastError(err)
	m.logger.Error("failed to claim uploaded sheets",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"))
	select {
	case <-ctx.Done():
	case <-time.After(time.Duration(m.cfg.Workflow.ErrorRetryInterval) * time.Second):
	}
}

func (m *Manager) waitForWorkOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}
