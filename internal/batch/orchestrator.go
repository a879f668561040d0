package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"platen/internal/logging"
	"platen/internal/pipeline"
	"platen/internal/services"
	"platen/internal/tasks"
)

// Saver persists sheets and batch summaries at terminal transitions. The
// orchestrator treats persistence as best effort: failures are logged and the
// batch outcome is unaffected.
type Saver interface {
	SaveSheet(ctx context.Context, sheet *pipeline.Sheet) error
	SaveBatch(ctx context.Context, result *BatchResult) error
}

// Config tunes one orchestrator instance.
type Config struct {
	// SheetTimeout bounds one sheet's full pipeline run; zero disables.
	SheetTimeout time.Duration
	// ObserverBuffer sizes the progress channel.
	ObserverBuffer int
	Saver          Saver
	Observer       Observer
}

// Orchestrator fans a batch of sheets out to the task manager and folds the
// terminal sheets back into a BatchResult.
type Orchestrator struct {
	manager *tasks.Manager
	engine  *pipeline.Engine
	cfg     Config
	logger  *slog.Logger
}

// NewOrchestrator wires an orchestrator. Saver and Observer in cfg are both
// optional.
func NewOrchestrator(manager *tasks.Manager, engine *pipeline.Engine, cfg Config, logger *slog.Logger) (*Orchestrator, error) {
	if manager == nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "batch", "task manager is required", nil)
	}
	if engine == nil {
		return nil, services.Wrap(services.ErrConfiguration, "", "batch", "pipeline engine is required", nil)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		manager: manager,
		engine:  engine,
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "batch"),
	}, nil
}

// ProcessBatch runs every sheet through the pipeline under the manager's
// concurrency bound and returns once all of them are terminal. Input
// validation is the only error path; per-sheet failures are folded into the
// result as error-terminal sheets.
func (o *Orchestrator) ProcessBatch(ctx context.Context, sheets []*pipeline.Sheet) (*BatchResult, error) {
	if len(sheets) == 0 {
		return nil, services.Wrap(services.ErrValidation, "", "batch", "batch contains no sheets", nil)
	}
	for i, sheet := range sheets {
		if sheet == nil {
			return nil, services.Wrap(services.ErrValidation, "", "batch", fmt.Sprintf("sheet %d is nil", i), nil)
		}
		if sheet.Terminal() {
			return nil, services.Wrap(services.ErrValidation, "", "batch",
				fmt.Sprintf("sheet %s is already terminal in stage %s", sheet.ID, sheet.Stage), nil)
		}
	}

	batchID := uuid.NewString()
	batchCtx := services.WithBatchID(ctx, batchID)
	logger := o.logger.With(logging.String(logging.FieldBatchID, batchID))
	logger.Info("batch started", logging.Int("sheets", len(sheets)))

	sink := newProgressSink(o.cfg.Observer, o.cfg.ObserverBuffer, logger)
	defer sink.close()

	started := time.Now()
	taskIDs := make([]string, len(sheets))
	submitErrs := make([]error, len(sheets))
	for i, sheet := range sheets {
		sheet.BatchID = batchID
		priority, _ := tasks.ParsePriority(sheet.Priority())
		item := sheet
		taskIDs[i], submitErrs[i] = o.manager.Submit(func(taskCtx context.Context) (any, error) {
			return o.engine.Run(taskCtx, item)
		}, tasks.SubmitOptions{
			Priority:   priority,
			Timeout:    o.cfg.SheetTimeout,
			MaxRetries: 0,
			Backend:    tasks.BackendGoroutine,
			Metadata: map[string]string{
				"sheet_id": sheet.ID,
				"batch_id": batchID,
			},
		})
	}

	result := &BatchResult{
		BatchID: batchID,
		Started: started,
		Total:   len(sheets),
		Items:   make([]ItemSummary, 0, len(sheets)),
	}
	durations := make([]time.Duration, 0, len(sheets))
	canceledRest := false

	for i, sheet := range sheets {
		switch {
		case submitErrs[i] != nil:
			sheet.MarkError(services.Details(submitErrs[i]).Message)
		default:
			if _, err := o.manager.Await(batchCtx, taskIDs[i]); err != nil {
				if batchCtx.Err() != nil && !canceledRest {
					// The batch was canceled: stop the tasks still queued
					// or running, then fold whatever state remains.
					canceledRest = true
					for _, id := range taskIDs[i:] {
						if id != "" {
							o.manager.Cancel(id)
						}
					}
				}
				sheet.MarkError(services.Details(err).Message)
			}
		}
		if !sheet.Terminal() {
			sheet.MarkError("pipeline returned without a terminal stage")
		}

		o.saveSheet(batchCtx, logger, sheet)
		summary := summarize(sheet)
		result.Items = append(result.Items, summary)
		durations = append(durations, summary.Duration)
		switch sheet.Stage {
		case pipeline.StageCompleted:
			result.Completed++
		case pipeline.StageManualReview:
			result.ManualReview++
		default:
			result.Errored++
		}

		sink.publish(Event{
			BatchID:    batchID,
			SheetID:    sheet.ID,
			SourcePath: sheet.SourcePath,
			Terminal:   sheet.Stage,
			Completed:  len(result.Items),
			Total:      len(sheets),
			Err:        sheet.ErrorMessage,
		})
	}

	result.Finished = time.Now()
	result.Durations = summarizeDurations(durations)

	if o.cfg.Saver != nil {
		if err := o.cfg.Saver.SaveBatch(batchCtx, result); err != nil {
			logger.Warn("batch summary not persisted", logging.Error(err))
		}
	}
	logger.Info("batch finished",
		logging.Int("completed", result.Completed),
		logging.Int("manual_review", result.ManualReview),
		logging.Int("errored", result.Errored),
		logging.Duration("elapsed", result.Finished.Sub(result.Started)))
	return result, nil
}

func (o *Orchestrator) saveSheet(ctx context.Context, logger *slog.Logger, sheet *pipeline.Sheet) {
	if o.cfg.Saver == nil {
		return
	}
	if err := o.cfg.Saver.SaveSheet(ctx, sheet); err != nil {
		logger.Warn("sheet not persisted",
			logging.String(logging.FieldSheetID, sheet.ID),
			logging.Error(err))
	}
}

func summarize(sheet *pipeline.Sheet) ItemSummary {
	return ItemSummary{
		SheetID:           sheet.ID,
		SourcePath:        sheet.SourcePath,
		Stage:             sheet.Stage,
		FailedStage:       sheet.FailedStage,
		ErrorMessage:      sheet.ErrorMessage,
		OverallConfidence: sheet.OverallConfidence(),
		Duration:          sheet.ProcessingDuration(),
	}
}
