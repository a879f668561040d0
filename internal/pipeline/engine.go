package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"platen/internal/logging"
	"platen/internal/services"
)

// Engine executes the stage state machine for one sheet at a time.
type Engine struct {
	processors ProcessorSet
	gate       GateConfig
	logger     *slog.Logger
}

// NewEngine constructs a pipeline engine. The processor set must cover every
// processor stage.
func NewEngine(processors ProcessorSet, gate GateConfig, logger *slog.Logger) (*Engine, error) {
	if err := processors.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		processors: processors,
		gate:       gate,
		logger:     logging.NewComponentLogger(logger, "pipeline"),
	}, nil
}

// Run drives the sheet from its current stage to a terminal stage. Stage
// processor failures are modeled as the sheet's terminal error state and do
// not produce an engine error; only invalid input, duplicate history, or
// context cancellation do.
func (e *Engine) Run(ctx context.Context, sheet *Sheet) (*Sheet, error) {
	if sheet == nil {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "run", "sheet is nil", nil)
	}
	if sheet.Terminal() {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "run",
			fmt.Sprintf("sheet %s already terminal in stage %s", sheet.ID, sheet.Stage), nil)
	}

	runCtx := services.WithSheetID(ctx, sheet.ID)
	if sheet.BatchID != "" {
		runCtx = services.WithBatchID(runCtx, sheet.BatchID)
	}

	if sheet.Stage == StageUploaded {
		sheet.Stage = processingOrder[0]
	}

	for !sheet.Terminal() {
		// Cancellation is cooperative: checked between stages, never
		// preempting a started processor.
		select {
		case <-runCtx.Done():
			return sheet, runCtx.Err()
		default:
		}

		if sheet.Stage == StageQualityCheck {
			if err := e.runQualityGate(runCtx, sheet); err != nil {
				return sheet, err
			}
			continue
		}

		if err := e.runStage(runCtx, sheet); err != nil {
			return sheet, err
		}
	}

	return sheet, nil
}

func (e *Engine) runStage(ctx context.Context, sheet *Sheet) error {
	stage := sheet.Stage
	processor := e.processors[stage]
	if processor == nil {
		return services.Wrap(services.ErrConfiguration, string(stage), "run", "stage processor unavailable", nil)
	}

	stageCtx := services.WithStage(ctx, string(stage))
	stageCtx = services.WithRequestID(stageCtx, uuid.NewString())
	stageLogger := logging.WithContext(stageCtx, e.logger)

	stageLogger.Info("stage started",
		logging.String(logging.FieldEventType, "stage_start"),
		logging.String("source_file", sheet.SourcePath),
	)

	started := time.Now()
	result, err := processor.Process(stageCtx, sheet)
	elapsed := time.Since(started)

	result.Stage = stage
	if result.Duration == 0 {
		result.Duration = elapsed
	}
	if err != nil {
		if result.Status != ResultFailure {
			result = Failure(stage, services.Details(err).Message)
			result.Duration = elapsed
		}
	}
	if result.Status == "" {
		result.Status = ResultSuccess
	}

	if appendErr := sheet.appendResult(result); appendErr != nil {
		return services.Wrap(services.ErrValidation, string(stage), "record result", appendErr.Error(), nil)
	}

	if result.Failed() {
		message := result.Err
		if message == "" {
			message = fmt.Sprintf("stage %s failed", stage)
		}
		sheet.setFailed(stage, message)
		stageLogger.Error("stage failed",
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String("error_message", message),
			logging.Duration("stage_duration", elapsed),
		)
		return nil
	}

	nextStage, ok := next(stage)
	if !ok {
		return services.Wrap(services.ErrConfiguration, string(stage), "advance", "no next stage configured", nil)
	}
	sheet.Stage = nextStage
	sheet.UpdatedAt = time.Now().UTC()

	stageLogger.Info("stage completed",
		logging.String(logging.FieldEventType, "stage_complete"),
		logging.String("next_stage", string(nextStage)),
		logging.Float64("confidence", result.Confidence),
		logging.Duration("stage_duration", elapsed),
	)
	return nil
}

func (e *Engine) runQualityGate(ctx context.Context, sheet *Sheet) error {
	gateCtx := services.WithStage(ctx, string(StageQualityCheck))
	gateLogger := logging.WithContext(gateCtx, e.logger)

	started := time.Now()
	decision := Decide(sheet.Results, e.gate)
	result := qualityResult(decision, e.gate.Policy)
	result.Duration = time.Since(started)

	if err := sheet.appendResult(result); err != nil {
		return services.Wrap(services.ErrValidation, string(StageQualityCheck), "record result", err.Error(), nil)
	}
	sheet.Stage = decision.Terminal
	sheet.UpdatedAt = time.Now().UTC()

	gateLogger.Info("quality gate decided",
		logging.String(logging.FieldEventType, "quality_gate"),
		logging.String("terminal_stage", string(decision.Terminal)),
		logging.Float64("overall_confidence", decision.OverallConfidence),
		logging.Int("reasons", len(decision.Reasons)),
	)
	return nil
}
