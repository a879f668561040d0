package pipeline

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Sheet is the per-item state carried through the pipeline. It is owned
// exclusively by the engine while a run is in progress and becomes immutable
// once it reaches a terminal stage.
type Sheet struct {
	ID           string
	SourcePath   string
	BatchID      string
	Stage        Stage
	Results      []StageResult
	Metadata     map[string]string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	ErrorMessage string
	FailedStage  Stage
}

// NewSheet builds a sheet in the uploaded state for a source artifact.
func NewSheet(sourcePath string) *Sheet {
	now := time.Now().UTC()
	return &Sheet{
		ID:         uuid.NewString(),
		SourcePath: strings.TrimSpace(sourcePath),
		Stage:      StageUploaded,
		Metadata:   map[string]string{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Terminal reports whether the sheet reached a terminal stage.
func (s *Sheet) Terminal() bool {
	return s.Stage.IsTerminal()
}

// ResultFor returns the recorded result for a stage, if any.
func (s *Sheet) ResultFor(stage Stage) (StageResult, bool) {
	for _, result := range s.Results {
		if result.Stage == stage {
			return result, true
		}
	}
	return StageResult{}, false
}

// appendResult records a stage result. Results are append-only with at most
// one entry per stage.
func (s *Sheet) appendResult(result StageResult) error {
	if _, exists := s.ResultFor(result.Stage); exists {
		return fmt.Errorf("duplicate result for stage %s", result.Stage)
	}
	s.Results = append(s.Results, result)
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// setFailed marks the sheet's terminal error state, retaining prior results.
func (s *Sheet) setFailed(stage Stage, message string) {
	s.Stage = StageError
	s.FailedStage = stage
	s.ErrorMessage = strings.TrimSpace(message)
	s.UpdatedAt = time.Now().UTC()
}

// MarkError forces the sheet into the terminal error state from outside the
// engine, recording the stage it was in when the failure happened. Used when
// the failure is infrastructural rather than a stage processor's.
func (s *Sheet) MarkError(message string) {
	if s.Terminal() {
		return
	}
	s.setFailed(s.Stage, message)
}

// OverallConfidence returns the quality gate's aggregate confidence when the
// gate has run, and zero otherwise.
func (s *Sheet) OverallConfidence() float64 {
	if result, ok := s.ResultFor(StageQualityCheck); ok && result.Quality != nil {
		return result.Quality.OverallConfidence
	}
	return 0
}

// ProcessingDuration sums the recorded per-stage durations.
func (s *Sheet) ProcessingDuration() time.Duration {
	var total time.Duration
	for _, result := range s.Results {
		total += result.Duration
	}
	return total
}

// Priority returns the scheduling priority requested via sheet metadata.
func (s *Sheet) Priority() string {
	if s == nil || s.Metadata == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(s.Metadata["priority"]))
}
