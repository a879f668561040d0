package pipeline

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Stage represents one step of the sheet lifecycle.
type Stage string

const (
	StageUploaded      Stage = "uploaded"
	StagePreprocessing Stage = "preprocessing"
	StageStudentInfo   Stage = "student_info_recognition"
	StageSegmentation  Stage = "question_segmentation"
	StageExtraction    Stage = "answer_extraction"
	StageGrading       Stage = "grading"
	StageQualityCheck  Stage = "quality_check"
	StageCompleted     Stage = "completed"
	StageManualReview  Stage = "manual_review"
	StageError         Stage = "error"
)

// processingOrder is the strict execution order between upload and verdict.
var processingOrder = []Stage{
	StagePreprocessing,
	StageStudentInfo,
	StageSegmentation,
	StageExtraction,
	StageGrading,
	StageQualityCheck,
}

var allStages = func() []Stage {
	stages := make([]Stage, 0, len(processingOrder)+4)
	stages = append(stages, StageUploaded)
	stages = append(stages, processingOrder...)
	stages = append(stages, StageCompleted, StageManualReview, StageError)
	return stages
}()

var stageSet = func() map[Stage]struct{} {
	set := make(map[Stage]struct{}, len(allStages))
	for _, stage := range allStages {
		set[stage] = struct{}{}
	}
	return set
}()

// AllStages returns the ordered list of known stages.
func AllStages() []Stage {
	cp := make([]Stage, len(allStages))
	copy(cp, allStages)
	return cp
}

// ProcessingStages returns the ordered non-terminal stages a sheet executes.
func ProcessingStages() []Stage {
	cp := make([]Stage, len(processingOrder))
	copy(cp, processingOrder)
	return cp
}

// ProcessorStages returns the stages that require an injected processor; the
// quality check is decided by the gate instead.
func ProcessorStages() []Stage {
	return ProcessingStages()[:len(processingOrder)-1]
}

// ParseStage converts a string into a known Stage.
func ParseStage(value string) (Stage, bool) {
	normalized := Stage(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := stageSet[normalized]
	return normalized, ok
}

// IsTerminal reports whether no further stage execution occurs.
func (s Stage) IsTerminal() bool {
	switch s {
	case StageCompleted, StageManualReview, StageError:
		return true
	default:
		return false
	}
}

// next returns the stage following s in processing order.
func next(s Stage) (Stage, bool) {
	if s == StageUploaded {
		return processingOrder[0], true
	}
	for i, stage := range processingOrder {
		if stage == s && i+1 < len(processingOrder) {
			return processingOrder[i+1], true
		}
	}
	return "", false
}

// Label returns the stage name formatted for display.
func (s Stage) Label() string {
	if s == "" {
		return ""
	}
	return cases.Title(language.Und).String(strings.ReplaceAll(string(s), "_", " "))
}
