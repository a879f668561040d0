package pipeline

import (
	"strings"
	"time"
)

// ResultStatus describes the outcome of one stage attempt.
type ResultStatus string

const (
	ResultSuccess     ResultStatus = "success"
	ResultFailure     ResultStatus = "failure"
	ResultNeedsReview ResultStatus = "needs_review"
)

// PreprocessOutput carries the typed result of image preprocessing.
type PreprocessOutput struct {
	Width    int  `json:"width,omitempty"`
	Height   int  `json:"height,omitempty"`
	Deskewed bool `json:"deskewed,omitempty"`
	DPI      int  `json:"dpi,omitempty"`
}

// StudentInfoOutput carries the recognized student identity fields.
type StudentInfoOutput struct {
	StudentID   string `json:"student_id,omitempty"`
	StudentName string `json:"student_name,omitempty"`
	ClassID     string `json:"class_id,omitempty"`
}

// SegmentationOutput carries the question segmentation summary.
type SegmentationOutput struct {
	QuestionCount int `json:"question_count"`
}

// ExtractionOutput carries the answer extraction summary.
type ExtractionOutput struct {
	AnswerCount int `json:"answer_count"`
	BlankCount  int `json:"blank_count,omitempty"`
}

// GradingOutput carries the grading summary.
type GradingOutput struct {
	TotalScore float64 `json:"total_score"`
	MaxScore   float64 `json:"max_score"`
}

// QualityOutput carries the synthesized quality gate verdict.
type QualityOutput struct {
	OverallConfidence float64  `json:"overall_confidence"`
	Policy            string   `json:"policy"`
	Reasons           []string `json:"reasons,omitempty"`
}

// StageResult is one entry of a sheet's stage history. Each stage kind has a
// typed output pointer; stage-specific odds and ends go in Extra.
type StageResult struct {
	Stage       Stage              `json:"stage"`
	Status      ResultStatus       `json:"status"`
	Confidence  float64            `json:"confidence"`
	Duration    time.Duration      `json:"duration"`
	NeedsReview bool               `json:"needs_review,omitempty"`
	Err         string             `json:"error,omitempty"`
	Preprocess  *PreprocessOutput  `json:"preprocess,omitempty"`
	StudentInfo *StudentInfoOutput `json:"student_info,omitempty"`
	Segments    *SegmentationOutput `json:"segments,omitempty"`
	Extraction  *ExtractionOutput  `json:"extraction,omitempty"`
	Grading     *GradingOutput     `json:"grading,omitempty"`
	Quality     *QualityOutput     `json:"quality,omitempty"`
	Extra       map[string]string  `json:"extra,omitempty"`
}

// Success builds a successful result for a stage with the given confidence.
func Success(stage Stage, confidence float64) StageResult {
	return StageResult{Stage: stage, Status: ResultSuccess, Confidence: clampConfidence(confidence)}
}

// Failure builds a failed result for a stage with an error description.
func Failure(stage Stage, message string) StageResult {
	return StageResult{Stage: stage, Status: ResultFailure, Err: strings.TrimSpace(message)}
}

// Review builds a result that requests manual review while the pipeline
// continues to subsequent stages.
func Review(stage Stage, confidence float64, reason string) StageResult {
	result := StageResult{
		Stage:       stage,
		Status:      ResultNeedsReview,
		Confidence:  clampConfidence(confidence),
		NeedsReview: true,
	}
	if reason = strings.TrimSpace(reason); reason != "" {
		result.Extra = map[string]string{"review_reason": reason}
	}
	return result
}

// Failed reports whether the result terminates the pipeline.
func (r StageResult) Failed() bool {
	return r.Status == ResultFailure
}

func clampConfidence(value float64) float64 {
	switch {
	case value < 0:
		return 0
	case value > 1:
		return 1
	default:
		return value
	}
}
