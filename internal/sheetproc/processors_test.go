package sheetproc

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"platen/internal/pipeline"
	"platen/internal/services"
	"platen/internal/testsupport"
)

func TestNewSetCoversAllProcessorStages(t *testing.T) {
	set := NewSet()
	if err := set.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestPreprocessRequiresSourceFile(t *testing.T) {
	sheet := pipeline.NewSheet(filepath.Join(t.TempDir(), "missing.png"))
	_, err := preprocess(context.Background(), sheet)
	if !errors.Is(err, services.ErrStageProcessing) {
		t.Fatalf("error = %v", err)
	}
}

func TestOutputsAreDeterministic(t *testing.T) {
	source := filepath.Join(t.TempDir(), "sheet.png")
	testsupport.WriteFile(t, source, 256)
	sheet := pipeline.NewSheet(source)

	first, err := preprocess(context.Background(), sheet)
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	second, err := preprocess(context.Background(), sheet)
	if err != nil {
		t.Fatalf("preprocess: %v", err)
	}
	if first.Confidence != second.Confidence {
		t.Fatalf("confidence diverged: %v vs %v", first.Confidence, second.Confidence)
	}
	if *first.Preprocess != *second.Preprocess {
		t.Fatalf("output diverged: %+v vs %+v", first.Preprocess, second.Preprocess)
	}
	if first.Confidence < 0.82 || first.Confidence > 0.98 {
		t.Fatalf("confidence out of range: %v", first.Confidence)
	}

	info, err := recognizeStudent(context.Background(), sheet)
	if err != nil {
		t.Fatalf("recognizeStudent: %v", err)
	}
	if info.StudentInfo == nil || info.StudentInfo.StudentID == "" {
		t.Fatalf("student info = %+v", info.StudentInfo)
	}

	segments, err := segmentQuestions(context.Background(), sheet)
	if err != nil {
		t.Fatalf("segmentQuestions: %v", err)
	}
	extraction, err := extractAnswers(context.Background(), sheet)
	if err != nil {
		t.Fatalf("extractAnswers: %v", err)
	}
	if got := extraction.Extraction.AnswerCount + extraction.Extraction.BlankCount; got != segments.Segments.QuestionCount {
		t.Fatalf("answers+blanks = %d, questions = %d", got, segments.Segments.QuestionCount)
	}

	graded, err := grade(context.Background(), sheet)
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if graded.Grading.TotalScore > graded.Grading.MaxScore {
		t.Fatalf("score %v exceeds max %v", graded.Grading.TotalScore, graded.Grading.MaxScore)
	}
}
