package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrValidation marks malformed input rejected before any scheduling.
	ErrValidation = errors.New("validation error")
	// ErrStageProcessing marks a stage processor failure recorded as the
	// sheet's terminal error state.
	ErrStageProcessing = errors.New("stage processing error")
	// ErrTimeout marks work that exceeded its deadline.
	ErrTimeout = errors.New("timeout")
	// ErrTaskExecution marks an infrastructure failure inside the task
	// manager, retryable at the task level.
	ErrTaskExecution = errors.New("task execution error")
	// ErrConfiguration marks invalid configuration detected at construction.
	ErrConfiguration = errors.New("configuration error")
	// ErrTransient marks failures with no better classification.
	ErrTransient = errors.New("transient failure")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// ErrorDetails carries the user-facing portion of a classified error.
type ErrorDetails struct {
	Message   string
	Retryable bool
}

// Details extracts a presentable message and retry hint from an error.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	return ErrorDetails{
		Message:   strings.TrimSpace(err.Error()),
		Retryable: errors.Is(err, ErrTransient) || errors.Is(err, ErrTimeout) || errors.Is(err, ErrTaskExecution),
	}
}

// IsValidation reports whether an error was rejected before scheduling.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrConfiguration)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
