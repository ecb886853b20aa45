package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrProcessing   = errors.New("processing error")
	ErrPersistence  = errors.New("persistence error")
	ErrCancelled    = errors.New("cancelled")
)

// Kind names the failure class of a stage error.
type Kind string

const (
	KindUnknown      Kind = "unknown"
	KindInvalidInput Kind = "invalid_input"
	KindProcessing   Kind = "processing"
	KindPersistence  Kind = "persistence"
	KindCancelled    Kind = "cancelled"
)

// Wrap builds an error message that includes stage context while tagging it with
// the provided marker for later classification. The marker should be one of the
// exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrProcessing
	}
	if err != nil {
		return &stageError{
			marker:    marker,
			stage:     strings.TrimSpace(stage),
			operation: strings.TrimSpace(operation),
			message:   strings.TrimSpace(message),
			err:       fmt.Errorf("%w: %s: %w", marker, detail, err),
			cause:     err,
		}
	}
	return &stageError{
		marker:    marker,
		stage:     strings.TrimSpace(stage),
		operation: strings.TrimSpace(operation),
		message:   strings.TrimSpace(message),
		err:       fmt.Errorf("%w: %s", marker, detail),
	}
}

type stageError struct {
	marker    error
	stage     string
	operation string
	message   string
	err       error
	cause     error
}

func (e *stageError) Error() string { return e.err.Error() }

func (e *stageError) Unwrap() error { return e.err }

// ErrorDetails is the decomposed view of a wrapped stage error.
type ErrorDetails struct {
	Kind      Kind
	Stage     string
	Operation string
	Message   string
	Cause     error
}

// Details extracts the structured context attached by Wrap. Errors that were
// not produced by Wrap are still classified through their markers.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	details := ErrorDetails{Kind: KindOf(err)}
	var se *stageError
	if errors.As(err, &se) {
		details.Stage = se.stage
		details.Operation = se.operation
		details.Message = se.message
		details.Cause = se.cause
	}
	return details
}

// KindOf maps an error to its failure class.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrCancelled):
		return KindCancelled
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrPersistence):
		return KindPersistence
	case errors.Is(err, ErrProcessing):
		return KindProcessing
	default:
		return KindUnknown
	}
}

// Marker returns the sentinel err is tagged with. Untagged errors map to
// ErrProcessing.
func Marker(err error) error {
	switch KindOf(err) {
	case KindCancelled:
		return ErrCancelled
	case KindInvalidInput:
		return ErrInvalidInput
	case KindPersistence:
		return ErrPersistence
	default:
		return ErrProcessing
	}
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
		return "stage failure"
	}
	return strings.Join(parts, ": ")
}
