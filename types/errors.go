package types

import (
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrExtractionFailed  = errors.New("extraction failed")
	ErrInvalidDocument   = errors.New("invalid document")
	ErrGenerationTimeout = errors.New("generation timeout")
	ErrPersistFailed     = errors.New("persist failed")
	ErrNotFound          = errors.New("not found")
	ErrIndexBuildFailed  = errors.New("index build failed")
	ErrRetrievalFailed   = errors.New("retrieval failed")
)

// StageError reports which pipeline stage failed, on what subject, and why.
// Kind is one of the sentinel errors above.
type StageError struct {
	Kind    error
	Stage   string
	Subject string
	Err     error
}

func NewStageError(kind error, stage, subject string, err error) *StageError {
	return &StageError{Kind: kind, Stage: stage, Subject: subject, Err: err}
}

func (e *StageError) Error() string {
	msg := fmt.Sprintf("%s: %v", e.Stage, e.Kind)
	if e.Subject != "" {
		msg += fmt.Sprintf(" (%s)", e.Subject)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *StageError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// InputError is true when the caller's data caused the failure rather than
// the service's infrastructure.
func (e *StageError) InputError() bool {
	return IsInputError(e.Kind)
}

func IsInputError(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrExtractionFailed) ||
		errors.Is(err, ErrInvalidDocument) ||
		errors.Is(err, ErrNotFound)
}

// KindName is the stable machine-readable name of an error kind.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrExtractionFailed):
		return "extraction_failed"
	case errors.Is(err, ErrInvalidDocument):
		return "invalid_document"
	case errors.Is(err, ErrGenerationTimeout):
		return "generation_timeout"
	case errors.Is(err, ErrPersistFailed):
		return "persist_failed"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrIndexBuildFailed):
		return "index_build_failed"
	case errors.Is(err, ErrRetrievalFailed):
		return "retrieval_failed"
	}
	return "internal"
}
