// Package errs defines the error taxonomy shared by the domain and adapters.
package errs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Error kinds. Adapters wrap these with %w so callers can use errors.Is.
var (
	ErrLoad                       = errors.New("cannot read csv file")
	ErrEmbeddingUnavailable       = errors.New("embedding model unavailable")
	ErrEmbeddingDimensionMismatch = errors.New("embedding dimension mismatch")
	ErrEmbeddingModelMismatch     = errors.New("embedding model does not match the index")
	ErrDimensionMismatch          = errors.New("vector dimension mismatch")
	ErrEmptyIndex                 = errors.New("no rows indexed, upload a csv file first")
	ErrChatModelUnavailable       = errors.New("chat model unavailable")
	ErrChatModelTimeout           = errors.New("chat model timed out")
	ErrIngestionFailed            = errors.New("could not index file")
	ErrIngestionInProgress        = errors.New("file is still being indexed")
	ErrEmptyQuestion              = errors.New("question is empty")
)

// Phase names the stage of the pipeline an error came from.
type Phase string

const (
	PhaseIngestion Phase = "ingestion"
	PhaseRetrieval Phase = "retrieval"
	PhaseAnswer    Phase = "answer generation"
)

// PhaseError tags an error with the phase that produced it.
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error { return e.Err }

// InPhase wraps err with phase unless it already carries one.
func InPhase(phase Phase, err error) error {
	if err == nil {
		return nil
	}
	var pe *PhaseError
	if errors.As(err, &pe) {
		return err
	}
	return &PhaseError{Phase: phase, Err: err}
}

// PhaseOf returns the phase recorded on err, if any.
func PhaseOf(err error) (Phase, bool) {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase, true
	}
	return "", false
}

// IsTimeout reports whether err is a deadline expiry from ctx or the transport.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// HTTPStatus maps an error to the status code the API responds with.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrEmptyQuestion), errors.Is(err, ErrLoad):
		return http.StatusBadRequest
	case errors.Is(err, ErrEmptyIndex), errors.Is(err, ErrIngestionInProgress):
		return http.StatusConflict
	case errors.Is(err, ErrChatModelTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrEmbeddingUnavailable), errors.Is(err, ErrChatModelUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, ErrEmbeddingDimensionMismatch), errors.Is(err, ErrEmbeddingModelMismatch),
		errors.Is(err, ErrDimensionMismatch):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
