package collection

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stacklok/backoffice-console/internal/httpclient"
)

var (
	// ErrShapeMismatch is returned when a list body is neither an array nor a {data,total} envelope
	ErrShapeMismatch = errors.New("unexpected response shape")
	// ErrStaleResponse is returned when a fetch result arrives after a newer fetch was issued
	ErrStaleResponse = errors.New("stale response discarded")
	// ErrMutationInFlight is returned when a record already has a mutation in progress
	ErrMutationInFlight = errors.New("another change to this record is still in progress")
	// ErrNotConfirmed is returned for a delete intent that was not explicitly confirmed
	ErrNotConfirmed = errors.New("delete was not confirmed")
	// ErrIntentConsumed is returned when an intent is applied a second time
	ErrIntentConsumed = errors.New("mutation intent already consumed")
	// ErrPageOverflow is returned when a page carries more items than the page size
	ErrPageOverflow = errors.New("page holds more items than the page size")
)

const (
	genericFailure    = "request failed"
	unexpectedFailure = "unexpected response from server"
)

// TransportError wraps a request that could not complete
type TransportError struct {
	Err error
}

// Error returns the error message
func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %v", e.Err)
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// FieldError is one failed field check
type FieldError struct {
	Field   string
	Message string
}

// ValidationError blocks a mutation before it reaches the network
type ValidationError struct {
	Resource string
	Fields   []FieldError
}

// Error returns the error message
func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		if f.Field == "" {
			parts = append(parts, f.Message)
			continue
		}
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return fmt.Sprintf("invalid %s: %s", e.Resource, strings.Join(parts, "; "))
}

// RejectionError is a non-2xx answer from the backend
type RejectionError struct {
	StatusCode    int
	ServerMessage string
	Err           error
}

// Error returns the error message
func (e *RejectionError) Error() string {
	if e.ServerMessage != "" {
		return fmt.Sprintf("rejected with status %d: %s", e.StatusCode, e.ServerMessage)
	}
	return fmt.Sprintf("rejected with status %d", e.StatusCode)
}

// Unwrap returns the underlying error
func (e *RejectionError) Unwrap() error {
	return e.Err
}

// Classify maps an error from a backend call into the collection error taxonomy.
// Errors that already belong to the taxonomy are returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	var (
		transport  *TransportError
		validation *ValidationError
		rejection  *RejectionError
	)
	if errors.As(err, &transport) || errors.As(err, &validation) || errors.As(err, &rejection) {
		return err
	}
	for _, sentinel := range []error{
		ErrShapeMismatch, ErrStaleResponse, ErrMutationInFlight,
		ErrNotConfirmed, ErrIntentConsumed, ErrPageOverflow,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	var httpErr *httpclient.HTTPError
	if errors.As(err, &httpErr) {
		return &RejectionError{
			StatusCode:    httpErr.StatusCode,
			ServerMessage: httpErr.ServerMessage,
			Err:           err,
		}
	}

	return &TransportError{Err: err}
}

// UserMessage renders the text shown to the user for err
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	err = Classify(err)

	var (
		transport  *TransportError
		validation *ValidationError
		rejection  *RejectionError
	)
	switch {
	case errors.As(err, &validation):
		return validation.Error()
	case errors.As(err, &rejection):
		if rejection.ServerMessage != "" {
			return rejection.ServerMessage
		}
		return genericFailure
	case errors.As(err, &transport):
		if errors.Is(transport.Err, context.DeadlineExceeded) {
			return genericFailure + ": timed out"
		}
		return fmt.Sprintf("%s: %v", genericFailure, transport.Err)
	case errors.Is(err, ErrShapeMismatch), errors.Is(err, ErrPageOverflow):
		return unexpectedFailure
	case errors.Is(err, ErrMutationInFlight), errors.Is(err, ErrNotConfirmed), errors.Is(err, ErrIntentConsumed):
		return err.Error()
	default:
		return genericFailure
	}
}
