package internal

import (
	"context"
	"errors"
	"fmt"
)

// Error kinds returned by fetchers, stores and the model client.
// Match them with errors.Is.
var (
	ErrNotFound      = errors.New("content not found")
	ErrNoCaptions    = errors.New("no captions available")
	ErrNetwork       = errors.New("network error")
	ErrStorage       = errors.New("storage error")
	ErrModel         = errors.New("model error")
	ErrMissingAPIKey = errors.New("model API key is required - set model_api_key in config.toml or OPENAI_API_KEY environment variable")
)

// kindError attaches one of the sentinel kinds to an underlying error
// without losing either in the errors.Is chain.
type kindError struct {
	kind error
	err  error
}

func (e *kindError) Error() string {
	return fmt.Sprintf("%v: %v", e.kind, e.err)
}

func (e *kindError) Unwrap() []error {
	return []error{e.kind, e.err}
}

func withKind(kind, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, kind) {
		return err
	}
	return &kindError{kind: kind, err: err}
}

// notFoundf builds an ErrNotFound with a formatted message.
func notFoundf(format string, args ...any) error {
	return withKind(ErrNotFound, fmt.Errorf(format, args...))
}

// noCaptionsf builds an ErrNoCaptions with a formatted message.
func noCaptionsf(format string, args ...any) error {
	return withKind(ErrNoCaptions, fmt.Errorf(format, args...))
}

// asFetchError makes sure a fetch failure carries exactly one fetch kind.
// Anything not already classified (including deadline expiry) is a network error.
func asFetchError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrNoCaptions) || errors.Is(err, ErrNetwork) {
		return err
	}
	return withKind(ErrNetwork, err)
}

// asModelError wraps a model call failure; deadline expiry is reported as a model error too.
func asModelError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return withKind(ErrModel, fmt.Errorf("model call timed out: %w", err))
	}
	return withKind(ErrModel, err)
}

// FailureReason gives a short human label for a fetch failure.
func FailureReason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not found"
	case errors.Is(err, ErrNoCaptions):
		return "no captions"
	case errors.Is(err, ErrNetwork):
		return "network error"
	default:
		return "error"
	}
}
