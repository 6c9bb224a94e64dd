package inference

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind classifies a provider failure.
type ErrorKind string

const (
	// KindTransport is a network or timeout failure.
	KindTransport ErrorKind = "transport"
	// KindStatus is a non-success HTTP or API status.
	KindStatus ErrorKind = "status"
	// KindAuth is a rejected or missing credential.
	KindAuth ErrorKind = "auth"
	// KindEmpty is a response with no text.
	KindEmpty ErrorKind = "empty"
	// KindParse is a response holding no parseable JSON object.
	KindParse ErrorKind = "parse"
	// KindShape is JSON that parsed but failed validation.
	KindShape ErrorKind = "shape"
	// KindCancelled is a call abandoned because its context ended.
	KindCancelled ErrorKind = "cancelled"
)

// ProviderError is every failure surfaced by this package.
type ProviderError struct {
	Kind       ErrorKind
	Provider   string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: %s (status %d): %v",
			e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// NewError builds a ProviderError. Transport and 429/5xx status
// failures are marked retryable.
func NewError(
	provider string,
	kind ErrorKind,
	status int,
	err error,
) *ProviderError {
	pe := &ProviderError{
		Kind:       kind,
		Provider:   provider,
		StatusCode: status,
		Err:        err,
	}
	switch kind {
	case KindTransport:
		pe.Retryable = true
	case KindStatus:
		pe.Retryable = status == 429 || status >= 500
	}
	return pe
}

// asProviderError wraps err unless it already is a ProviderError.
// Context errors become KindCancelled.
func asProviderError(provider string, err error) *ProviderError {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe
	}
	if errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return NewError(provider, KindCancelled, 0, err)
	}
	return NewError(provider, KindTransport, 0, err)
}

// IsRetryable reports whether err is a retryable ProviderError.
func IsRetryable(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Retryable
}

// KindOf returns the kind of a ProviderError, or "" for other errors.
func KindOf(err error) ErrorKind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return ""
}
