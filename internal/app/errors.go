package app

import (
	"errors"
	"fmt"

	"basegraph.app/booking/internal/model"
)

var (
	// ErrUnknownType means a type name has no registered factory. It is a
	// programming or configuration error and is never retried.
	ErrUnknownType            = errors.New("unknown integration type")
	ErrCapabilityNotSupported = errors.New("integration does not support this capability")
	ErrInvalidConfig          = errors.New("invalid integration configuration")
	ErrMissingSecret          = errors.New("integration secret is not configured")
	// ErrInvalidRequest is caller input rejected before any provider work.
	// Like ErrInvalidConfig it leaves the instance status alone.
	ErrInvalidRequest = errors.New("invalid request")
)

// Generic status text keys used when an error carries no key of its own.
const (
	StatusKeyProviderError   = "app.provider_error"
	StatusKeyConfigureFailed = "app.configure_failed"
	StatusKeyReauthorizing   = "app.reauthorizing"
)

// StatusError is a provider failure with a stable, localizable reason that
// is persisted as the instance status text.
type StatusError struct {
	Err  error
	Text model.StatusText
}

func NewStatusError(err error, key string, args ...string) *StatusError {
	return &StatusError{Err: err, Text: model.StatusText{Key: key, Args: args}}
}

func (e *StatusError) Error() string {
	if e.Err == nil {
		return e.Text.Key
	}
	return fmt.Sprintf("%s: %v", e.Text.Key, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// StatusTextFor returns the status text carried by err or fallbackKey.
func StatusTextFor(err error, fallbackKey string) model.StatusText {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Text
	}
	return model.StatusText{Key: fallbackKey}
}
