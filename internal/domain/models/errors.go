package models

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidValue is returned for NaN or infinite sample values.
	ErrInvalidValue = errors.New("value must be a finite number")
	// ErrInvalidTimestamp is returned for timestamps that are not ISO-8601.
	ErrInvalidTimestamp = errors.New("timestamp must be ISO-8601")
	// ErrInvalidPayload covers missing or mistyped fields.
	ErrInvalidPayload = errors.New("invalid payload")
)

// InputError is a rejection at the ingestion boundary. It never reaches the store.
type InputError struct {
	Field  string
	Code   string
	Reason string
	Err    error
}

func (e *InputError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s", e.Field, e.Reason)
	}
	return e.Reason
}

func (e *InputError) Unwrap() error { return e.Err }

// NewInputError wraps a sentinel with field context.
func NewInputError(field, code string, err error) *InputError {
	return &InputError{Field: field, Code: code, Reason: err.Error(), Err: err}
}
