package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                = errors.New("record not found")
	ErrMalformedClassification = errors.New("malformed classification")
	ErrEmptyRoster             = errors.New("operator roster is empty")
	ErrInvalidWebhookPayload   = errors.New("invalid webhook payload")
)

// StoreError wraps a failed call to the conversation store.
type StoreError struct {
	Table string
	Op    string
	Err   error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Table, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
