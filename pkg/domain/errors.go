package domain

import (
	"errors"
	"fmt"
)

// ErrValidation is returned when a fact or node input is malformed.
var ErrValidation = errors.New("validation failed")

// ErrDuplicateFact is returned when a fact with the same key is already stored.
var ErrDuplicateFact = errors.New("duplicate edge")

// ErrReference is returned when an operation names a hash that is not registered.
var ErrReference = errors.New("unknown node reference")

// ErrNoSuchNode is returned by removeNode for an unregistered hash.
// It matches ErrReference as well.
var ErrNoSuchNode = fmt.Errorf("no such node: %w", ErrReference)

// ErrStore is returned when the underlying triplet store fails.
var ErrStore = errors.New("store operation failed")

// ErrClosed is returned by operations on a closed graph.
var ErrClosed = errors.New("graph closed")

// ErrNotFound is returned by saved-graph stores for unknown names.
var ErrNotFound = errors.New("not found")

// OpError describes a rejected public operation.
type OpError struct {
	Op   string // public operation, e.g. "addTriplet"
	Key  string // fact key or node hash involved, if any
	Kind error  // one of the sentinels above
	Err  error  // underlying cause, may be nil
}

func (e *OpError) Error() string {
	msg := e.Op + ": " + e.Kind.Error()
	if e.Key != "" {
		msg += " (" + e.Key + ")"
	}
	if e.Err != nil && e.Err != e.Kind {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is / errors.As.
func (e *OpError) Unwrap() []error {
	if e.Err == nil || e.Err == e.Kind {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewOpError builds an OpError.
func NewOpError(op string, kind error, key string, cause error) *OpError {
	return &OpError{Op: op, Key: key, Kind: kind, Err: cause}
}
