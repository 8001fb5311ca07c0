// Package errors provides structured error types for the sync engine.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error for retry and propagation decisions.
type Kind uint8

const (
	// KindOther is the default, unclassified kind.
	KindOther Kind = iota

	// KindTransient marks remote failures (network, auth, quota) that are
	// expected to succeed on a later cycle.
	KindTransient

	// KindStorage marks local persistence failures.
	KindStorage

	// KindInvalid marks validation failures and API misuse. Never retried.
	KindInvalid

	// KindNotFound marks lookups of records or documents that do not exist.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindStorage:
		return "storage"
	case KindInvalid:
		return "invalid"
	case KindNotFound:
		return "not_found"
	default:
		return "other"
	}
}

// retryable reports whether operations failing with this kind should be
// retried on the next natural cycle.
func (k Kind) retryable() bool {
	return k == KindTransient || k == KindStorage
}

// Operation identifies the sync operation during which an error occurred.
type Op string

// Component identifies the part of the system that generated an error.
type Component string

// SyncError is the structured error type used throughout the engine.
type SyncError struct {
	Op        Op
	Component Component
	Kind      Kind
	Err       error
	Retryable bool
}

func (e *SyncError) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(string(e.Op))
		b.WriteString(": ")
	}
	if e.Component != "" {
		fmt.Fprintf(&b, "[%s] ", e.Component)
	}
	if e.Kind != KindOther {
		fmt.Fprintf(&b, "<%s> ", e.Kind)
	}
	if e.Err != nil {
		b.WriteString(e.Err.Error())
	} else {
		b.WriteString("unknown error")
	}
	return b.String()
}

func (e *SyncError) Unwrap() error { return e.Err }

// E builds a SyncError from its arguments. Accepted argument types:
// Op, Component, Kind, error, and string (treated as a message; the last
// message wins and wraps any error argument).
//
//	errors.E(errors.Op("consumer.drain"), errors.Component("consumer"),
//	         errors.KindTransient, err, "forwarding entry")
func E(args ...any) error {
	e := &SyncError{}
	var msg string
	for _, arg := range args {
		switch a := arg.(type) {
		case Op:
			e.Op = a
		case Component:
			e.Component = a
		case Kind:
			e.Kind = a
		case *SyncError:
			e.Err = a
			if e.Kind == KindOther {
				e.Kind = a.Kind
			}
		case error:
			e.Err = a
		case string:
			msg = a
		default:
			panic(fmt.Sprintf("errors.E: unsupported argument type %T", arg))
		}
	}
	if msg != "" {
		if e.Err != nil {
			e.Err = fmt.Errorf("%s: %w", msg, e.Err)
		} else {
			e.Err = errors.New(msg)
		}
	}
	e.Retryable = e.Kind.retryable()
	return e
}

// KindOf returns the Kind of err, or KindOther for foreign errors.
func KindOf(err error) Kind {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindOther
}

// IsRetryable reports whether err should be retried on a later cycle.
func IsRetryable(err error) bool {
	var se *SyncError
	if errors.As(err, &se) {
		return se.Retryable
	}
	return false
}

// IsNotFound reports whether err marks a missing record or document.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsInvalid reports whether err marks a validation failure or API misuse.
func IsInvalid(err error) bool {
	return KindOf(err) == KindInvalid
}
