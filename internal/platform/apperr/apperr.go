// Package apperr defines the error taxonomy shared by the pharmacy services.
// Every rejected operation surfaces one of three kinds: malformed input,
// a business rule standing in the way, or a missing entity. All three are
// recoverable by the caller; none is fatal to the process.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an application error.
type Kind int

const (
	// KindValidation marks malformed input rejected before any side effect.
	KindValidation Kind = iota
	// KindBusinessRule marks a well-formed request refused by a rule:
	// wrong state for a transition, insufficient stock, expired
	// prescription, duplicate dispense record.
	KindBusinessRule
	// KindNotFound marks an unknown prescription/medicine/batch/record id.
	KindNotFound
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindBusinessRule:
		return "business_rule"
	case KindNotFound:
		return "not_found"
	default:
		return "unknown"
	}
}

// Error is an application error with a kind and a human-readable reason.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *Error) Unwrap() error { return e.Err }

// Validation builds a KindValidation error.
func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Reason: fmt.Sprintf(format, args...)}
}

// BusinessRule builds a KindBusinessRule error.
func BusinessRule(format string, args ...interface{}) *Error {
	return &Error{Kind: KindBusinessRule, Reason: fmt.Sprintf(format, args...)}
}

// NotFound builds a KindNotFound error.
func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Reason: fmt.Sprintf(format, args...)}
}

// Wrap attaches a cause to an application error.
func Wrap(kind Kind, err error, reason string) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

// KindOf returns the kind of err if it is (or wraps) an *Error, and a flag
// telling whether it was one.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsValidation reports whether err is a validation error.
func IsValidation(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindValidation
}

// IsBusinessRule reports whether err is a business rule violation.
func IsBusinessRule(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindBusinessRule
}

// IsNotFound reports whether err is a not-found error.
func IsNotFound(err error) bool {
	k, ok := KindOf(err)
	return ok && k == KindNotFound
}
