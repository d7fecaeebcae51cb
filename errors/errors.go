// Package errors defines the error taxonomy shared by the identity core.
// Callers compare with errors.Is against the sentinels below.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound covers unknown tokens, applications, accounts and virtual
	// identities. Expired tokens are reported as not found.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientScope is returned when a live token lacks a required scope.
	// It wraps ErrNotFound so that callers only interested in "denied" can
	// branch on ErrNotFound alone.
	ErrInsufficientScope = fmt.Errorf("%w: insufficient scope", ErrNotFound)

	// ErrConflict is returned by repositories on a duplicate key.
	ErrConflict = errors.New("conflict")

	// ErrRetriesExhausted means a bounded identifier or secret generation loop
	// kept colliding. This is an entropy or configuration fault.
	ErrRetriesExhausted = errors.New("generation retries exhausted")

	ErrPolicyViolation     = errors.New("policy violation")
	ErrValidation          = errors.New("validation failed")
	ErrMalformedCiphertext = errors.New("malformed ciphertext")
)

// Error carries a human readable description on top of one of the sentinels.
type Error struct {
	Kind        error
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Description)
}

func (e *Error) Unwrap() error {
	return e.Kind
}

func NewValidation(description string) *Error {
	return &Error{Kind: ErrValidation, Description: description}
}

func NewPolicyViolation(description string) *Error {
	return &Error{Kind: ErrPolicyViolation, Description: description}
}

func NewMalformedCiphertext(description string) *Error {
	return &Error{Kind: ErrMalformedCiphertext, Description: description}
}

func NewNotFound(description string) *Error {
	return &Error{Kind: ErrNotFound, Description: description}
}

// NewRetriesExhausted reports how many attempts were made for what.
func NewRetriesExhausted(what string, attempts int) *Error {
	return &Error{
		Kind:        ErrRetriesExhausted,
		Description: fmt.Sprintf("%s: gave up after %d attempts", what, attempts),
	}
}
