// Package metaerr defines the sentinel error kinds the metastore surfaces to
// its callers. Every fallible operation in this module returns an error that
// wraps exactly one of these sentinels, checkable with errors.Is.
package metaerr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates a point lookup of a required id missed.
	ErrNotFound = errors.New("not found")

	// ErrUniqueViolation indicates an insert or update would duplicate a
	// unique secondary index key.
	ErrUniqueViolation = errors.New("unique constraint violation")

	// ErrInvalidState indicates a precondition of a domain operation failed,
	// e.g. swapping in a partition that is not currently inactive.
	ErrInvalidState = errors.New("invalid state")

	// ErrInternalConsistency indicates a supposed invariant was violated at
	// runtime, e.g. a unique index returned more than one match.
	ErrInternalConsistency = errors.New("internal consistency violation")

	// ErrCodec indicates key or value bytes could not be decoded.
	ErrCodec = errors.New("codec error")

	// ErrKvEngine indicates the underlying key-value engine returned an error.
	ErrKvEngine = errors.New("kv engine error")

	// ErrRemoteIo indicates a remote blob upload/download/list/delete failed.
	ErrRemoteIo = errors.New("remote io error")

	// ErrUser indicates bad caller input: an unknown name, a missing schema,
	// and the like.
	ErrUser = errors.New("user error")
)

// Wrap annotates err with an operation name while preserving errors.Is
// matching against the sentinel it wraps.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Wrapf is Wrap with a formatted operation description.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// NotFound builds an ErrNotFound wrapped with op context.
func NotFound(op string) error { return Wrap(op, ErrNotFound) }

// UniqueViolation builds an ErrUniqueViolation wrapped with op context.
func UniqueViolation(op string) error { return Wrap(op, ErrUniqueViolation) }

// InvalidState builds an ErrInvalidState wrapped with op context.
func InvalidState(op string) error { return Wrap(op, ErrInvalidState) }

// InternalConsistency builds an ErrInternalConsistency wrapped with op context.
func InternalConsistency(op string) error { return Wrap(op, ErrInternalConsistency) }
