package inventory

import (
	"errors"

	"github.com/google/uuid"
)

// StoreError represents a domain error from inventory operations.
//
// These are business logic errors (unknown folder, invalid argument, ...)
// as opposed to infrastructure errors (network failure, disk error). Absence
// of data that simply has not arrived yet is never reported as an error by
// the read operations; it is reported as a false "found" flag instead.
type StoreError struct {
	// Code is the error category
	Code ErrorCode

	// Message is a human-readable error description
	Message string

	// ID is the node the error refers to (uuid.Nil when not applicable)
	ID uuid.UUID
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.ID != uuid.Nil {
		return e.Message + ": " + e.ID.String()
	}
	return e.Message
}

// ErrorCode represents the category of an inventory error.
type ErrorCode int

const (
	// ErrFolderNotKnown indicates the folder is not present in the folder table
	ErrFolderNotKnown ErrorCode = iota

	// ErrNodeNotKnown indicates the node is neither linked nor parked
	ErrNodeNotKnown

	// ErrInvalidArgument indicates invalid parameters were provided
	// Examples: nil node, self-parenting, mismatched argument slices
	ErrInvalidArgument

	// ErrNotSupported indicates the server does not advertise the
	// capability required by the operation
	ErrNotSupported

	// ErrOwnerMismatch indicates a cache snapshot belongs to another agent
	ErrOwnerMismatch

	// ErrCorruptSnapshot indicates a cache snapshot could not be decoded
	ErrCorruptSnapshot
)

func (c ErrorCode) String() string {
	switch c {
	case ErrFolderNotKnown:
		return "folder not known"
	case ErrNodeNotKnown:
		return "node not known"
	case ErrInvalidArgument:
		return "invalid argument"
	case ErrNotSupported:
		return "not supported"
	case ErrOwnerMismatch:
		return "owner mismatch"
	case ErrCorruptSnapshot:
		return "corrupt snapshot"
	default:
		return "unknown"
	}
}

// IsErrorCode reports whether err (or anything it wraps) is a *StoreError
// with the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	var storeErr *StoreError
	if errors.As(err, &storeErr) {
		return storeErr.Code == code
	}
	return false
}

func newError(code ErrorCode, id uuid.UUID, message string) *StoreError {
	return &StoreError{Code: code, Message: message, ID: id}
}
