package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrDuplicateEmail indicates the email uniqueness constraint rejected a write.
	ErrDuplicateEmail = errors.New("repository: email already registered")
	// ErrVersionConflict indicates a conditional write lost against a concurrent one.
	ErrVersionConflict = errors.New("repository: version conflict")
	// ErrCreationFailed indicates an insert succeeded but the row could not be read back.
	ErrCreationFailed = errors.New("repository: account not readable after insert")
)
