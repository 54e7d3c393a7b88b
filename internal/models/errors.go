package models

import (
	"errors"
	"fmt"
)

var (
	// Input errors, rejected before touching storage
	ErrFieldNameRequired = errors.New("field name is required")
	ErrProjectIDRequired = errors.New("project id is required")
	ErrActorRequired     = errors.New("actor id is required")

	// ErrLockContention is returned when an acquire keeps losing the storage
	// race without ever observing a live holder to report. The caller should
	// simply retry.
	ErrLockContention = errors.New("lock contention, retry")
)

// ConflictError reports that a field is already held by another active actor.
// It is a normal, expected result of Lock, not an infrastructure failure;
// callers branch on it with errors.As.
type ConflictError struct {
	FieldName    string
	LockedBy     string
	LockedByName string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("field %q is locked by %s", e.FieldName, e.LockedByName)
}
