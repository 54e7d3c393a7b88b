package models

// LockGrant is the successful result of a lock acquisition.
type LockGrant struct {
	FieldName string `json:"field_name"`
	ExpiresAt int64  `json:"expires_at"`
}

// LockService is the behavior surface of the lock coordinator.
type LockService interface {
	// Lock acquires or refreshes the caller's advisory lock on one field and
	// extends every other lock the caller holds on the project to the same
	// new expiry. It returns a *ConflictError when a different actor still
	// holds the field.
	Lock(businessID, projectID, fieldName string, actor Actor) (*LockGrant, error)

	// Heartbeat extends every lock the actor currently holds on the project,
	// so a client never has to track which fields it holds. Holding zero
	// locks is a no-op, not an error.
	Heartbeat(projectID string, actor Actor) (int64, error)

	// Unlock removes the actor's own locks on the project, all of them or
	// just the named fields. Unlocking a field the actor never held is a
	// no-op; another actor's locks are never touched.
	Unlock(projectID string, actor Actor, fields []string) (int64, error)

	// GetLocks lists the project's active locks for editing indicators.
	GetLocks(projectID string) ([]*FieldLock, error)

	// ClearProject removes every lock on the project regardless of holder.
	// The project status workflow calls this when a project leaves the
	// editable state.
	ClearProject(projectID string) (int64, error)
}
