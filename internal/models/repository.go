package models

// LockRepository is the durable store behind the lock coordinator. Its writes
// are the only serialization point between concurrently running service
// instances, so AcquireLock must be a single atomic statement, never a read
// followed by a separate write.
type LockRepository interface {
	// AcquireLock inserts or refreshes the row for (project_id, field_name) in
	// one conditional upsert. It reports false, mutating nothing, when a
	// different actor still holds the field.
	AcquireLock(lock *FieldLock, now int64) (bool, error)

	GetActiveLock(projectID, fieldName string, now int64) (*FieldLock, error)
	GetActiveLocks(projectID string, now int64) ([]*FieldLock, error)
	CountActiveLocks(now int64) (int64, error)

	// RefreshActiveLocks extends every unexpired lock the actor holds on the
	// project in one batch and returns how many rows were touched.
	RefreshActiveLocks(projectID, actorID string, now, expiresAt int64) (int64, error)

	// RemoveLocks deletes the actor's own lock rows on a project, expired ones
	// included, optionally narrowed to the given field names.
	RemoveLocks(projectID, actorID string, fields []string) (int64, error)
	RemoveProjectLocks(projectID string) (int64, error)
	RemoveExpiredLocks(now int64) (int64, error)

	Ping() error
	Close() error
}
