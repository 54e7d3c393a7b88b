package models

// LockStatusActive is the only lock status in use today. The column is kept
// for future lifecycle states, e.g. an audit-retained "released".
const LockStatusActive = "active"

// FieldLock is one advisory lock on a single named field of a project.
// The (project_id, field_name) primary key keeps the physical row unique;
// a row whose expiry has passed is treated as absent by every read path.
type FieldLock struct {
	// BusinessID is the owning tenant, denormalized for scoping and audit.
	BusinessID string `json:"business_id" gorm:"column:business_id;size:64;index"`
	// ProjectID is the shared project record being edited.
	ProjectID string `json:"project_id" gorm:"column:project_id;primaryKey;size:64"`
	// FieldName is the named field under lock.
	FieldName string `json:"field_name" gorm:"column:field_name;primaryKey;size:128"`
	// LockedBy is the opaque id of the holding actor.
	LockedBy string `json:"locked_by" gorm:"column:locked_by;size:64;index;not null"`
	// LockedByName is the holder's display name, snapshotted at acquisition so
	// conflict messages need no join against the user store.
	LockedByName string `json:"locked_by_name" gorm:"column:locked_by_name;size:255"`
	// LockedAt is the Unix timestamp of the first acquisition. Refreshes and
	// heartbeats never move it.
	LockedAt int64 `json:"locked_at" gorm:"column:locked_at;not null"`
	// LastActivityAt is the last time this lock was touched by an acquire or a
	// heartbeat.
	LastActivityAt int64 `json:"last_activity_at" gorm:"column:last_activity_at;not null"`
	// ExpiresAt is the moment the lock becomes reclaimable, always
	// LastActivityAt plus the configured TTL.
	ExpiresAt int64 `json:"expires_at" gorm:"column:expires_at;not null;index"`
	// Status is always "active" today.
	Status string `json:"status" gorm:"column:status;size:32;default:active"`
}

// TableName specifies the table name for GORM
func (FieldLock) TableName() string {
	return "field_locks"
}
