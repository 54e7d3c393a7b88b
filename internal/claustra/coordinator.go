package claustra

import (
	"time"

	"github.com/strataplan/claustra/internal/models"
	"github.com/strataplan/claustra/pkg/logger"
	"github.com/strataplan/claustra/pkg/metrics"
)

const (
	// DefaultLockTTL is how long a field lock lives without a heartbeat.
	DefaultLockTTL = 5 * time.Minute

	// acquireAttempts bounds the retry loop for the window between losing the
	// upsert and finding the winning row already released or expired.
	acquireAttempts = 3
)

// Coordinator decides the outcome of every lock operation. All coordination
// between concurrently running service instances is delegated to the lock
// store's atomic writes; the Coordinator itself holds no shared mutable
// state and no in-process locking.
type Coordinator struct {
	logger *logger.Logger

	repo models.LockRepository
	ttl  time.Duration
	now  func() time.Time
}

// NewCoordinator creates a Coordinator on top of the given lock store. A
// non-positive ttl falls back to DefaultLockTTL.
func NewCoordinator(repo models.LockRepository, logger *logger.Logger, ttl time.Duration) models.LockService {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &Coordinator{
		repo:   repo,
		logger: logger,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Lock acquires fieldName for the actor or reports the current holder as a
// *models.ConflictError. A lost attempt mutates nothing. When the acquire
// loses the storage race but the winning row is already gone by the time it
// is read back, the whole attempt is retried; ErrLockContention is returned
// only when every attempt loses to a vanishing winner.
func (c *Coordinator) Lock(businessID, projectID, fieldName string, actor models.Actor) (*models.LockGrant, error) {
	if err := validateScope(projectID, actor); err != nil {
		return nil, err
	}
	if fieldName == "" {
		return nil, models.ErrFieldNameRequired
	}

	for attempt := 0; attempt < acquireAttempts; attempt++ {
		now := c.now()
		nowUnix := now.Unix()
		expiresAt := now.Add(c.ttl).Unix()

		granted, err := c.repo.AcquireLock(&models.FieldLock{
			BusinessID:     businessID,
			ProjectID:      projectID,
			FieldName:      fieldName,
			LockedBy:       actor.ID,
			LockedByName:   actor.DisplayName,
			LockedAt:       nowUnix,
			LastActivityAt: nowUnix,
			ExpiresAt:      expiresAt,
			Status:         models.LockStatusActive,
		}, nowUnix)
		if err != nil {
			return nil, err
		}
		if granted {
			// Extend the caller's other locks on this project to the same
			// horizon, so acquiring field B never leaves an earlier field A
			// closer to expiry than B. Only a granted acquire touches them.
			if _, err := c.repo.RefreshActiveLocks(projectID, actor.ID, nowUnix, expiresAt); err != nil {
				return nil, err
			}
			metrics.LockAcquireTotal.WithLabelValues("granted").Inc()
			c.logger.Debug("Field lock granted", "project_id", projectID, "field_name", fieldName, "actor", actor.ID)
			return &models.LockGrant{FieldName: fieldName, ExpiresAt: expiresAt}, nil
		}

		holder, err := c.repo.GetActiveLock(projectID, fieldName, nowUnix)
		if err != nil {
			return nil, err
		}
		if holder != nil && holder.LockedBy != actor.ID {
			metrics.LockAcquireTotal.WithLabelValues("conflict").Inc()
			c.logger.Debug("Field lock conflict", "project_id", projectID, "field_name", fieldName, "actor", actor.ID, "held_by", holder.LockedBy)
			return nil, &models.ConflictError{
				FieldName:    fieldName,
				LockedBy:     holder.LockedBy,
				LockedByName: holder.LockedByName,
			}
		}
		// The winner was released or expired between the upsert and the read
		// back; take another pass.
	}

	metrics.LockAcquireTotal.WithLabelValues("contention").Inc()
	return nil, models.ErrLockContention
}

// Heartbeat renews the actor's whole working set on the project in one batch,
// so a client only tracks the project it is editing, never individual fields.
// Expired locks are not resurrected.
func (c *Coordinator) Heartbeat(projectID string, actor models.Actor) (int64, error) {
	if err := validateScope(projectID, actor); err != nil {
		return 0, err
	}

	now := c.now()
	refreshed, err := c.repo.RefreshActiveLocks(projectID, actor.ID, now.Unix(), now.Add(c.ttl).Unix())
	if err != nil {
		return 0, err
	}
	metrics.HeartbeatTotal.Inc()
	if refreshed > 0 {
		c.logger.Debug("Field locks refreshed", "project_id", projectID, "actor", actor.ID, "count", refreshed)
	}
	return refreshed, nil
}

// Unlock hard-deletes the actor's own lock rows, expired leftovers included.
// Together with the reaper it is the only path that deletes rows; stealing a
// foreign lock happens solely by waiting out its expiry and acquiring.
func (c *Coordinator) Unlock(projectID string, actor models.Actor, fields []string) (int64, error) {
	if err := validateScope(projectID, actor); err != nil {
		return 0, err
	}

	removed, err := c.repo.RemoveLocks(projectID, actor.ID, fields)
	if err != nil {
		return 0, err
	}
	metrics.LockReleaseTotal.Add(float64(removed))
	c.logger.Debug("Field locks released", "project_id", projectID, "actor", actor.ID, "count", removed)
	return removed, nil
}

// GetLocks lists the active locks that clients render as "being edited by"
// indicators. Expired rows are filtered out exactly as acquisition does.
func (c *Coordinator) GetLocks(projectID string) ([]*models.FieldLock, error) {
	if projectID == "" {
		return nil, models.ErrProjectIDRequired
	}
	return c.repo.GetActiveLocks(projectID, c.now().Unix())
}

// ClearProject removes every holder's locks on the project at once.
func (c *Coordinator) ClearProject(projectID string) (int64, error) {
	if projectID == "" {
		return 0, models.ErrProjectIDRequired
	}

	removed, err := c.repo.RemoveProjectLocks(projectID)
	if err != nil {
		return 0, err
	}
	if removed > 0 {
		c.logger.Info("Cleared project locks", "project_id", projectID, "count", removed)
	}
	return removed, nil
}

func validateScope(projectID string, actor models.Actor) error {
	if projectID == "" {
		return models.ErrProjectIDRequired
	}
	if actor.ID == "" {
		return models.ErrActorRequired
	}
	return nil
}
