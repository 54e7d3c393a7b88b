package http_api

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/strataplan/claustra/internal/models"
	"github.com/strataplan/claustra/pkg/validation"
)

// LockRequest represents the JSON body for acquiring a field lock
type LockRequest struct {
	FieldName string `json:"field_name" binding:"required"`
}

// LockResponse is returned for both granted and conflicting lock attempts
type LockResponse struct {
	Locked       bool   `json:"locked"`
	FieldName    string `json:"field_name"`
	ExpiresAt    int64  `json:"expires_at,omitempty"` // Unix timestamp, only when granted
	LockedBy     string `json:"locked_by,omitempty"`
	LockedByName string `json:"locked_by_name,omitempty"` // Holder shown to the blocked editor
}

// HeartbeatResponse reports how many locks the heartbeat extended
type HeartbeatResponse struct {
	Refreshed bool  `json:"refreshed"`
	Count     int64 `json:"count"`
}

// UnlockRequest optionally narrows the release to specific fields
type UnlockRequest struct {
	Fields []string `json:"fields"`
}

// UnlockResponse reports how many locks were removed
type UnlockResponse struct {
	Unlocked bool  `json:"unlocked"`
	Count    int64 `json:"count"`
}

// LockView is the holder annotation rendered as an editing indicator
type LockView struct {
	FieldName    string `json:"field_name"`
	LockedBy     string `json:"locked_by"`
	LockedByName string `json:"locked_by_name"`
	LockedAt     int64  `json:"locked_at"`
	ExpiresAt    int64  `json:"expires_at"`
}

// LocksResponse lists the active locks of a project
type LocksResponse struct {
	Locks []LockView `json:"locks"`
}

// actor builds the acting identity from the session headers supplied by the
// upstream identity provider. The display name falls back to the email-like
// identifier when no name is set. Requests without an actor id are rejected.
func (s *HTTPServer) actor(c *gin.Context) (models.Actor, bool) {
	id := c.GetHeader("X-Actor-ID")
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "Actor identity is required",
		})
		return models.Actor{}, false
	}

	name := c.GetHeader("X-Actor-Name")
	if name == "" {
		name = c.GetHeader("X-Actor-Email")
	}

	return models.Actor{ID: id, DisplayName: name}, true
}

// lockField is a handler for acquiring an advisory lock on a single field.
// A conflict with another active holder is a normal outcome, answered with
// 409 and the holder's display name.
func (s *HTTPServer) lockField(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	projectID := c.Param("project_id")

	var req LockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.logger.Debug("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid request body: " + err.Error(),
		})
		return
	}

	fieldName, err := validation.ValidateAndNormalizeFieldName(req.FieldName)
	if err != nil {
		s.logger.Debug("Invalid field name", "error", err, "project_id", projectID)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid field name: " + err.Error(),
		})
		return
	}

	grant, err := s.locks.Lock(c.GetHeader("X-Business-ID"), projectID, fieldName, actor)
	if err != nil {
		var conflict *models.ConflictError
		if errors.As(err, &conflict) {
			c.JSON(http.StatusConflict, LockResponse{
				Locked:       false,
				FieldName:    conflict.FieldName,
				LockedBy:     conflict.LockedBy,
				LockedByName: conflict.LockedByName,
			})
			return
		}
		if errors.Is(err, models.ErrLockContention) {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"success": false,
				"error":   "Lock contention, please retry",
			})
			return
		}
		s.logger.Error("Failed to acquire field lock", "error", err, "project_id", projectID, "field_name", fieldName, "request_id", c.GetString("request_id"))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to acquire field lock",
		})
		return
	}

	c.JSON(http.StatusOK, LockResponse{
		Locked:    true,
		FieldName: grant.FieldName,
		ExpiresAt: grant.ExpiresAt,
	})
}

// heartbeat is a handler that extends every lock the actor holds on the
// project, so editing clients never track individual fields.
func (s *HTTPServer) heartbeat(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	projectID := c.Param("project_id")

	count, err := s.locks.Heartbeat(projectID, actor)
	if err != nil {
		s.logger.Error("Failed to refresh field locks", "error", err, "project_id", projectID, "request_id", c.GetString("request_id"))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to refresh field locks",
		})
		return
	}

	c.JSON(http.StatusOK, HeartbeatResponse{Refreshed: true, Count: count})
}

// unlockFields is a handler that releases the actor's own locks on the
// project. An empty or absent body releases all of them; fields the actor
// never held are ignored.
func (s *HTTPServer) unlockFields(c *gin.Context) {
	actor, ok := s.actor(c)
	if !ok {
		return
	}
	projectID := c.Param("project_id")

	// ContentLength is -1 on chunked requests, which still carry a body.
	var req UnlockRequest
	if c.Request.Body != nil && c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			s.logger.Debug("Invalid request body", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{
				"success": false,
				"error":   "Invalid request body: " + err.Error(),
			})
			return
		}
	}

	fields := make([]string, 0, len(req.Fields))
	for _, field := range req.Fields {
		if name := validation.NormalizeFieldName(field); name != "" {
			fields = append(fields, name)
		}
	}
	// A fields list naming nothing lockable matches nothing; it must never
	// widen into the release-all form.
	if len(req.Fields) > 0 && len(fields) == 0 {
		c.JSON(http.StatusOK, UnlockResponse{Unlocked: true, Count: 0})
		return
	}

	count, err := s.locks.Unlock(projectID, actor, fields)
	if err != nil {
		s.logger.Error("Failed to release field locks", "error", err, "project_id", projectID, "request_id", c.GetString("request_id"))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to release field locks",
		})
		return
	}

	c.JSON(http.StatusOK, UnlockResponse{Unlocked: true, Count: count})
}

// getLocks is a handler that lists the project's active locks for rendering
// "being edited by" indicators. Expired holders are never shown.
func (s *HTTPServer) getLocks(c *gin.Context) {
	if _, ok := s.actor(c); !ok {
		return
	}
	projectID := c.Param("project_id")

	locks, err := s.locks.GetLocks(projectID)
	if err != nil {
		s.logger.Error("Failed to get field locks", "error", err, "project_id", projectID, "request_id", c.GetString("request_id"))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to get field locks",
		})
		return
	}

	views := make([]LockView, 0, len(locks))
	for _, lock := range locks {
		views = append(views, LockView{
			FieldName:    lock.FieldName,
			LockedBy:     lock.LockedBy,
			LockedByName: lock.LockedByName,
			LockedAt:     lock.LockedAt,
			ExpiresAt:    lock.ExpiresAt,
		})
	}

	c.JSON(http.StatusOK, LocksResponse{Locks: views})
}

// clearProjectLocks is a handler for the internal route the project status
// workflow calls when a project is launched or reopened. It drops every
// holder's locks at once.
func (s *HTTPServer) clearProjectLocks(c *gin.Context) {
	projectID := c.Param("project_id")

	count, err := s.locks.ClearProject(projectID)
	if err != nil {
		s.logger.Error("Failed to clear project locks", "error", err, "project_id", projectID, "request_id", c.GetString("request_id"))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to clear project locks",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cleared": true,
		"count":   count,
	})
}

// healthz reports whether the lock store is reachable.
func (s *HTTPServer) healthz(c *gin.Context) {
	if err := s.db.Ping(); err != nil {
		s.logger.Error("Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
