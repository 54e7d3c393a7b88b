package repository

import (
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/strataplan/claustra/internal/models"
	"github.com/strataplan/claustra/pkg/logger"
)

type PostgresDB struct {
	Conn *gorm.DB
}

func NewPostgresDB(user, password, dbname, host string, port int, logger *logger.Logger) (models.LockRepository, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		host, user, password, dbname, port)

	// Configure GORM logger to suppress "record not found" messages
	gormLogger := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags), // Use standard logger
		gormLogger.Config{
			SlowThreshold:             200 * time.Millisecond, // Log queries slower than this
			LogLevel:                  gormLogger.Warn,        // Only log warnings or errors
			IgnoreRecordNotFoundError: true,                   // Suppress "record not found" errors
			Colorful:                  true,                   // Enable colorful logs
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %s", err)
	}

	if err := db.AutoMigrate(&models.FieldLock{}); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate models: %s", err)
	}
	logger.Info("Successfully connected to PostgreSQL!")
	return &PostgresDB{Conn: db}, nil
}

func (db *PostgresDB) Close() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %s", err)
	}
	return sqlDB.Close()
}

func (db *PostgresDB) Ping() error {
	sqlDB, err := db.Conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %s", err)
	}
	return sqlDB.Ping()
}

// AcquireLock writes the lock row in one guarded upsert. The DO UPDATE branch
// only fires when the existing row belongs to the same actor or has expired,
// so a live foreign holder makes the statement touch zero rows and two racing
// acquisitions are serialized by the database itself. locked_at survives when
// the same actor refreshes a still-active lock of their own.
func (db *PostgresDB) AcquireLock(lock *models.FieldLock, now int64) (bool, error) {
	res := db.Conn.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "project_id"}, {Name: "field_name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"business_id":    lock.BusinessID,
			"locked_by":      lock.LockedBy,
			"locked_by_name": lock.LockedByName,
			"locked_at": gorm.Expr(
				"CASE WHEN field_locks.locked_by = ? AND field_locks.expires_at > ? THEN field_locks.locked_at ELSE ? END",
				lock.LockedBy, now, lock.LockedAt,
			),
			"last_activity_at": lock.LastActivityAt,
			"expires_at":       lock.ExpiresAt,
			"status":           lock.Status,
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			gorm.Expr("field_locks.locked_by = ? OR field_locks.expires_at <= ?", lock.LockedBy, now),
		}},
	}).Create(lock)
	if res.Error != nil {
		return false, fmt.Errorf("failed to acquire field lock: %s", res.Error)
	}

	return res.RowsAffected == 1, nil
}

func (db *PostgresDB) GetActiveLock(projectID, fieldName string, now int64) (*models.FieldLock, error) {
	var lock models.FieldLock
	if err := db.Conn.Where("project_id = ? AND field_name = ? AND expires_at > ?", projectID, fieldName, now).First(&lock).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get field lock: %s", err)
	}

	return &lock, nil
}

func (db *PostgresDB) GetActiveLocks(projectID string, now int64) ([]*models.FieldLock, error) {
	var locks []*models.FieldLock
	if err := db.Conn.Where("project_id = ? AND expires_at > ?", projectID, now).Order("field_name").Find(&locks).Error; err != nil {
		return nil, fmt.Errorf("failed to get field locks: %s", err)
	}

	return locks, nil
}

func (db *PostgresDB) CountActiveLocks(now int64) (int64, error) {
	var count int64
	if err := db.Conn.Model(&models.FieldLock{}).Where("expires_at > ?", now).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count active field locks: %s", err)
	}

	return count, nil
}

func (db *PostgresDB) RefreshActiveLocks(projectID, actorID string, now, expiresAt int64) (int64, error) {
	res := db.Conn.Model(&models.FieldLock{}).
		Where("project_id = ? AND locked_by = ? AND expires_at > ?", projectID, actorID, now).
		Updates(map[string]interface{}{
			"last_activity_at": now,
			"expires_at":       expiresAt,
		})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to refresh field locks: %s", res.Error)
	}

	return res.RowsAffected, nil
}

func (db *PostgresDB) RemoveLocks(projectID, actorID string, fields []string) (int64, error) {
	query := db.Conn.Where("project_id = ? AND locked_by = ?", projectID, actorID)
	if len(fields) > 0 {
		query = query.Where("field_name IN ?", fields)
	}
	res := query.Delete(&models.FieldLock{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to remove field locks: %s", res.Error)
	}

	return res.RowsAffected, nil
}

func (db *PostgresDB) RemoveProjectLocks(projectID string) (int64, error) {
	res := db.Conn.Where("project_id = ?", projectID).Delete(&models.FieldLock{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to remove project field locks: %s", res.Error)
	}

	return res.RowsAffected, nil
}

func (db *PostgresDB) RemoveExpiredLocks(now int64) (int64, error) {
	res := db.Conn.Where("expires_at <= ?", now).Delete(&models.FieldLock{})
	if res.Error != nil {
		return 0, fmt.Errorf("failed to remove expired field locks: %s", res.Error)
	}

	return res.RowsAffected, nil
}
