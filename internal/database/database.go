package database

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/audio"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	// DriverSQLite selects the embedded pure-Go SQLite driver.
	DriverSQLite = "sqlite"
	// DriverPostgres selects the pgx-backed PostgreSQL driver.
	DriverPostgres = "postgres"
)

// Config selects the storage backend.
type Config struct {
	Driver string
	Path   string
	DSN    string
}

// Open connects to the configured database, migrates the schema and applies data repairs.
func Open(cfg Config, logger *zap.Logger) (*gorm.DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialector, target, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if dialector.Name() == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&notes.NoteRow{}, &audio.JobRow{}, &migrationRecord{}); err != nil {
		return nil, err
	}

	if recovered, err := failInterruptedJobs(db, time.Now().UTC()); err != nil {
		logger.Warn("interrupted job recovery failed", zap.Error(err))
	} else if recovered > 0 {
		logger.Warn("marked interrupted audio jobs failed", zap.Int64("jobs", recovered))
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	logger.Info("database initialized",
		zap.String("driver", dialector.Name()),
		zap.String("target", target))

	return db, nil
}

func dialectorFor(cfg Config) (gorm.Dialector, string, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", DriverSQLite:
		if strings.TrimSpace(cfg.Path) == "" {
			return nil, "", errors.New("database path is required")
		}
		return sqlite.Open(cfg.Path), cfg.Path, nil
	case DriverPostgres:
		if strings.TrimSpace(cfg.DSN) == "" {
			return nil, "", errors.New("database dsn is required")
		}
		return postgres.Open(cfg.DSN), "postgres", nil
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// failInterruptedJobs moves jobs left in processing by a previous process to failed.
// The pipeline runs inside a request, so such jobs can never complete.
func failInterruptedJobs(db *gorm.DB, at time.Time) (int64, error) {
	result := db.Model(&audio.JobRow{}).
		Where("status = ?", string(audio.JobStatusProcessing)).
		Updates(map[string]any{"status": string(audio.JobStatusFailed), "updated_at": at})
	return result.RowsAffected, result.Error
}
