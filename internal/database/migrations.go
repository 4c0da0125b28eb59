package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationClearEmptyNoteFields = "2026-10-01_clear_empty_note_fields"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationClearEmptyNoteFields, apply: clearEmptyNoteFields},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// clearEmptyNoteFields stores empty optional note fields as NULL.
func clearEmptyNoteFields(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, column := range []string{"title", "content", "summary"} {
			if err := tx.Model(&notes.NoteRow{}).
				Where(column+" = ?", "").
				Update(column, nil).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
