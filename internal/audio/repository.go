package audio

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

const (
	queryJobID           = "id = ?"
	queryJobNoteID       = "note_id = ?"
	queryJobIDWithStatus = "id = ? AND status IN ?"
	orderJobsNewest      = "created_at DESC, id DESC"
)

var errMissingDatabase = errors.New("audio: database handle is required")

// Repository reads and writes the audio_jobs table. Absence is reported through
// the found flag, never as an error.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a repository to the database handle.
func NewRepository(db *gorm.DB) (*Repository, error) {
	if db == nil {
		return nil, errMissingDatabase
	}
	return &Repository{db: db}, nil
}

// Create inserts the row.
func (r *Repository) Create(ctx context.Context, row JobRow) (AudioJob, error) {
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return AudioJob{}, err
	}
	return mapJobRow(row), nil
}

// FindByID loads a single job.
func (r *Repository) FindByID(ctx context.Context, id JobID) (AudioJob, bool, error) {
	var row JobRow
	err := r.db.WithContext(ctx).Where(queryJobID, id.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return AudioJob{}, false, nil
	}
	if err != nil {
		return AudioJob{}, false, err
	}
	return mapJobRow(row), true, nil
}

// FindLatestByNoteID returns the most recently created job for the note.
func (r *Repository) FindLatestByNoteID(ctx context.Context, noteID string) (AudioJob, bool, error) {
	var rows []JobRow
	err := r.db.WithContext(ctx).
		Where(queryJobNoteID, noteID).
		Order(orderJobsNewest).
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return AudioJob{}, false, err
	}
	if len(rows) == 0 {
		return AudioJob{}, false, nil
	}
	return mapJobRow(rows[0]), true, nil
}

// ListByNoteID returns every job for the note, newest first.
func (r *Repository) ListByNoteID(ctx context.Context, noteID string) ([]AudioJob, error) {
	var rows []JobRow
	if err := r.db.WithContext(ctx).
		Where(queryJobNoteID, noteID).
		Order(orderJobsNewest).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	jobs := make([]AudioJob, 0, len(rows))
	for _, row := range rows {
		jobs = append(jobs, mapJobRow(row))
	}
	return jobs, nil
}

// Transition moves the job to target only if its current status is an allowed
// predecessor. applied is false when the job is missing or in another status;
// the returned job then reflects the stored state, if any.
func (r *Repository) Transition(ctx context.Context, id JobID, target JobStatus, at time.Time) (job AudioJob, applied bool, found bool, err error) {
	predecessors := allowedPredecessors(target)
	from := make([]string, 0, len(predecessors))
	for _, status := range predecessors {
		from = append(from, string(status))
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(from) > 0 {
			result := tx.Model(&JobRow{}).
				Where(queryJobIDWithStatus, id.String(), from).
				Updates(map[string]any{"status": string(target), "updated_at": at})
			if result.Error != nil {
				return result.Error
			}
			applied = result.RowsAffected > 0
		}

		var row JobRow
		takeErr := tx.Where(queryJobID, id.String()).Take(&row).Error
		if errors.Is(takeErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if takeErr != nil {
			return takeErr
		}
		found = true
		job = mapJobRow(row)
		return nil
	})
	if err != nil {
		return AudioJob{}, false, false, err
	}
	return job, applied, found, nil
}

// DeleteByNoteID removes every job for the note.
func (r *Repository) DeleteByNoteID(ctx context.Context, noteID string) error {
	return r.db.WithContext(ctx).Where(queryJobNoteID, noteID).Delete(&JobRow{}).Error
}
