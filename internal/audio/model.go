package audio

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// JobStatus represents the lifecycle stage of an audio job.
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusDone       JobStatus = "done"
	JobStatusFailed     JobStatus = "failed"
)

// IsTerminal reports whether no further transition is allowed.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusFailed
}

// allowedPredecessors lists the statuses a job may hold before moving to target.
func allowedPredecessors(target JobStatus) []JobStatus {
	switch target {
	case JobStatusProcessing:
		return []JobStatus{JobStatusPending}
	case JobStatusDone, JobStatusFailed:
		return []JobStatus{JobStatusProcessing}
	default:
		return nil
	}
}

const maxIdentifierLength = 190

// ErrInvalidJobID indicates that a job identifier is empty or exceeds storage bounds.
var ErrInvalidJobID = errors.New("audio: invalid job id")

// JobID represents a validated audio job identifier.
type JobID string

// NewJobID validates raw input and returns a JobID.
func NewJobID(rawInput string) (JobID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidJobID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidJobID, maxIdentifierLength)
	}
	return JobID(trimmed), nil
}

// String returns the underlying string identifier.
func (id JobID) String() string {
	return string(id)
}

// AudioJob tracks one uploaded blob through transcription and summarization.
type AudioJob struct {
	ID        string    `json:"id"`
	NoteID    string    `json:"note_id"`
	Status    JobStatus `json:"status"`
	AudioPath string    `json:"audio_path"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// JobRow is the persisted shape of an audio job.
type JobRow struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	NoteID    string    `gorm:"column:note_id;size:190;not null;index:idx_audio_jobs_note_created,priority:1"`
	Status    string    `gorm:"column:status;size:16;not null;default:pending"`
	AudioPath string    `gorm:"column:audio_path;size:512;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index:idx_audio_jobs_note_created,priority:2"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

// TableName provides the explicit table binding for GORM.
func (JobRow) TableName() string {
	return "audio_jobs"
}

func mapJobRow(row JobRow) AudioJob {
	return AudioJob{
		ID:        row.ID,
		NoteID:    row.NoteID,
		Status:    JobStatus(row.Status),
		AudioPath: row.AudioPath,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}
