package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/apperr"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/notes"
	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/storage"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingNotes      = errors.New("notes dependency is required")
	errMissingBlobs      = errors.New("blob store is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew      = "audio.service.new"
	opUploadAudio     = "audio.upload_audio"
	opGetJob          = "audio.get_job"
	opLatestJob       = "audio.latest_job"
	opListJobs        = "audio.list_jobs"
	opTransition      = "audio.transition"
	opPurgeNoteAudio  = "audio.purge_note_audio"
	fieldJobID        = "job_id"
	fieldNoteID       = "note_id"
	fieldAudioPath    = "audio_path"
	defaultExtension  = "webm"
	maxExtensionRunes = 8
)

// NoteFinder resolves the owning note of an upload or job.
type NoteFinder interface {
	GetNote(ctx context.Context, id string) (notes.Note, error)
}

// BlobWriter stores and removes uploaded audio.
type BlobWriter interface {
	Put(ctx context.Context, key string, body io.Reader) (string, error)
	Delete(ctx context.Context, key string) error
}

// Upload is an incoming audio file. ContentType is the MIME type declared by the client.
type Upload struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// ServiceConfig wires the audio service. Clock and Logger are optional.
type ServiceConfig struct {
	Database   *gorm.DB
	Notes      NoteFinder
	Blobs      BlobWriter
	Clock      func() time.Time
	IDProvider notes.IDProvider
	Logger     *zap.Logger
}

// Service manages audio uploads and job records.
type Service struct {
	repository *Repository
	notes      NoteFinder
	blobs      BlobWriter
	clock      func() time.Time
	idProvider notes.IDProvider
	logger     *zap.Logger
}

// NewService validates cfg and binds the job repository to its database.
func NewService(cfg ServiceConfig) (*Service, error) {
	repository, err := NewRepository(cfg.Database)
	if err != nil {
		return nil, apperr.Internal(opServiceNew, "missing_database", err)
	}
	if cfg.Notes == nil {
		return nil, apperr.Internal(opServiceNew, "missing_notes", errMissingNotes)
	}
	if cfg.Blobs == nil {
		return nil, apperr.Internal(opServiceNew, "missing_blobs", errMissingBlobs)
	}
	if cfg.IDProvider == nil {
		return nil, apperr.Internal(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		repository: repository,
		notes:      cfg.Notes,
		blobs:      cfg.Blobs,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// UploadAudio stores the blob for an existing note and records a pending job.
// The blob is written first; a failed job insert leaves it orphaned.
func (s *Service) UploadAudio(ctx context.Context, rawNoteID string, upload Upload) (AudioJob, error) {
	noteID, err := notes.NewNoteID(rawNoteID)
	if err != nil {
		return AudioJob{}, apperr.Validation(opUploadAudio, "invalid_note_id", "note id is required")
	}
	if upload.Body == nil {
		return AudioJob{}, apperr.Validation(opUploadAudio, "missing_file", "audio file is required")
	}

	if _, err := s.notes.GetNote(ctx, noteID.String()); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return AudioJob{}, apperr.Validation(opUploadAudio, "note_not_found", "note not found")
		}
		return AudioJob{}, err
	}

	now := s.clock().UTC()
	key := fmt.Sprintf("%s/%d.%s", noteID.String(), now.UnixMilli(), blobExtension(upload))
	storedPath, err := s.blobs.Put(ctx, key, upload.Body)
	if err != nil {
		s.logError(opUploadAudio, "blob_put_failed", err, zap.String(fieldNoteID, noteID.String()), zap.String(fieldAudioPath, key))
		return AudioJob{}, apperr.New(apperr.KindInternal, opUploadAudio, "blob_put_failed", "failed to upload audio", err)
	}

	jobID, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opUploadAudio, "id_generation_failed", err, zap.String(fieldNoteID, noteID.String()))
		return AudioJob{}, apperr.Internal(opUploadAudio, "id_generation_failed", err)
	}

	job, err := s.repository.Create(ctx, JobRow{
		ID:        jobID,
		NoteID:    noteID.String(),
		Status:    string(JobStatusPending),
		AudioPath: storedPath,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		s.logError(opUploadAudio, "insert_failed", err,
			zap.String(fieldNoteID, noteID.String()),
			zap.String(fieldAudioPath, storedPath))
		return AudioJob{}, apperr.Internal(opUploadAudio, "insert_failed", err)
	}

	s.logger.Info("audio uploaded",
		zap.String(fieldJobID, job.ID),
		zap.String(fieldNoteID, job.NoteID),
		zap.String(fieldAudioPath, job.AudioPath))
	return job, nil
}

// GetJob returns the job or a not-found error.
func (s *Service) GetJob(ctx context.Context, rawID string) (AudioJob, error) {
	id, err := NewJobID(rawID)
	if err != nil {
		return AudioJob{}, apperr.Validation(opGetJob, "invalid_id", "audio job id is required")
	}
	job, found, err := s.repository.FindByID(ctx, id)
	if err != nil {
		s.logError(opGetJob, "query_failed", err, zap.String(fieldJobID, id.String()))
		return AudioJob{}, apperr.Internal(opGetJob, "query_failed", err)
	}
	if !found {
		return AudioJob{}, apperr.NotFound(opGetJob, "not_found", "audio job not found")
	}
	return job, nil
}

// LatestJobForNote returns the most recently created job of the note.
func (s *Service) LatestJobForNote(ctx context.Context, rawNoteID string) (AudioJob, error) {
	noteID, err := notes.NewNoteID(rawNoteID)
	if err != nil {
		return AudioJob{}, apperr.Validation(opLatestJob, "invalid_note_id", "note id is required")
	}
	job, found, err := s.repository.FindLatestByNoteID(ctx, noteID.String())
	if err != nil {
		s.logError(opLatestJob, "query_failed", err, zap.String(fieldNoteID, noteID.String()))
		return AudioJob{}, apperr.Internal(opLatestJob, "query_failed", err)
	}
	if !found {
		return AudioJob{}, apperr.NotFound(opLatestJob, "not_found", "no audio job found for this note")
	}
	return job, nil
}

// ListJobsForNote returns all jobs of the note, newest first.
func (s *Service) ListJobsForNote(ctx context.Context, rawNoteID string) ([]AudioJob, error) {
	noteID, err := notes.NewNoteID(rawNoteID)
	if err != nil {
		return nil, apperr.Validation(opListJobs, "invalid_note_id", "note id is required")
	}
	jobs, err := s.repository.ListByNoteID(ctx, noteID.String())
	if err != nil {
		s.logError(opListJobs, "query_failed", err, zap.String(fieldNoteID, noteID.String()))
		return nil, apperr.Internal(opListJobs, "query_failed", err)
	}
	return jobs, nil
}

// TransitionStatus moves the job to target if its current status allows it,
// and returns a conflict error otherwise.
func (s *Service) TransitionStatus(ctx context.Context, rawID string, target JobStatus) (AudioJob, error) {
	id, err := NewJobID(rawID)
	if err != nil {
		return AudioJob{}, apperr.Validation(opTransition, "invalid_id", "audio job id is required")
	}
	job, applied, found, err := s.repository.Transition(ctx, id, target, s.clock().UTC())
	if err != nil {
		s.logError(opTransition, "update_failed", err, zap.String(fieldJobID, id.String()), zap.String("status", string(target)))
		return AudioJob{}, apperr.Internal(opTransition, "update_failed", err)
	}
	if !found {
		return AudioJob{}, apperr.NotFound(opTransition, "not_found", "audio job not found")
	}
	if !applied {
		return job, apperr.Conflict(opTransition, "invalid_transition",
			fmt.Sprintf("audio job is %s and cannot move to %s", job.Status, target))
	}
	return job, nil
}

// PurgeNoteAudio deletes the blobs and job rows of a note.
func (s *Service) PurgeNoteAudio(ctx context.Context, rawNoteID string) error {
	noteID, err := notes.NewNoteID(rawNoteID)
	if err != nil {
		return apperr.Validation(opPurgeNoteAudio, "invalid_note_id", "note id is required")
	}
	jobs, err := s.repository.ListByNoteID(ctx, noteID.String())
	if err != nil {
		s.logError(opPurgeNoteAudio, "query_failed", err, zap.String(fieldNoteID, noteID.String()))
		return apperr.Internal(opPurgeNoteAudio, "query_failed", err)
	}
	for _, job := range jobs {
		if err := s.blobs.Delete(ctx, job.AudioPath); err != nil {
			s.logError(opPurgeNoteAudio, "blob_delete_failed", err,
				zap.String(fieldJobID, job.ID),
				zap.String(fieldAudioPath, job.AudioPath))
			return apperr.Internal(opPurgeNoteAudio, "blob_delete_failed", err)
		}
	}
	if err := s.repository.DeleteByNoteID(ctx, noteID.String()); err != nil {
		s.logError(opPurgeNoteAudio, "delete_failed", err, zap.String(fieldNoteID, noteID.String()))
		return apperr.Internal(opPurgeNoteAudio, "delete_failed", err)
	}
	return nil
}

// blobExtension prefers the declared audio content type, since the stored extension
// decides the MIME type sent for transcription, and falls back to the filename.
func blobExtension(upload Upload) string {
	if ext := storage.ExtensionForContentType(upload.ContentType); ext != "" {
		return ext
	}
	return fileExtension(upload.Filename)
}

func fileExtension(filename string) string {
	ext := strings.TrimPrefix(path.Ext(strings.TrimSpace(filename)), ".")
	if ext == "" || len([]rune(ext)) > maxExtensionRunes {
		return defaultExtension
	}
	for _, r := range ext {
		if !(r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9') {
			return defaultExtension
		}
	}
	return strings.ToLower(ext)
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("audio service error", attrs...)
}
