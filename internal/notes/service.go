package notes

import (
	"context"
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/voicenotes/backend/internal/apperr"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew  = "notes.service.new"
	opCreateNote  = "notes.create_note"
	opGetNote     = "notes.get_note"
	opListNotes   = "notes.list_notes"
	opUpdateNote  = "notes.update_note"
	opDeleteNote  = "notes.delete_note"
	fieldNoteID   = "note_id"
	msgNotFound   = "note not found"
	msgInvalidID  = "note id is required"
	msgInvalidTyp = `invalid note type, must be "text" or "voice"`
)

type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service validates note requests and delegates persistence to the Repository.
type Service struct {
	repository *Repository
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

func NewService(cfg ServiceConfig) (*Service, error) {
	repository, err := NewRepository(cfg.Database)
	if err != nil {
		return nil, apperr.Internal(opServiceNew, "missing_database", err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	if cfg.IDProvider == nil {
		return nil, apperr.Internal(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		repository: repository,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// CreateNote validates the type and inserts a new note.
func (s *Service) CreateNote(ctx context.Context, input CreateInput) (Note, error) {
	noteType, err := ParseNoteType(input.Type)
	if err != nil {
		return Note{}, apperr.Validation(opCreateNote, "invalid_type", msgInvalidTyp)
	}

	id, err := s.idProvider.NewID()
	if err != nil {
		s.logError(opCreateNote, "id_generation_failed", err)
		return Note{}, apperr.Internal(opCreateNote, "id_generation_failed", err)
	}

	row := NoteRow{
		ID:        id,
		Type:      string(noteType),
		Title:     nullableString(input.Title),
		Content:   nullableString(input.Content),
		Summary:   nil,
		CreatedAt: s.clock().UTC(),
	}
	note, err := s.repository.Create(ctx, row)
	if err != nil {
		s.logError(opCreateNote, "insert_failed", err, zap.String(fieldNoteID, id))
		return Note{}, apperr.Internal(opCreateNote, "insert_failed", err)
	}
	return note, nil
}

// GetNote returns the note or a not-found error.
func (s *Service) GetNote(ctx context.Context, rawID string) (Note, error) {
	id, err := NewNoteID(rawID)
	if err != nil {
		return Note{}, apperr.Validation(opGetNote, "invalid_id", msgInvalidID)
	}
	note, found, err := s.repository.FindByID(ctx, id)
	if err != nil {
		s.logError(opGetNote, "query_failed", err, zap.String(fieldNoteID, id.String()))
		return Note{}, apperr.Internal(opGetNote, "query_failed", err)
	}
	if !found {
		return Note{}, apperr.NotFound(opGetNote, "not_found", msgNotFound)
	}
	return note, nil
}

// ListNotes returns all notes, newest first.
func (s *Service) ListNotes(ctx context.Context) ([]Note, error) {
	notes, err := s.repository.FindAll(ctx)
	if err != nil {
		s.logError(opListNotes, "query_failed", err)
		return nil, apperr.Internal(opListNotes, "query_failed", err)
	}
	return notes, nil
}

// UpdateNote applies a partial update. An empty update returns the current note.
func (s *Service) UpdateNote(ctx context.Context, rawID string, input UpdateInput) (Note, error) {
	id, err := NewNoteID(rawID)
	if err != nil {
		return Note{}, apperr.Validation(opUpdateNote, "invalid_id", msgInvalidID)
	}
	if input.IsEmpty() {
		return s.GetNote(ctx, id.String())
	}
	note, found, err := s.repository.Update(ctx, id, input)
	if err != nil {
		s.logError(opUpdateNote, "update_failed", err, zap.String(fieldNoteID, id.String()))
		return Note{}, apperr.Internal(opUpdateNote, "update_failed", err)
	}
	if !found {
		return Note{}, apperr.NotFound(opUpdateNote, "not_found", msgNotFound)
	}
	return note, nil
}

// DeleteNote removes the note; absent notes are not an error.
func (s *Service) DeleteNote(ctx context.Context, rawID string) error {
	id, err := NewNoteID(rawID)
	if err != nil {
		return apperr.Validation(opDeleteNote, "invalid_id", msgInvalidID)
	}
	if err := s.repository.Delete(ctx, id); err != nil {
		s.logError(opDeleteNote, "delete_failed", err, zap.String(fieldNoteID, id.String()))
		return apperr.Internal(opDeleteNote, "delete_failed", err)
	}
	return nil
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
	s.loggerOrDefault().Error("notes service error", attrs...)
}
