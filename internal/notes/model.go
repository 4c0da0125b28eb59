package notes

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// NoteType enumerates the supported note kinds.
type NoteType string

const (
	// NoteTypeText is a note authored as text.
	NoteTypeText NoteType = "text"
	// NoteTypeVoice is a note whose content comes from transcribed audio.
	NoteTypeVoice NoteType = "voice"
)

// ParseNoteType validates raw input against the supported note kinds.
func ParseNoteType(raw string) (NoteType, error) {
	switch NoteType(raw) {
	case NoteTypeText, NoteTypeVoice:
		return NoteType(raw), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidNoteType, raw)
	}
}

const maxIdentifierLength = 190

var (
	// ErrInvalidNoteID indicates that a note identifier is empty or exceeds storage bounds.
	ErrInvalidNoteID = errors.New("notes: invalid note id")
	// ErrInvalidNoteType indicates a type outside {text, voice}.
	ErrInvalidNoteType = errors.New("notes: invalid note type")
)

// NoteID represents a validated note identifier.
type NoteID string

// NewNoteID validates raw input and returns a NoteID.
func NewNoteID(rawInput string) (NoteID, error) {
	trimmed := strings.TrimSpace(rawInput)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidNoteID)
	}
	if len(trimmed) > maxIdentifierLength {
		return "", fmt.Errorf("%w: exceeds %d characters", ErrInvalidNoteID, maxIdentifierLength)
	}
	return NoteID(trimmed), nil
}

// String returns the underlying string identifier.
func (id NoteID) String() string {
	return string(id)
}

// Note is the domain record returned to callers.
type Note struct {
	ID        string    `json:"id"`
	Type      NoteType  `json:"type"`
	Title     *string   `json:"title"`
	Content   *string   `json:"content"`
	Summary   *string   `json:"summary"`
	CreatedAt time.Time `json:"created_at"`
}

// NoteRow is the persisted shape of a note.
type NoteRow struct {
	ID        string    `gorm:"column:id;primaryKey;size:190;not null"`
	Type      string    `gorm:"column:type;size:16;not null"`
	Title     *string   `gorm:"column:title;type:text"`
	Content   *string   `gorm:"column:content;type:text"`
	Summary   *string   `gorm:"column:summary;type:text"`
	CreatedAt time.Time `gorm:"column:created_at;not null;index:idx_notes_created"`
}

// TableName provides the explicit table binding for GORM.
func (NoteRow) TableName() string {
	return "notes"
}

func mapNoteRow(row NoteRow) Note {
	return Note{
		ID:        row.ID,
		Type:      NoteType(row.Type),
		Title:     row.Title,
		Content:   row.Content,
		Summary:   row.Summary,
		CreatedAt: row.CreatedAt.UTC(),
	}
}

// CreateInput describes a new note. Empty title or content is stored as NULL.
type CreateInput struct {
	Type    string
	Title   string
	Content string
}

// UpdateInput is a partial update: only present fields are written.
type UpdateInput struct {
	Title   OptionalString `json:"title"`
	Content OptionalString `json:"content"`
	Summary OptionalString `json:"summary"`
}

// IsEmpty reports whether no field is present.
func (input UpdateInput) IsEmpty() bool {
	return !input.Title.Present && !input.Content.Present && !input.Summary.Present
}

func (input UpdateInput) columns() map[string]any {
	columns := map[string]any{}
	if input.Title.Present {
		columns["title"] = input.Title.stored()
	}
	if input.Content.Present {
		columns["content"] = input.Content.stored()
	}
	if input.Summary.Present {
		columns["summary"] = input.Summary.stored()
	}
	return columns
}

func nullableString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
