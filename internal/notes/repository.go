package notes

import (
	"context"
	"errors"

	"gorm.io/gorm"
)

const (
	queryNoteID      = "id = ?"
	orderNotesNewest = "created_at DESC, id DESC"
)

var errMissingDatabase = errors.New("notes: database handle is required")

// Repository reads and writes the notes table. Absence is reported through the
// found flag, never as an error.
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
func (r *Repository) Create(ctx context.Context, row NoteRow) (Note, error) {
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Note{}, err
	}
	return mapNoteRow(row), nil
}

// FindByID loads a single note.
func (r *Repository) FindByID(ctx context.Context, id NoteID) (Note, bool, error) {
	var row NoteRow
	err := r.db.WithContext(ctx).Where(queryNoteID, id.String()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Note{}, false, nil
	}
	if err != nil {
		return Note{}, false, err
	}
	return mapNoteRow(row), true, nil
}

// FindAll returns every note ordered newest first.
func (r *Repository) FindAll(ctx context.Context) ([]Note, error) {
	var rows []NoteRow
	if err := r.db.WithContext(ctx).Order(orderNotesNewest).Find(&rows).Error; err != nil {
		return nil, err
	}
	result := make([]Note, 0, len(rows))
	for _, row := range rows {
		result = append(result, mapNoteRow(row))
	}
	return result, nil
}

// Update writes the present fields of input and returns the stored note.
func (r *Repository) Update(ctx context.Context, id NoteID, input UpdateInput) (Note, bool, error) {
	columns := input.columns()
	if len(columns) == 0 {
		return r.FindByID(ctx, id)
	}

	var (
		updated NoteRow
		found   bool
	)
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&NoteRow{}).Where(queryNoteID, id.String()).Updates(columns)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return nil
		}
		if err := tx.Where(queryNoteID, id.String()).Take(&updated).Error; err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return Note{}, false, err
	}
	if !found {
		return Note{}, false, nil
	}
	return mapNoteRow(updated), true, nil
}

// Delete removes the note. Deleting an absent note is not an error.
func (r *Repository) Delete(ctx context.Context, id NoteID) error {
	return r.db.WithContext(ctx).Where(queryNoteID, id.String()).Delete(&NoteRow{}).Error
}
