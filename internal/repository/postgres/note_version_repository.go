package postgres

import (
	"context"
	"errors"
	"time"

	"notes-server/internal/domain"
	"notes-server/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type noteVersionRepository struct {
	db *gorm.DB
}

// Record locks the parent note so concurrent writers cannot pick the same number.
func (r *noteVersionRepository) Record(ctx context.Context, version *domain.NoteVersion) error {
	if _, err := uuid.Parse(version.NoteID); err != nil {
		return repository.ErrNotFound
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var note noteModel
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id").
			Where("id = ?", version.NoteID).
			First(&note).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return repository.ErrNotFound
			}
			return err
		}

		var last int
		if err := tx.Model(&noteVersionModel{}).
			Where("note_id = ?", version.NoteID).
			Select("COALESCE(MAX(number), 0)").
			Scan(&last).Error; err != nil {
			return err
		}

		if version.ID == "" {
			version.ID = uuid.New().String()
		}
		if version.RecordedAt.IsZero() {
			version.RecordedAt = time.Now().UTC()
		}
		version.Number = last + 1

		return tx.Omit(clause.Associations).Create(&noteVersionModel{
			ID:         version.ID,
			NoteID:     version.NoteID,
			Number:     version.Number,
			Content:    version.Content,
			RecordedAt: version.RecordedAt,
		}).Error
	})
}

func (r *noteVersionRepository) History(ctx context.Context, noteID string) ([]*domain.NoteVersion, error) {
	history := []*domain.NoteVersion{}
	if _, err := uuid.Parse(noteID); err != nil {
		return history, nil
	}

	var models []noteVersionModel
	if err := r.db.WithContext(ctx).Where("note_id = ?", noteID).Order("number ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	for i := range models {
		history = append(history, models[i].toDomain())
	}
	return history, nil
}
