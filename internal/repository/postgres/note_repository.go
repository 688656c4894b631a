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

type noteRepository struct {
	db *gorm.DB
	// lock makes FindByID take a row lock held until the surrounding transaction ends.
	lock bool
}

type shareRow struct {
	NoteID   string
	UserID   string
	Username string
}

func (r *noteRepository) Create(ctx context.Context, note *domain.Note) error {
	if note.ID == "" {
		note.ID = uuid.New().String()
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(toNoteModel(note)).Error
}

func (r *noteRepository) FindByID(ctx context.Context, id string) (*domain.Note, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, repository.ErrNotFound
	}

	q := r.db.WithContext(ctx)
	if r.lock {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var m noteModel
	if err := q.Where("id = ?", id).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}

	notes, err := r.hydrate(ctx, []noteModel{m})
	if err != nil {
		return nil, err
	}
	return notes[0], nil
}

func (r *noteRepository) ListAccessible(ctx context.Context, userID string) ([]*domain.Note, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return []*domain.Note{}, nil
	}

	shared := r.db.Model(&noteShareModel{}).Select("note_id").Where("user_id = ?", userID)

	var models []noteModel
	err := r.db.WithContext(ctx).
		Where("owner_id = ? OR id IN (?)", userID, shared).
		Order("updated_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	return r.hydrate(ctx, models)
}

func (r *noteRepository) Update(ctx context.Context, note *domain.Note) error {
	res := r.db.WithContext(ctx).Model(&noteModel{}).Where("id = ?", note.ID).Updates(map[string]any{
		"title":      note.Title,
		"content":    note.Content,
		"updated_at": note.UpdatedAt,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// Delete removes versions and shares explicitly so the result does not depend on
// the foreign keys having been created with ON DELETE CASCADE.
func (r *noteRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return repository.ErrNotFound
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("note_id = ?", id).Delete(&noteVersionModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("note_id = ?", id).Delete(&noteShareModel{}).Error; err != nil {
			return err
		}
		res := tx.Where("id = ?", id).Delete(&noteModel{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return repository.ErrNotFound
		}
		return nil
	})
}

func (r *noteRepository) AddShares(ctx context.Context, noteID string, users []domain.UserRef) error {
	var note noteModel
	if err := r.db.WithContext(ctx).Select("id", "owner_id").Where("id = ?", noteID).First(&note).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return repository.ErrNotFound
		}
		return err
	}

	now := time.Now().UTC()
	rows := make([]noteShareModel, 0, len(users))
	for i, u := range users {
		if u.ID == note.OwnerID {
			continue
		}
		rows = append(rows, noteShareModel{
			NoteID:    noteID,
			UserID:    u.ID,
			CreatedAt: now.Add(time.Duration(i) * time.Microsecond),
		})
	}
	if len(rows) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&rows).Error
}

// hydrate attaches owner and share list to each model, keeping the models' order.
func (r *noteRepository) hydrate(ctx context.Context, models []noteModel) ([]*domain.Note, error) {
	notes := make([]*domain.Note, 0, len(models))
	if len(models) == 0 {
		return notes, nil
	}

	noteIDs := make([]string, 0, len(models))
	ownerIDs := make([]string, 0, len(models))
	for _, m := range models {
		noteIDs = append(noteIDs, m.ID)
		ownerIDs = append(ownerIDs, m.OwnerID)
	}

	var owners []userModel
	if err := r.db.WithContext(ctx).Select("id", "username").Where("id IN ?", ownerIDs).Find(&owners).Error; err != nil {
		return nil, err
	}
	ownerByID := make(map[string]domain.UserRef, len(owners))
	for _, o := range owners {
		ownerByID[o.ID] = domain.UserRef{ID: o.ID, Username: o.Username}
	}

	var rows []shareRow
	err := r.db.WithContext(ctx).
		Table("note_shares").
		Select("note_shares.note_id, users.id AS user_id, users.username").
		Joins("JOIN users ON users.id = note_shares.user_id").
		Where("note_shares.note_id IN ?", noteIDs).
		Order("note_shares.created_at, users.username").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	sharesByNote := make(map[string][]domain.UserRef, len(models))
	for _, row := range rows {
		sharesByNote[row.NoteID] = append(sharesByNote[row.NoteID], domain.UserRef{ID: row.UserID, Username: row.Username})
	}

	for i := range models {
		notes = append(notes, models[i].toDomain(ownerByID[models[i].OwnerID], sharesByNote[models[i].ID]))
	}
	return notes, nil
}
