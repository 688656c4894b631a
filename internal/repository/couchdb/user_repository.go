package couchdb

import (
	"context"
	"fmt"

	"notes-server/internal/domain"
	"notes-server/internal/repository"

	"github.com/go-kivik/kivik/v4"
	"github.com/google/uuid"
)

type userRepository struct {
	db *kivik.DB
}

// Create claims the username, then the email, then writes the user. A claim
// that already exists means the value is taken; claims made before a later
// failure are released.
func (r *userRepository) Create(ctx context.Context, user *domain.User) error {
	if user.ID == "" {
		user.ID = uuid.New().String()
	}

	usernameRev, err := r.claim(ctx, usernameClaimID(user.Username), user.ID, repository.ErrDuplicateUsername)
	if err != nil {
		return err
	}

	emailRev, err := r.claim(ctx, emailClaimID(user.Email), user.ID, repository.ErrDuplicateEmail)
	if err != nil {
		r.release(ctx, usernameClaimID(user.Username), usernameRev)
		return err
	}

	if _, err := r.db.Put(ctx, userDocID(user.ID), newUserDoc(user)); err != nil {
		r.release(ctx, usernameClaimID(user.Username), usernameRev)
		r.release(ctx, emailClaimID(user.Email), emailRev)
		if isConflict(err) {
			return repository.ErrDuplicateUser
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	return nil
}

func (r *userRepository) FindByID(ctx context.Context, id string) (*domain.User, error) {
	var doc userDoc
	if err := r.db.Get(ctx, userDocID(id)).ScanDoc(&doc); err != nil {
		if isNotFound(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	if doc.Type != typeUser {
		return nil, repository.ErrNotFound
	}
	return doc.toDomain(), nil
}

func (r *userRepository) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := map[string]any{
		"selector": map[string]any{
			"type":     typeUser,
			"username": username,
		},
		"limit": 1,
	}

	rows := r.db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query user by username: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("failed to query user by username: %w", err)
		}
		return nil, repository.ErrNotFound
	}

	var doc userDoc
	if err := rows.ScanDoc(&doc); err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return doc.toDomain(), nil
}

func (r *userRepository) FindByUsernames(ctx context.Context, usernames []string) (map[string]*domain.User, error) {
	found := make(map[string]*domain.User, len(usernames))
	if len(usernames) == 0 {
		return found, nil
	}

	query := map[string]any{
		"selector": map[string]any{
			"type":     typeUser,
			"username": map[string]any{"$in": usernames},
		},
		"limit": len(usernames),
	}

	rows := r.db.Find(ctx, query)
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query users by username: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var doc userDoc
		if err := rows.ScanDoc(&doc); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		found[doc.Username] = doc.toDomain()
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query users by username: %w", err)
	}
	return found, nil
}

func (r *userRepository) UsernameExists(ctx context.Context, username string) (bool, error) {
	return r.claimed(ctx, usernameClaimID(username))
}

func (r *userRepository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.claimed(ctx, emailClaimID(email))
}

func (r *userRepository) claim(ctx context.Context, id, userID string, taken error) (string, error) {
	rev, err := r.db.Put(ctx, id, &claimDoc{ID: id, Type: typeClaim, UserID: userID})
	if err != nil {
		if isConflict(err) {
			return "", taken
		}
		return "", fmt.Errorf("failed to reserve %s: %w", id, err)
	}
	return rev, nil
}

func (r *userRepository) release(ctx context.Context, id, rev string) {
	_, _ = r.db.Delete(ctx, id, rev)
}

func (r *userRepository) claimed(ctx context.Context, id string) (bool, error) {
	var doc claimDoc
	if err := r.db.Get(ctx, id).ScanDoc(&doc); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up %s: %w", id, err)
	}
	return true, nil
}
