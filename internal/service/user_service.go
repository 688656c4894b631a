package service

import (
	"context"
	"errors"
	"fmt"

	"notes-server/internal/domain"
	"notes-server/internal/repository"
)

type UserService struct {
	userRepo repository.UserRepository
}

func NewUserService(userRepo repository.UserRepository) *UserService {
	return &UserService{
		userRepo: userRepo,
	}
}

func (s *UserService) GetByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, notFoundError("User not found.")
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	user.Password = ""
	return user, nil
}
