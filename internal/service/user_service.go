package service

import (
	"context"
	"errors"
	"strings"

	apperrors "focusroom/internal/errors"
	"focusroom/internal/model"
	"focusroom/internal/repository"
)

type UserService struct {
	repo  *repository.UserRepository
	clock Clock
}

func NewUserService(repo *repository.UserRepository, clock Clock) *UserService {
	return &UserService{repo: repo, clock: clockOrDefault(clock)}
}

// UpsertUser creates a user, or updates the one registered under email.
func (s *UserService) UpsertUser(ctx context.Context, name, color, email string) (*model.User, *apperrors.APIError) {
	name = strings.TrimSpace(name)
	color = strings.TrimSpace(color)
	if name == "" {
		return nil, apperrors.Required("name")
	}
	if color == "" {
		return nil, apperrors.Required("color")
	}

	var emailPtr *string
	if normalized := strings.ToLower(strings.TrimSpace(email)); normalized != "" {
		emailPtr = &normalized
	}

	user, err := s.repo.Upsert(ctx, name, color, emailPtr, s.clock())
	if err != nil {
		return nil, storageError(err, "failed to save user")
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id string) (*model.User, *apperrors.APIError) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.Required("id")
	}
	user, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("user_not_found", "user not found")
	}
	if err != nil {
		return nil, storageError(err, "failed to get user")
	}
	return user, nil
}
