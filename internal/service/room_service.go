package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "focusroom/internal/errors"
	"focusroom/internal/model"
	"focusroom/internal/repository"
)

const roomCodeLength = 12

// RoomService is the room directory: shareable codes to durable rooms.
type RoomService struct {
	repo   *repository.RoomRepository
	clock  Clock
	logger logrus.FieldLogger
}

func NewRoomService(repo *repository.RoomRepository, clock Clock, logger logrus.FieldLogger) *RoomService {
	return &RoomService{
		repo:   repo,
		clock:  clockOrDefault(clock),
		logger: logger.WithField("component", "rooms"),
	}
}

// NewRoomCode returns a URL-safe random code.
func NewRoomCode() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:roomCodeLength]
}

func DefaultRoomName(code string) string {
	short := code
	if len(short) > 6 {
		short = short[:6]
	}
	return "Room " + short
}

// EnsureRoom returns the room for code, creating it on first reference.
// Repeated calls return the same identity and never rename the room.
func (s *RoomService) EnsureRoom(ctx context.Context, code, defaultName string) (*model.Room, *apperrors.APIError) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.Required("roomCode")
	}
	name := strings.TrimSpace(defaultName)
	if name == "" {
		name = DefaultRoomName(code)
	}

	room, err := s.repo.UpsertByCode(ctx, code, name, s.clock())
	if err != nil {
		s.logger.WithError(err).WithField("room_code", code).Error("ensure room failed")
		return nil, storageError(err, "failed to ensure room")
	}
	return room, nil
}

// CreateRoom is EnsureRoom with a generated code when none is given.
func (s *RoomService) CreateRoom(ctx context.Context, code, name string) (*model.Room, *apperrors.APIError) {
	if strings.TrimSpace(code) == "" {
		code = NewRoomCode()
	}
	return s.EnsureRoom(ctx, code, name)
}

func (s *RoomService) GetRoom(ctx context.Context, code string) (*model.Room, *apperrors.APIError) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, apperrors.Required("roomCode")
	}
	room, err := s.repo.GetByCode(ctx, code)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperrors.NotFound("room_not_found", "room not found")
	}
	if err != nil {
		return nil, storageError(err, "failed to get room")
	}
	return room, nil
}

// lookup returns nil without error when the room does not exist.
func (s *RoomService) lookup(ctx context.Context, code string) (*model.Room, *apperrors.APIError) {
	room, apiErr := s.GetRoom(ctx, code)
	if apiErr != nil && apiErr.Code == "room_not_found" {
		return nil, nil
	}
	return room, apiErr
}

func (s *RoomService) byID(ctx context.Context, id string) (*model.Room, error) {
	return s.repo.GetByID(ctx, id)
}
