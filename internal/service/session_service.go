package service

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	apperrors "focusroom/internal/errors"
	"focusroom/internal/metrics"
	"focusroom/internal/model"
	"focusroom/internal/repository"
)

const maxStartAttempts = 3

// SessionService turns timer actions into focus session records and
// presence updates. Session history and presence are written independently:
// a failed session write never blocks the presence write.
type SessionService struct {
	repo     *repository.SessionRepository
	rooms    *RoomService
	presence *PresenceService
	clock    Clock
	logger   logrus.FieldLogger
	metrics  *metrics.Metrics
}

func NewSessionService(
	repo *repository.SessionRepository,
	rooms *RoomService,
	presence *PresenceService,
	clock Clock,
	logger logrus.FieldLogger,
) *SessionService {
	return &SessionService{
		repo:     repo,
		rooms:    rooms,
		presence: presence,
		clock:    clockOrDefault(clock),
		logger:   logger.WithField("component", "sessions"),
	}
}

func (s *SessionService) SetMetrics(m *metrics.Metrics) {
	s.metrics = m
}

// StartFocus opens a session for the user. A session the user left open is
// closed as not completed first, so a crashed client that never sent its end
// cannot lock the user out.
func (s *SessionService) StartFocus(ctx context.Context, userID, roomCode string) (*model.FocusSession, *apperrors.APIError) {
	userID = strings.TrimSpace(userID)
	roomCode = strings.TrimSpace(roomCode)
	if userID == "" {
		return nil, apperrors.Required("userId")
	}

	var room *model.Room
	if roomCode != "" {
		ensured, apiErr := s.rooms.EnsureRoom(ctx, roomCode, "")
		if apiErr != nil {
			return nil, apiErr
		}
		room = ensured
	}

	session, sessionErr := s.openSession(ctx, userID, room)

	if room != nil {
		if _, apiErr := s.presence.recordInRoom(ctx, room, userID, true); apiErr != nil {
			s.logger.WithFields(logrus.Fields{
				"room_code": room.RoomCode,
				"user_id":   userID,
				"error":     apiErr.Message,
			}).Warn("presence update after focus start failed")
		}
	}

	if sessionErr != nil {
		return nil, sessionErr
	}
	return session, nil
}

func (s *SessionService) openSession(ctx context.Context, userID string, room *model.Room) (*model.FocusSession, *apperrors.APIError) {
	logCtx := s.logger.WithField("user_id", userID)

	for attempt := 1; attempt <= maxStartAttempts; attempt++ {
		now := s.clock()
		session := &model.FocusSession{
			ID:        uuid.NewString(),
			UserID:    userID,
			StartTime: now,
		}
		if room != nil {
			roomID := room.ID
			session.RoomID = &roomID
		}

		err := s.repo.Create(ctx, session)
		if err == nil {
			return session, nil
		}

		switch {
		case errors.Is(err, repository.ErrConflict):
			stale, closeErr := s.repo.CloseOpenForUser(ctx, userID, now)
			if closeErr != nil {
				logCtx.WithError(closeErr).Error("close stale session failed")
				return nil, storageError(closeErr, "failed to close stale session")
			}
			for _, closed := range stale {
				logCtx.WithFields(logrus.Fields{
					"session_id": closed.ID,
					"duration":   closed.Duration,
					"attempt":    attempt,
				}).Warn("closed stale open session before starting a new one")
				s.metrics.StaleSessionClosed()
				s.releaseStaleRoom(ctx, closed, room)
			}
		case errors.Is(err, repository.ErrUnknownReference):
			return nil, apperrors.NotFound("user_not_found", "user not found")
		default:
			logCtx.WithError(err).Error("create focus session failed")
			return nil, storageError(err, "failed to create focus session")
		}
	}

	return nil, apperrors.Conflict("session_conflict", "another focus session was started concurrently").
		WithDetails(map[string]interface{}{"userId": userID, "attempts": maxStartAttempts})
}

// releaseStaleRoom marks the user idle in the room of a stale session when
// that room differs from the one the new session starts in.
func (s *SessionService) releaseStaleRoom(ctx context.Context, stale model.FocusSession, current *model.Room) {
	if stale.RoomID == nil || (current != nil && current.ID == *stale.RoomID) {
		return
	}
	room, err := s.rooms.byID(ctx, *stale.RoomID)
	if err != nil {
		s.logger.WithError(err).WithField("room_id", *stale.RoomID).Warn("lookup stale session room failed")
		return
	}
	if _, apiErr := s.presence.recordInRoom(ctx, room, stale.UserID, false); apiErr != nil {
		s.logger.WithField("room_code", room.RoomCode).Warn("release stale room presence failed: " + apiErr.Message)
	}
}

// CloseFocus ends a session. Closing an already-closed session returns the
// stored record unchanged.
func (s *SessionService) CloseFocus(ctx context.Context, sessionID string) (*model.FocusSession, *apperrors.APIError) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, apperrors.Required("sessionId")
	}
	logCtx := s.logger.WithField("session_id", sessionID)

	closed, err := s.repo.Close(ctx, sessionID, s.clock(), true)
	if errors.Is(err, repository.ErrNotFound) {
		existing, getErr := s.repo.GetByID(ctx, sessionID)
		if errors.Is(getErr, repository.ErrNotFound) {
			return nil, apperrors.NotFound("session_not_found", "session not found")
		}
		if getErr != nil {
			return nil, storageError(getErr, "failed to read session")
		}
		logCtx.Debug("duplicate close ignored")
		return existing, nil
	}
	if err != nil {
		logCtx.WithError(err).Error("close focus session failed")
		return nil, storageError(err, "failed to close focus session")
	}

	if closed.RoomID != nil {
		room, roomErr := s.rooms.byID(ctx, *closed.RoomID)
		if roomErr != nil {
			logCtx.WithError(roomErr).Warn("lookup session room failed")
		} else if _, apiErr := s.presence.recordInRoom(ctx, room, closed.UserID, false); apiErr != nil {
			logCtx.WithField("room_code", room.RoomCode).Warn("presence update after focus end failed: " + apiErr.Message)
		}
	}
	return closed, nil
}

func (s *SessionService) ListUserSessions(ctx context.Context, userID string, limit int) ([]model.FocusSession, *apperrors.APIError) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.Required("userId")
	}
	sessions, err := s.repo.ListByUser(ctx, userID, normalizeLimit(limit))
	if err != nil {
		return nil, storageError(err, "failed to list sessions")
	}
	return sessions, nil
}

func (s *SessionService) ListRoomSessions(ctx context.Context, roomCode string, limit int) ([]model.FocusSession, *apperrors.APIError) {
	room, apiErr := s.rooms.lookup(ctx, roomCode)
	if apiErr != nil {
		return nil, apiErr
	}
	if room == nil {
		return []model.FocusSession{}, nil
	}
	sessions, err := s.repo.ListByRoom(ctx, room.ID, normalizeLimit(limit))
	if err != nil {
		return nil, storageError(err, "failed to list room sessions")
	}
	return sessions, nil
}

func (s *SessionService) UserStats(ctx context.Context, userID string) (*model.UserStats, *apperrors.APIError) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, apperrors.Required("userId")
	}
	stats, err := s.repo.Stats(ctx, userID)
	if err != nil {
		return nil, storageError(err, "failed to compute stats")
	}
	return stats, nil
}
