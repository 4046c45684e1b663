package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	apperrors "focusroom/internal/errors"
	"focusroom/internal/model"
	"focusroom/internal/repository"
)

const DefaultLivenessWindow = 5 * time.Minute

// Notifier receives every successful presence write. The push hub
// implements it so that connected clients see changes made over HTTP.
type Notifier interface {
	MemberJoined(roomCode string, member model.MemberView)
	MemberUpdated(roomCode string, member model.MemberView)
	MemberLeft(roomCode, userID string)
}

type nopNotifier struct{}

func (nopNotifier) MemberJoined(string, model.MemberView)  {}
func (nopNotifier) MemberUpdated(string, model.MemberView) {}
func (nopNotifier) MemberLeft(string, string)              {}

// PresenceService owns the presence table. RecordStatus, Join, Heartbeat
// and Leave are its only write paths; ListLive is a pure read-time filter.
type PresenceService struct {
	rooms    *RoomService
	users    *repository.UserRepository
	members  *repository.MemberRepository
	window   time.Duration
	clock    Clock
	logger   logrus.FieldLogger
	notifier Notifier
}

type JoinInput struct {
	RoomCode    string
	UserID      string
	DisplayName string
	Color       string
	IsFocusing  bool
	// FocusStartTime is unix milliseconds.
	FocusStartTime *int64
	// TotalFocusTime is whole seconds; a join resets the stored total to it.
	TotalFocusTime int64
}

func NewPresenceService(
	rooms *RoomService,
	users *repository.UserRepository,
	members *repository.MemberRepository,
	window time.Duration,
	clock Clock,
	logger logrus.FieldLogger,
) *PresenceService {
	if window <= 0 {
		window = DefaultLivenessWindow
	}
	return &PresenceService{
		rooms:    rooms,
		users:    users,
		members:  members,
		window:   window,
		clock:    clockOrDefault(clock),
		logger:   logger.WithField("component", "presence"),
		notifier: nopNotifier{},
	}
}

// SetNotifier must be called before the service handles traffic.
func (s *PresenceService) SetNotifier(n Notifier) {
	if n == nil {
		n = nopNotifier{}
	}
	s.notifier = n
}

func (s *PresenceService) Join(ctx context.Context, in JoinInput) (*model.MemberView, *apperrors.APIError) {
	in.RoomCode = strings.TrimSpace(in.RoomCode)
	in.UserID = strings.TrimSpace(in.UserID)
	if in.RoomCode == "" {
		return nil, apperrors.Required("roomCode")
	}
	if in.UserID == "" {
		return nil, apperrors.Required("userId")
	}
	if in.TotalFocusTime < 0 {
		return nil, apperrors.BadRequest("invalid_total_focus_time", "totalFocusTime must not be negative")
	}

	room, apiErr := s.rooms.EnsureRoom(ctx, in.RoomCode, "")
	if apiErr != nil {
		return nil, apiErr
	}

	now := s.clock()
	if _, err := s.users.Ensure(ctx, in.UserID, strings.TrimSpace(in.DisplayName), strings.TrimSpace(in.Color), now); err != nil {
		s.logger.WithError(err).WithField("user_id", in.UserID).Error("ensure user failed")
		return nil, storageError(err, "failed to register user")
	}

	var focusStart *time.Time
	if in.IsFocusing && in.FocusStartTime != nil {
		start := time.UnixMilli(*in.FocusStartTime).UTC()
		if start.After(now) {
			start = now
		}
		focusStart = &start
	}

	member, err := s.members.Join(ctx, repository.JoinParams{
		UserID:         in.UserID,
		RoomID:         room.ID,
		IsFocusing:     in.IsFocusing,
		FocusStartTime: focusStart,
		TotalFocusTime: in.TotalFocusTime,
		Now:            now,
	})
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"room_code": in.RoomCode, "user_id": in.UserID}).Error("join failed")
		return nil, storageError(err, "failed to join room")
	}

	view := model.NewMemberView(*member, now)
	s.notifier.MemberJoined(room.RoomCode, view)
	return &view, nil
}

// RecordStatus is the status write path. It creates the room and member row
// lazily and never depends on a session record existing.
func (s *PresenceService) RecordStatus(ctx context.Context, roomCode, userID string, isFocusing bool) (*model.MemberView, *apperrors.APIError) {
	roomCode = strings.TrimSpace(roomCode)
	userID = strings.TrimSpace(userID)
	if roomCode == "" {
		return nil, apperrors.Required("roomCode")
	}
	if userID == "" {
		return nil, apperrors.Required("userId")
	}

	room, apiErr := s.rooms.EnsureRoom(ctx, roomCode, "")
	if apiErr != nil {
		return nil, apiErr
	}
	return s.recordInRoom(ctx, room, userID, isFocusing)
}

func (s *PresenceService) recordInRoom(ctx context.Context, room *model.Room, userID string, isFocusing bool) (*model.MemberView, *apperrors.APIError) {
	now := s.clock()
	member, err := s.members.RecordStatus(ctx, userID, room.ID, isFocusing, now)
	if errors.Is(err, repository.ErrUnknownReference) {
		return nil, apperrors.NotFound("user_not_found", "user not found")
	}
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"room_code":   room.RoomCode,
			"user_id":     userID,
			"is_focusing": isFocusing,
		}).Error("record status failed")
		return nil, storageError(err, "failed to record status")
	}

	view := model.NewMemberView(*member, now)
	s.notifier.MemberUpdated(room.RoomCode, view)
	return &view, nil
}

// Heartbeat refreshes liveness without changing status.
func (s *PresenceService) Heartbeat(ctx context.Context, roomCode, userID string) *apperrors.APIError {
	if strings.TrimSpace(roomCode) == "" {
		return apperrors.Required("roomCode")
	}
	if strings.TrimSpace(userID) == "" {
		return apperrors.Required("userId")
	}

	room, apiErr := s.rooms.lookup(ctx, roomCode)
	if apiErr != nil {
		return apiErr
	}
	if room == nil {
		return apperrors.NotFound("member_not_found", "member not found")
	}

	ok, err := s.members.Touch(ctx, userID, room.ID, s.clock())
	if err != nil {
		return storageError(err, "failed to record heartbeat")
	}
	if !ok {
		return apperrors.NotFound("member_not_found", "member not found")
	}
	return nil
}

// Leave soft-removes the member. Leaving an unknown room or as an unknown
// member succeeds.
func (s *PresenceService) Leave(ctx context.Context, roomCode, userID string) *apperrors.APIError {
	roomCode = strings.TrimSpace(roomCode)
	userID = strings.TrimSpace(userID)
	if roomCode == "" {
		return apperrors.Required("roomCode")
	}
	if userID == "" {
		return apperrors.Required("userId")
	}

	room, apiErr := s.rooms.lookup(ctx, roomCode)
	if apiErr != nil {
		return apiErr
	}
	if room == nil {
		return nil
	}

	if err := s.members.SoftLeave(ctx, userID, room.ID, s.clock()); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{"room_code": roomCode, "user_id": userID}).Error("leave failed")
		return storageError(err, "failed to leave room")
	}
	s.notifier.MemberLeft(room.RoomCode, userID)
	return nil
}

// ListLive returns members seen within the liveness window of asOf, most
// recently active first. An unknown room yields an empty snapshot.
func (s *PresenceService) ListLive(ctx context.Context, roomCode string, asOf time.Time) (*model.PresenceSnapshot, *apperrors.APIError) {
	return s.ListLiveWindow(ctx, roomCode, asOf, s.window)
}

func (s *PresenceService) ListLiveWindow(ctx context.Context, roomCode string, asOf time.Time, window time.Duration) (*model.PresenceSnapshot, *apperrors.APIError) {
	roomCode = strings.TrimSpace(roomCode)
	if roomCode == "" {
		return nil, apperrors.Required("roomCode")
	}
	if asOf.IsZero() {
		asOf = s.clock()
	}

	snapshot := &model.PresenceSnapshot{
		Members:  []model.MemberView{},
		RoomCode: roomCode,
		AsOf:     asOf.UnixMilli(),
	}

	room, apiErr := s.rooms.lookup(ctx, roomCode)
	if apiErr != nil {
		return nil, apiErr
	}
	if room == nil {
		return snapshot, nil
	}

	members, err := s.members.FindLive(ctx, room.ID, asOf.Add(-window))
	if err != nil {
		s.logger.WithError(err).WithField("room_code", roomCode).Warn("list live members failed")
		return nil, storageError(err, "failed to list room members")
	}
	for _, member := range members {
		snapshot.Members = append(snapshot.Members, model.NewMemberView(member, asOf))
	}
	return snapshot, nil
}
