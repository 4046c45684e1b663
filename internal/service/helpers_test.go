package service

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"focusroom/internal/db"
	"focusroom/internal/logging"
	"focusroom/internal/model"
	"focusroom/internal/repository"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) record(event string) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
}

func (n *recordingNotifier) MemberJoined(roomCode string, m model.MemberView) {
	n.record("joined:" + roomCode + ":" + m.ID)
}

func (n *recordingNotifier) MemberUpdated(roomCode string, m model.MemberView) {
	n.record("updated:" + roomCode + ":" + m.ID)
}

func (n *recordingNotifier) MemberLeft(roomCode, userID string) {
	n.record("left:" + roomCode + ":" + userID)
}

type fixture struct {
	db       *sql.DB
	clock    *fakeClock
	members  *repository.MemberRepository
	sessRepo *repository.SessionRepository
	rooms    *RoomService
	presence *PresenceService
	sessions *SessionService
	users    *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	_, currentFile, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(currentFile), "..", "..", "migrations")
	if _, err := db.RunMigrations(database, migrationsDir, logging.Discard()); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	clock := &fakeClock{now: baseTime}
	logger := logging.Discard()

	userRepo := repository.NewUserRepository(database)
	members := repository.NewMemberRepository(database)
	sessRepo := repository.NewSessionRepository(database)

	rooms := NewRoomService(repository.NewRoomRepository(database), clock.Now, logger)
	presence := NewPresenceService(rooms, userRepo, members, DefaultLivenessWindow, clock.Now, logger)

	return &fixture{
		db:       database,
		clock:    clock,
		members:  members,
		sessRepo: sessRepo,
		rooms:    rooms,
		presence: presence,
		sessions: NewSessionService(sessRepo, rooms, presence, clock.Now, logger),
		users:    NewUserService(userRepo, clock.Now),
	}
}

func (f *fixture) join(t *testing.T, roomCode, userID string) model.MemberView {
	t.Helper()
	view, apiErr := f.presence.Join(context.Background(), JoinInput{
		RoomCode:    roomCode,
		UserID:      userID,
		DisplayName: "name-" + userID,
		Color:       "#FF6B6B",
	})
	if apiErr != nil {
		t.Fatalf("join %s/%s: %v", roomCode, userID, apiErr)
	}
	return *view
}

func (f *fixture) live(t *testing.T, roomCode string) []model.MemberView {
	t.Helper()
	snapshot, apiErr := f.presence.ListLive(context.Background(), roomCode, f.clock.Now())
	if apiErr != nil {
		t.Fatalf("list live %s: %v", roomCode, apiErr)
	}
	for _, m := range snapshot.Members {
		if m.IsFocusing != (m.FocusStartTime != nil) {
			t.Fatalf("member %s: isFocusing=%v with focusStartTime=%v", m.ID, m.IsFocusing, m.FocusStartTime)
		}
	}
	return snapshot.Members
}
