package repository

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRecordStatusAccumulatesOnServer(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	roomID := seedUserAndRoom(t, database, "user-a", "R1")
	repo := NewMemberRepository(database)

	member, err := repo.Join(ctx, JoinParams{UserID: "user-a", RoomID: roomID, TotalFocusTime: 10, Now: baseTime})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if member.IsFocusing || member.FocusStartTime != nil || member.TotalFocusTime != 10 {
		t.Fatalf("unexpected joined member %+v", member)
	}
	if member.Name != "name-user-a" {
		t.Fatalf("expected joined user name, got %q", member.Name)
	}

	started, err := repo.RecordStatus(ctx, "user-a", roomID, true, baseTime.Add(time.Second))
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if !started.IsFocusing || started.FocusStartTime == nil {
		t.Fatalf("expected focusing member, got %+v", started)
	}

	// A repeated start keeps the original interval.
	again, err := repo.RecordStatus(ctx, "user-a", roomID, true, baseTime.Add(2*time.Second))
	if err != nil {
		t.Fatalf("repeat start: %v", err)
	}
	if !again.FocusStartTime.Equal(*started.FocusStartTime) {
		t.Fatalf("focus start moved from %s to %s", started.FocusStartTime, again.FocusStartTime)
	}

	paused, err := repo.RecordStatus(ctx, "user-a", roomID, false, baseTime.Add(time.Second+1500*time.Millisecond))
	if err != nil {
		t.Fatalf("pause: %v", err)
	}
	if paused.IsFocusing || paused.FocusStartTime != nil {
		t.Fatalf("expected idle member, got %+v", paused)
	}
	if paused.TotalFocusTime != 11 {
		t.Fatalf("expected 10+1 seconds, got %d", paused.TotalFocusTime)
	}

	// Idle to idle adds nothing.
	idle, err := repo.RecordStatus(ctx, "user-a", roomID, false, baseTime.Add(time.Hour))
	if err != nil {
		t.Fatalf("idle update: %v", err)
	}
	if idle.TotalFocusTime != 11 {
		t.Fatalf("total changed on idle update: %d", idle.TotalFocusTime)
	}
}

func TestFindLiveFiltersAndOrders(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	roomID := seedUserAndRoom(t, database, "user-a", "R1")
	seedUserAndRoom(t, database, "user-b", "R1")
	seedUserAndRoom(t, database, "user-c", "R1")
	repo := NewMemberRepository(database)

	for _, tc := range []struct {
		user string
		at   time.Time
	}{
		{"user-a", baseTime},
		{"user-b", baseTime.Add(2 * time.Minute)},
		{"user-c", baseTime.Add(-10 * time.Minute)},
	} {
		if _, err := repo.Join(ctx, JoinParams{UserID: tc.user, RoomID: roomID, Now: tc.at}); err != nil {
			t.Fatalf("join %s: %v", tc.user, err)
		}
	}

	live, err := repo.FindLive(ctx, roomID, baseTime.Add(2*time.Minute).Add(-5*time.Minute))
	if err != nil {
		t.Fatalf("find live: %v", err)
	}
	if len(live) != 2 {
		t.Fatalf("expected 2 live members, got %d", len(live))
	}
	if live[0].UserID != "user-b" || live[1].UserID != "user-a" {
		t.Fatalf("unexpected order %s, %s", live[0].UserID, live[1].UserID)
	}
}

func TestSoftLeaveKeepsRow(t *testing.T) {
	database := openTestDB(t)
	ctx := context.Background()
	roomID := seedUserAndRoom(t, database, "user-a", "R1")
	repo := NewMemberRepository(database)

	if _, err := repo.Join(ctx, JoinParams{UserID: "user-a", RoomID: roomID, IsFocusing: true, Now: baseTime}); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := repo.SoftLeave(ctx, "user-a", roomID, baseTime.Add(3*time.Second)); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if err := repo.SoftLeave(ctx, "user-a", roomID, baseTime.Add(4*time.Second)); err != nil {
		t.Fatalf("second leave: %v", err)
	}
	if err := repo.SoftLeave(ctx, "nobody", roomID, baseTime); err != nil {
		t.Fatalf("leave of missing member: %v", err)
	}

	live, err := repo.FindLive(ctx, roomID, baseTime.Add(-time.Hour))
	if err != nil {
		t.Fatalf("find live: %v", err)
	}
	if len(live) != 0 {
		t.Fatalf("expected no live members, got %d", len(live))
	}

	member, err := repo.Get(ctx, "user-a", roomID)
	if err != nil {
		t.Fatalf("direct read: %v", err)
	}
	if !member.LastActiveAt.Equal(LeftSentinel) {
		t.Fatalf("expected sentinel, got %s", member.LastActiveAt)
	}
	if member.IsFocusing || member.TotalFocusTime != 3 {
		t.Fatalf("unexpected left member %+v", member)
	}
}

func TestTouchMissingMember(t *testing.T) {
	database := openTestDB(t)
	roomID := seedUserAndRoom(t, database, "user-a", "R1")
	repo := NewMemberRepository(database)

	ok, err := repo.Touch(context.Background(), "user-a", roomID, baseTime)
	if err != nil {
		t.Fatalf("touch: %v", err)
	}
	if ok {
		t.Fatal("expected touch to report missing member")
	}
}

func TestRecordStatusUnknownUser(t *testing.T) {
	database := openTestDB(t)
	roomID := seedUserAndRoom(t, database, "user-a", "R1")

	_, err := NewMemberRepository(database).RecordStatus(context.Background(), "ghost", roomID, true, baseTime)
	if !errors.Is(err, ErrUnknownReference) {
		t.Fatalf("expected ErrUnknownReference, got %v", err)
	}
}
