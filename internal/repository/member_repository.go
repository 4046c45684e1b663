package repository

import (
	"context"
	"database/sql"
	"time"

	"focusroom/internal/model"
)

// LeftSentinel is the last_active_at written on explicit leave. It is older
// than any liveness cutoff, so the liveness filter doubles as removal.
var LeftSentinel = time.UnixMilli(0).UTC()

type MemberRepository struct {
	db *sql.DB
}

func NewMemberRepository(db *sql.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

type JoinParams struct {
	UserID         string
	RoomID         string
	IsFocusing     bool
	FocusStartTime *time.Time
	TotalFocusTime int64
	Now            time.Time
}

// Join creates or resets the member row. This is the only write that takes
// a caller-supplied total.
func (r *MemberRepository) Join(ctx context.Context, p JoinParams) (*model.RoomMember, error) {
	var focusStart interface{}
	if p.IsFocusing {
		start := p.Now
		if p.FocusStartTime != nil {
			start = *p.FocusStartTime
		}
		focusStart = toMillis(start)
	}
	total := p.TotalFocusTime
	if total < 0 {
		total = 0
	}

	if _, err := r.db.ExecContext(
		ctx,
		`INSERT INTO room_members (
			user_id, room_id, is_focusing, focus_start_time, total_focus_time, last_active_at, joined_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, room_id) DO UPDATE SET
			is_focusing = excluded.is_focusing,
			focus_start_time = excluded.focus_start_time,
			total_focus_time = excluded.total_focus_time,
			last_active_at = excluded.last_active_at,
			joined_at = excluded.joined_at`,
		p.UserID,
		p.RoomID,
		p.IsFocusing,
		focusStart,
		total,
		toMillis(p.Now),
		toMillis(p.Now),
	); err != nil {
		return nil, classify("join room", err)
	}
	return r.Get(ctx, p.UserID, p.RoomID)
}

// RecordStatus applies a focus transition in one atomic upsert. Leaving the
// focusing state adds the elapsed whole seconds since focus_start_time to the
// total; a repeated start keeps the original start time.
func (r *MemberRepository) RecordStatus(ctx context.Context, userID, roomID string, isFocusing bool, now time.Time) (*model.RoomMember, error) {
	var focusStart interface{}
	if isFocusing {
		focusStart = toMillis(now)
	}

	if _, err := r.db.ExecContext(
		ctx,
		`INSERT INTO room_members (
			user_id, room_id, is_focusing, focus_start_time, total_focus_time, last_active_at, joined_at
		) VALUES (?, ?, ?, ?, 0, ?, ?)
		ON CONFLICT(user_id, room_id) DO UPDATE SET
			total_focus_time = room_members.total_focus_time + CASE
				WHEN room_members.is_focusing = 1 AND excluded.is_focusing = 0
					THEN MAX(0, (excluded.last_active_at - room_members.focus_start_time) / 1000)
				ELSE 0
			END,
			focus_start_time = CASE
				WHEN excluded.is_focusing = 0 THEN NULL
				WHEN room_members.is_focusing = 1 THEN room_members.focus_start_time
				ELSE excluded.focus_start_time
			END,
			is_focusing = excluded.is_focusing,
			last_active_at = MAX(room_members.last_active_at, excluded.last_active_at)`,
		userID,
		roomID,
		isFocusing,
		focusStart,
		toMillis(now),
		toMillis(now),
	); err != nil {
		return nil, classify("record status", err)
	}
	return r.Get(ctx, userID, roomID)
}

// Touch advances last_active_at. It reports false when no member row exists.
func (r *MemberRepository) Touch(ctx context.Context, userID, roomID string, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(
		ctx,
		`UPDATE room_members
		 SET last_active_at = MAX(last_active_at, ?)
		 WHERE user_id = ? AND room_id = ?`,
		toMillis(now),
		userID,
		roomID,
	)
	if err != nil {
		return false, classify("touch member", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, classify("touch member rows", err)
	}
	return affected > 0, nil
}

// SoftLeave moves the member behind the liveness cutoff and closes any
// running interval into the total. The row itself is kept.
func (r *MemberRepository) SoftLeave(ctx context.Context, userID, roomID string, now time.Time) error {
	if _, err := r.db.ExecContext(
		ctx,
		`UPDATE room_members
		 SET total_focus_time = total_focus_time + CASE
		         WHEN is_focusing = 1 THEN MAX(0, (? - focus_start_time) / 1000)
		         ELSE 0
		     END,
		     is_focusing = 0,
		     focus_start_time = NULL,
		     last_active_at = ?
		 WHERE user_id = ? AND room_id = ?`,
		toMillis(now),
		toMillis(LeftSentinel),
		userID,
		roomID,
	); err != nil {
		return classify("soft leave", err)
	}
	return nil
}

const memberSelect = `SELECT m.user_id, m.room_id, m.is_focusing, m.focus_start_time, m.total_focus_time,
        m.last_active_at, m.joined_at, u.name, u.color
 FROM room_members m
 JOIN users u ON u.id = m.user_id`

// Get reads a member row regardless of liveness.
func (r *MemberRepository) Get(ctx context.Context, userID, roomID string) (*model.RoomMember, error) {
	row := r.db.QueryRowContext(ctx, memberSelect+` WHERE m.user_id = ? AND m.room_id = ?`, userID, roomID)
	member, err := scanMember(row)
	if err != nil {
		return nil, classify("get member", err)
	}
	return member, nil
}

// FindLive returns members whose last_active_at is at or after since,
// most recently active first.
func (r *MemberRepository) FindLive(ctx context.Context, roomID string, since time.Time) ([]model.RoomMember, error) {
	rows, err := r.db.QueryContext(
		ctx,
		memberSelect+`
		 WHERE m.room_id = ? AND m.last_active_at >= ?
		 ORDER BY m.last_active_at DESC, m.user_id ASC`,
		roomID,
		toMillis(since),
	)
	if err != nil {
		return nil, classify("find live members", err)
	}
	defer rows.Close()

	members := make([]model.RoomMember, 0)
	for rows.Next() {
		member, scanErr := scanMember(rows)
		if scanErr != nil {
			return nil, classify("scan live member", scanErr)
		}
		members = append(members, *member)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate live members", err)
	}
	return members, nil
}

func scanMember(s scanner) (*model.RoomMember, error) {
	var member model.RoomMember
	var focusStart sql.NullInt64
	var lastActive, joinedAt int64
	if err := s.Scan(
		&member.UserID,
		&member.RoomID,
		&member.IsFocusing,
		&focusStart,
		&member.TotalFocusTime,
		&lastActive,
		&joinedAt,
		&member.Name,
		&member.Color,
	); err != nil {
		return nil, err
	}
	member.FocusStartTime = fromNullMillis(focusStart)
	member.LastActiveAt = fromMillis(lastActive)
	member.JoinedAt = fromMillis(joinedAt)
	return &member, nil
}
