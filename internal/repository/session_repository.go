package repository

import (
	"context"
	"database/sql"
	"time"

	"focusroom/internal/model"
)

type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

const sessionColumns = `id, user_id, room_id, start_time, end_time, duration, completed`

// Create inserts an open session. A second open session for the same user
// fails with ErrConflict.
func (r *SessionRepository) Create(ctx context.Context, session *model.FocusSession) error {
	if _, err := r.db.ExecContext(
		ctx,
		`INSERT INTO focus_sessions (id, user_id, room_id, start_time, end_time, duration, completed)
		 VALUES (?, ?, ?, ?, NULL, 0, 0)`,
		session.ID,
		session.UserID,
		nullableString(session.RoomID),
		toMillis(session.StartTime),
	); err != nil {
		return classify("create focus session", err)
	}
	return nil
}

// Close ends an open session and fixes its duration in whole seconds. It
// returns ErrNotFound when no open session has that id; the caller decides
// whether the session is unknown or already closed.
func (r *SessionRepository) Close(ctx context.Context, sessionID string, endTime time.Time, completed bool) (*model.FocusSession, error) {
	row := r.db.QueryRowContext(
		ctx,
		`UPDATE focus_sessions
		 SET end_time = ?,
		     duration = MAX(0, (? - start_time) / 1000),
		     completed = ?
		 WHERE id = ? AND end_time IS NULL
		 RETURNING `+sessionColumns,
		toMillis(endTime),
		toMillis(endTime),
		completed,
		sessionID,
	)
	session, err := scanSession(row)
	if err != nil {
		return nil, classify("close focus session", err)
	}
	return session, nil
}

// CloseOpenForUser closes whatever session the user left open, marking it
// not completed, and returns the closed rows.
func (r *SessionRepository) CloseOpenForUser(ctx context.Context, userID string, endTime time.Time) ([]model.FocusSession, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`UPDATE focus_sessions
		 SET end_time = ?,
		     duration = MAX(0, (? - start_time) / 1000),
		     completed = 0
		 WHERE user_id = ? AND end_time IS NULL
		 RETURNING `+sessionColumns,
		toMillis(endTime),
		toMillis(endTime),
		userID,
	)
	if err != nil {
		return nil, classify("close stale sessions", err)
	}
	return collectSessions(rows, false)
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*model.FocusSession, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM focus_sessions WHERE id = ?`, sessionID)
	session, err := scanSession(row)
	if err != nil {
		return nil, classify("get focus session", err)
	}
	return session, nil
}

// CountOpen reports how many open sessions a user has. The unique index
// keeps this at 0 or 1.
func (r *SessionRepository) CountOpen(ctx context.Context, userID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(
		ctx,
		`SELECT COUNT(1) FROM focus_sessions WHERE user_id = ? AND end_time IS NULL`,
		userID,
	).Scan(&count); err != nil {
		return 0, classify("count open sessions", err)
	}
	return count, nil
}

func (r *SessionRepository) ListByUser(ctx context.Context, userID string, limit int) ([]model.FocusSession, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT `+sessionColumns+`
		 FROM focus_sessions
		 WHERE user_id = ?
		 ORDER BY start_time DESC, id DESC
		 LIMIT ?`,
		userID,
		limit,
	)
	if err != nil {
		return nil, classify("list user sessions", err)
	}
	return collectSessions(rows, false)
}

func (r *SessionRepository) ListByRoom(ctx context.Context, roomID string, limit int) ([]model.FocusSession, error) {
	rows, err := r.db.QueryContext(
		ctx,
		`SELECT s.id, s.user_id, s.room_id, s.start_time, s.end_time, s.duration, s.completed,
		        u.id, u.name, u.color
		 FROM focus_sessions s
		 JOIN users u ON u.id = s.user_id
		 WHERE s.room_id = ?
		 ORDER BY s.start_time DESC, s.id DESC
		 LIMIT ?`,
		roomID,
		limit,
	)
	if err != nil {
		return nil, classify("list room sessions", err)
	}
	return collectSessions(rows, true)
}

// Stats aggregates completed sessions only.
func (r *SessionRepository) Stats(ctx context.Context, userID string) (*model.UserStats, error) {
	var stats model.UserStats
	if err := r.db.QueryRowContext(
		ctx,
		`SELECT COALESCE(SUM(duration), 0), COUNT(1)
		 FROM focus_sessions
		 WHERE user_id = ? AND completed = 1`,
		userID,
	).Scan(&stats.TotalFocusTime, &stats.TotalSessions); err != nil {
		return nil, classify("user stats", err)
	}
	if stats.TotalSessions > 0 {
		stats.AverageSessionTime = float64(stats.TotalFocusTime) / float64(stats.TotalSessions)
	}
	return &stats, nil
}

func collectSessions(rows *sql.Rows, withUser bool) ([]model.FocusSession, error) {
	defer rows.Close()

	sessions := make([]model.FocusSession, 0)
	for rows.Next() {
		session, err := scanSessionRow(rows, withUser)
		if err != nil {
			return nil, classify("scan focus session", err)
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("iterate focus sessions", err)
	}
	return sessions, nil
}

func scanSession(s scanner) (*model.FocusSession, error) {
	return scanSessionRow(s, false)
}

func scanSessionRow(s scanner, withUser bool) (*model.FocusSession, error) {
	session := model.FocusSession{}
	var roomID sql.NullString
	var startTime int64
	var endTime sql.NullInt64
	dest := []interface{}{
		&session.ID,
		&session.UserID,
		&roomID,
		&startTime,
		&endTime,
		&session.Duration,
		&session.Completed,
	}
	var user model.User
	if withUser {
		dest = append(dest, &user.ID, &user.Name, &user.Color)
	}
	if err := s.Scan(dest...); err != nil {
		return nil, err
	}

	if roomID.Valid {
		value := roomID.String
		session.RoomID = &value
	}
	session.StartTime = fromMillis(startTime)
	session.EndTime = fromNullMillis(endTime)
	if withUser {
		session.User = &user
	}
	return &session, nil
}

func nullableString(value *string) interface{} {
	if value == nil {
		return nil
	}
	return *value
}
