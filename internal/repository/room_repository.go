package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"focusroom/internal/model"
)

type RoomRepository struct {
	db *sql.DB
}

func NewRoomRepository(db *sql.DB) *RoomRepository {
	return &RoomRepository{db: db}
}

// UpsertByCode returns the room for code, creating it with name on first
// reference. An existing room keeps its original name.
func (r *RoomRepository) UpsertByCode(ctx context.Context, code, name string, now time.Time) (*model.Room, error) {
	if _, err := r.db.ExecContext(
		ctx,
		`INSERT INTO rooms (id, room_code, name, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(room_code) DO NOTHING`,
		uuid.NewString(),
		code,
		name,
		toMillis(now),
	); err != nil {
		return nil, classify("upsert room", err)
	}
	return r.GetByCode(ctx, code)
}

func (r *RoomRepository) GetByCode(ctx context.Context, code string) (*model.Room, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT id, room_code, name, created_at FROM rooms WHERE room_code = ?`,
		code,
	)
	room, err := scanRoom(row)
	if err != nil {
		return nil, classify("get room by code", err)
	}
	return room, nil
}

func (r *RoomRepository) GetByID(ctx context.Context, id string) (*model.Room, error) {
	row := r.db.QueryRowContext(
		ctx,
		`SELECT id, room_code, name, created_at FROM rooms WHERE id = ?`,
		id,
	)
	room, err := scanRoom(row)
	if err != nil {
		return nil, classify("get room by id", err)
	}
	return room, nil
}

func scanRoom(s scanner) (*model.Room, error) {
	var room model.Room
	var createdAt int64
	if err := s.Scan(&room.ID, &room.RoomCode, &room.Name, &createdAt); err != nil {
		return nil, err
	}
	room.CreatedAt = fromMillis(createdAt)
	return &room, nil
}
