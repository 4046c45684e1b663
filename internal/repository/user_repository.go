package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"focusroom/internal/model"
)

type UserRepository struct {
	db *sql.DB
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

const userColumns = `id, name, color, email, created_at, updated_at`

// Upsert creates a user, or refreshes name and color of the user owning the
// same email. Users without an email always get a fresh guest row.
func (r *UserRepository) Upsert(ctx context.Context, name, color string, email *string, now time.Time) (*model.User, error) {
	if email == nil {
		return r.insert(ctx, uuid.NewString(), name, color, now)
	}

	row := r.db.QueryRowContext(
		ctx,
		`INSERT INTO users (id, name, color, email, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(email) DO UPDATE SET
		     name = excluded.name,
		     color = excluded.color,
		     updated_at = excluded.updated_at
		 RETURNING `+userColumns,
		uuid.NewString(),
		name,
		color,
		*email,
		toMillis(now),
		toMillis(now),
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, classify("upsert user", err)
	}
	return user, nil
}

// Ensure makes sure a user with the given id exists. Blank name or color
// keep the stored values; a new row falls back to the defaults.
func (r *UserRepository) Ensure(ctx context.Context, id, name, color string, now time.Time) (*model.User, error) {
	insertName, insertColor := name, color
	if insertName == "" {
		insertName = model.DefaultUserName
	}
	if insertColor == "" {
		insertColor = model.DefaultUserColor
	}

	row := r.db.QueryRowContext(
		ctx,
		`INSERT INTO users (id, name, color, email, created_at, updated_at)
		 VALUES (?, ?, ?, NULL, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		     name = CASE WHEN ? <> '' THEN ? ELSE users.name END,
		     color = CASE WHEN ? <> '' THEN ? ELSE users.color END,
		     updated_at = excluded.updated_at
		 RETURNING `+userColumns,
		id,
		insertName,
		insertColor,
		toMillis(now),
		toMillis(now),
		name, name,
		color, color,
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, classify("ensure user", err)
	}
	return user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	user, err := scanUser(row)
	if err != nil {
		return nil, classify("get user by id", err)
	}
	return user, nil
}

func (r *UserRepository) insert(ctx context.Context, id, name, color string, now time.Time) (*model.User, error) {
	row := r.db.QueryRowContext(
		ctx,
		`INSERT INTO users (id, name, color, email, created_at, updated_at)
		 VALUES (?, ?, ?, NULL, ?, ?)
		 RETURNING `+userColumns,
		id,
		name,
		color,
		toMillis(now),
		toMillis(now),
	)
	user, err := scanUser(row)
	if err != nil {
		return nil, classify("create user", err)
	}
	return user, nil
}

func scanUser(s scanner) (*model.User, error) {
	var user model.User
	var email sql.NullString
	var createdAt, updatedAt int64
	if err := s.Scan(&user.ID, &user.Name, &user.Color, &email, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if email.Valid {
		value := email.String
		user.Email = &value
	}
	user.CreatedAt = fromMillis(createdAt)
	user.UpdatedAt = fromMillis(updatedAt)
	return &user, nil
}
