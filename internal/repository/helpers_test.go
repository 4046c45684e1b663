package repository

import (
	"context"
	"database/sql"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"focusroom/internal/db"
	"focusroom/internal/logging"
)

var baseTime = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

func openTestDB(t *testing.T) *sql.DB {
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
	return database
}

func seedUserAndRoom(t *testing.T, database *sql.DB, userID, code string) string {
	t.Helper()
	ctx := context.Background()
	if _, err := NewUserRepository(database).Ensure(ctx, userID, "name-"+userID, "#fff", baseTime); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	room, err := NewRoomRepository(database).UpsertByCode(ctx, code, "Room "+code, baseTime)
	if err != nil {
		t.Fatalf("upsert room: %v", err)
	}
	return room.ID
}
