package repository

import (
	"database/sql"
	"time"
)

// Timestamps are stored as unix milliseconds so that liveness cutoffs and
// elapsed-time arithmetic stay inside single SQL statements.

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func fromNullMillis(ms sql.NullInt64) *time.Time {
	if !ms.Valid {
		return nil
	}
	t := fromMillis(ms.Int64)
	return &t
}

type scanner interface {
	Scan(dest ...interface{}) error
}
