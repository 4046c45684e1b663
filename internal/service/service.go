package service

import (
	"errors"
	"time"

	apperrors "focusroom/internal/errors"
	"focusroom/internal/repository"
)

// Clock supplies the current time; services default to UTC wall time.
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

func clockOrDefault(clock Clock) Clock {
	if clock == nil {
		return systemClock
	}
	return clock
}

func storageError(err error, message string) *apperrors.APIError {
	if errors.Is(err, repository.ErrUnavailable) {
		return apperrors.Unavailable("")
	}
	return apperrors.Internal(message)
}

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// normalizeLimit defaults a missing limit and caps large ones.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return defaultListLimit
	case limit > maxListLimit:
		return maxListLimit
	}
	return limit
}
