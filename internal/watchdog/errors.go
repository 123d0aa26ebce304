package watchdog

import (
	"codeberg.org/mutker/packmon/internal/errors"
)

// Watchdog errors
const (
	ErrExpired       = errors.ErrorCode("watchdog_expired")
	ErrInvalidPeriod = errors.ErrorCode("watchdog_invalid_period")
)
