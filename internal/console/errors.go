package console

import "codeberg.org/mutker/packmon/internal/errors"

const (
	ErrInvalidConfig = errors.ErrorCode("console_invalid_config")
	ErrServeFailed   = errors.ErrorCode("console_serve_failed")
	ErrInvalidLimits = errors.ErrorCode("console_invalid_limits")
)
