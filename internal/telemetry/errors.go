package telemetry

import "codeberg.org/mutker/packmon/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrorCode("telemetry_invalid_config")

	// Connection Errors
	ErrConnectFailed = errors.ErrorCode("telemetry_connect_failed")

	// Publish Errors
	ErrEncodeFailed   = errors.ErrorCode("telemetry_encode_failed")
	ErrPublishFailed  = errors.ErrorCode("telemetry_publish_failed")
	ErrPublishTimeout = errors.ErrorCode("telemetry_publish_timeout")
)
