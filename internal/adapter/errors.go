package adapter

import "codeberg.org/mutker/packmon/internal/errors"

const (
	ErrUnknownKind = errors.ErrorCode("adapter_unknown_kind")
	ErrReadFailed  = errors.ErrorCode("adapter_read_failed")
)
