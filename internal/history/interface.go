package history

import (
	"codeberg.org/mutker/packmon/internal/stats"
)

// Store persists finalized statistics windows and serves the recent
// window history back to the console. Append is buffered; windows
// reach the database on batch-size or interval flushes, and Recent
// flushes before reading so callers always see what was appended.
type Store interface {
	Append(window stats.Window) error
	Recent(limit int) ([]stats.Window, error)
	Close() error
}
