package telemetry

import (
	"context"

	"codeberg.org/mutker/packmon/internal/stats"
)

// Sink delivers finalized statistics windows off the device.
//
// Publish either hands the window to the transport or reports an
// error. Under fire-and-forget QoS a nil return only means the window
// left the client; under acknowledged QoS it means the broker
// confirmed receipt. Close releases the transport and may block
// briefly to flush in-flight messages.
type Sink interface {
	Publish(ctx context.Context, window stats.Window) error
	Close() error
}
