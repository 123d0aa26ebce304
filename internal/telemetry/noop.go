package telemetry

import (
	"context"

	"codeberg.org/mutker/packmon/internal/stats"
)

type noopSink struct{}

// NewNoop returns a sink that accepts and discards every window. It
// stands in for the MQTT sink when telemetry is disabled so the
// processing loop never special-cases delivery.
func NewNoop() Sink {
	return noopSink{}
}

func (noopSink) Publish(context.Context, stats.Window) error {
	return nil
}

func (noopSink) Close() error {
	return nil
}
