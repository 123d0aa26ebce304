package console

import (
	"context"

	"codeberg.org/mutker/packmon/internal/stats"
	"codeberg.org/mutker/packmon/internal/telemetry"
)

// streamSink mirrors published windows to the live stream. It always
// reports success: a stalled viewer must never hold up the processing
// loop or an acknowledged delivery batch.
type streamSink struct {
	cast *broadcaster
}

// Sink returns a telemetry sink feeding the live stream, meant to be
// fanned out alongside the MQTT sink.
func (s *Server) Sink() telemetry.Sink {
	return &streamSink{cast: s.cast}
}

func (s *streamSink) Publish(_ context.Context, w stats.Window) error {
	s.cast.publish(w)
	return nil
}

// Close is a no-op; the stream follows the server lifecycle.
func (s *streamSink) Close() error {
	return nil
}
