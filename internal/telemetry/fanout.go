package telemetry

import (
	"context"

	"codeberg.org/mutker/packmon/internal/stats"
)

type fanout struct {
	sinks []Sink
}

// NewFanout combines several sinks into one. Publish attempts every
// sink and reports the first error, so acknowledged delivery still
// holds a batch when the broker rejects a window regardless of what the
// other sinks did. Close closes all of them.
func NewFanout(sinks ...Sink) Sink {
	switch len(sinks) {
	case 0:
		return NewNoop()
	case 1:
		return sinks[0]
	default:
		return &fanout{sinks: sinks}
	}
}

func (f *fanout) Publish(ctx context.Context, w stats.Window) error {
	var first error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, w); err != nil && first == nil {
			first = err
		}
	}

	return first
}

func (f *fanout) Close() error {
	var first error
	for _, s := range f.sinks {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}

	return first
}
