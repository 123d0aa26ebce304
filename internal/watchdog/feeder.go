package watchdog

import (
	"context"
	"time"
)

// Feeder keeps one component's timer entry fresh. It registers itself
// when its loop starts, feeds on a fixed cadence while the supervisor
// still allows it, and unregisters on the way out.
type Feeder struct {
	name       string
	timer      *Timer
	supervisor *Supervisor
	interval   time.Duration
}

func NewFeeder(name string, timer *Timer, supervisor *Supervisor, interval time.Duration) *Feeder {
	return &Feeder{
		name:       name,
		timer:      timer,
		supervisor: supervisor,
		interval:   interval,
	}
}

func (f *Feeder) Name() string {
	return f.name
}

// Run feeds until the context is canceled. Once the supervisor trips,
// the loop keeps running but stops feeding, which is what lets the
// timer expire.
func (f *Feeder) Run(ctx context.Context) {
	f.timer.Register(f.name)
	defer f.timer.Unregister(f.name)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if f.supervisor.Allowed() {
				f.timer.Feed(f.name)
			}
		}
	}
}
