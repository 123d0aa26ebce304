package watchdog

import (
	"sync"
	"time"

	"codeberg.org/mutker/packmon/internal/errors"
	"codeberg.org/mutker/packmon/internal/logger"
)

// Timer tracks the last-fed instant of every registered feeder and
// fires the expiry action when any of them goes stale. It fires at
// most once for the life of the timer.
type Timer struct {
	interval time.Duration
	timeout  time.Duration
	onExpire func(component string)
	log      logger.Logger

	mu      sync.Mutex
	feeders map[string]time.Time
	running bool

	fired    sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

func NewTimer(cfg Config, log logger.Logger) (*Timer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	t := &Timer{
		interval: cfg.FeedInterval,
		timeout:  cfg.Timeout,
		onExpire: cfg.OnExpire,
		log:      log,
		feeders:  make(map[string]time.Time),
		stopChan: make(chan struct{}),
		doneChan: make(chan struct{}),
	}
	if t.onExpire == nil {
		t.onExpire = t.fatalExpire
	}

	return t, nil
}

// fatalExpire is the default expiry action: log which component
// starved the timer and terminate the process so the service manager
// can restart into a clean state.
func (t *Timer) fatalExpire(component string) {
	errFactory := errors.New()
	t.log.FatalWithCode(errFactory.WithData(ErrExpired, component)).
		Str("component", component).
		Msg("Watchdog expired")
}

// Register adds a feeder with a fresh last-fed instant.
func (t *Timer) Register(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.feeders[name] = time.Now()
}

// Unregister removes a feeder from expiry tracking. Removing feeders
// before stopping their loops keeps orderly shutdown from being
// mistaken for starvation.
func (t *Timer) Unregister(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.feeders, name)
}

// Feed refreshes the named feeder's last-fed instant. Feeding an
// unregistered name is ignored.
func (t *Timer) Feed(name string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.feeders[name]; ok {
		t.feeders[name] = time.Now()
	}
}

func (t *Timer) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.running {
		return
	}
	t.running = true

	go t.monitor()
	t.log.Debug().
		Dur("timeout", t.timeout).
		Msg("Watchdog timer started")
}

func (t *Timer) Stop() {
	t.mu.Lock()
	if !t.running {
		t.mu.Unlock()
		return
	}
	t.running = false
	t.mu.Unlock()

	close(t.stopChan)
	<-t.doneChan
	t.log.Debug().Msg("Watchdog timer stopped")
}

func (t *Timer) monitor() {
	defer close(t.doneChan)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-t.stopChan:
			return
		case now := <-ticker.C:
			if starved := t.starvedFeeder(now); starved != "" {
				t.fired.Do(func() { t.onExpire(starved) })
			}
		}
	}
}

func (t *Timer) starvedFeeder(now time.Time) string {
	t.mu.Lock()
	defer t.mu.Unlock()

	for name, last := range t.feeders {
		if now.Sub(last) > t.timeout {
			return name
		}
	}

	return ""
}
