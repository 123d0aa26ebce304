package telemetry

import (
	"time"

	"codeberg.org/mutker/packmon/internal/errors"
)

// QoS levels for window publication. Fire-and-forget matches the
// best-effort delivery mode; at-least-once waits for the broker's
// acknowledgment.
const (
	QoSFireAndForget byte = 0
	QoSAtLeastOnce   byte = 1
)

type Config struct {
	Enabled  bool
	Broker   string
	Topic    string
	ClientID string
	QoS      byte
	// ConnectTimeout bounds the initial connection attempt. A broker
	// that is down at startup is not fatal; the client keeps retrying
	// in the background.
	ConnectTimeout time.Duration
	// PublishTimeout bounds the wait for a broker acknowledgment
	// under at-least-once QoS.
	PublishTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Broker:         "tcp://localhost:1883",
		Topic:          "bms/packmon/stats",
		QoS:            QoSFireAndForget,
		ConnectTimeout: 10 * time.Second,
		PublishTimeout: 5 * time.Second,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if !c.Enabled {
		return nil
	}

	if c.Broker == "" {
		return errFactory.WithData(ErrInvalidConfig, "broker URL is required")
	}
	if c.Topic == "" {
		return errFactory.WithData(ErrInvalidConfig, "topic is required")
	}
	if c.QoS > QoSAtLeastOnce {
		return errFactory.WithData(ErrInvalidConfig, "QoS must be 0 or 1")
	}
	if c.ConnectTimeout <= 0 || c.PublishTimeout <= 0 {
		return errFactory.WithData(ErrInvalidConfig, "timeouts must be positive")
	}

	return nil
}
