// Package telemetry publishes statistics windows to an MQTT broker.
// One window becomes one JSON message on a single topic. The QoS
// level carries the delivery contract: fire-and-forget publishes
// return as soon as the message leaves the client, acknowledged
// publishes block until the broker confirms or the budget runs out.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"codeberg.org/mutker/packmon/internal/errors"
	"codeberg.org/mutker/packmon/internal/logger"
	"codeberg.org/mutker/packmon/internal/stats"
)

const (
	disconnectQuiesceMs  = 250
	connectRetryInterval = 5 * time.Second
	maxReconnectInterval = 30 * time.Second
)

type mqttSink struct {
	client         mqtt.Client
	topic          string
	qos            byte
	publishTimeout time.Duration
	log            logger.Logger
}

// New builds a sink for the given configuration. With telemetry
// disabled it returns the no-op sink, so callers wire exactly one
// construction path. An unreachable broker does not fail construction;
// the client retries in the background and publishes report errors
// until it connects.
func New(cfg Config, log logger.Logger) (Sink, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Enabled {
		return NewNoop(), nil
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = fmt.Sprintf("packmon-%s", uuid.NewString()[:8])
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(maxReconnectInterval).
		SetConnectRetry(true).
		SetConnectRetryInterval(connectRetryInterval)

	opts.SetOnConnectHandler(func(mqtt.Client) {
		log.Info().
			Str("broker", cfg.Broker).
			Str("client_id", clientID).
			Msg("Connected to MQTT broker")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().
			Err(err).
			Str("broker", cfg.Broker).
			Msg("MQTT connection lost")
	})

	client := mqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(cfg.ConnectTimeout) {
		log.Warn().
			Str("broker", cfg.Broker).
			Dur("timeout", cfg.ConnectTimeout).
			Msg("MQTT broker not reachable yet, retrying in background")
	} else if err := token.Error(); err != nil {
		client.Disconnect(disconnectQuiesceMs)

		return nil, errFactory.Wrap(ErrConnectFailed, err)
	}

	return &mqttSink{
		client:         client,
		topic:          cfg.Topic,
		qos:            cfg.QoS,
		publishTimeout: cfg.PublishTimeout,
		log:            log,
	}, nil
}

func (s *mqttSink) Publish(ctx context.Context, window stats.Window) error {
	errFactory := errors.New()

	payload, err := json.Marshal(window)
	if err != nil {
		return errFactory.Wrap(ErrEncodeFailed, err)
	}

	token := s.client.Publish(s.topic, s.qos, false, payload)

	if s.qos == QoSFireAndForget {
		return nil
	}

	// Acknowledged QoS: wait for the broker, the publish budget, or
	// the caller giving up, whichever comes first.
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return errFactory.Wrap(ErrPublishFailed, err)
		}

		return nil
	case <-time.After(s.publishTimeout):
		return errFactory.WithData(ErrPublishTimeout, s.topic)
	case <-ctx.Done():
		return errFactory.Wrap(ErrPublishTimeout, ctx.Err())
	}
}

func (s *mqttSink) Close() error {
	s.client.Disconnect(disconnectQuiesceMs)
	s.log.Debug().Msg("MQTT client disconnected")

	return nil
}
