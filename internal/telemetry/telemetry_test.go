package telemetry_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	mochi "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/packmon/internal/bms"
	"codeberg.org/mutker/packmon/internal/logger"
	"codeberg.org/mutker/packmon/internal/stats"
	"codeberg.org/mutker/packmon/internal/telemetry"
)

const testTopic = "bms/packmon/stats"

func freePort(t *testing.T) int {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	return port
}

// startBroker runs an in-process MQTT broker and returns its URL.
func startBroker(t *testing.T) string {
	t.Helper()

	addr := fmt.Sprintf("127.0.0.1:%d", freePort(t))

	broker := mochi.New(nil)
	require.NoError(t, broker.AddHook(&auth.AllowHook{}, nil))
	require.NoError(t, broker.AddListener(listeners.NewTCP(listeners.Config{
		Type:    "tcp",
		Address: addr,
	})))
	require.NoError(t, broker.Serve())
	t.Cleanup(func() { broker.Close() })

	return "tcp://" + addr
}

// subscribe attaches an independent client to the broker and returns a
// channel of payloads seen on the test topic.
func subscribe(t *testing.T, brokerURL string) <-chan []byte {
	t.Helper()

	received := make(chan []byte, 8)

	client := mqtt.NewClient(mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID("packmon-test-sub"))
	token := client.Connect()
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())
	t.Cleanup(func() { client.Disconnect(100) })

	token = client.Subscribe(testTopic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		received <- msg.Payload()
	})
	require.True(t, token.WaitTimeout(5*time.Second))
	require.NoError(t, token.Error())

	return received
}

func liveConfig(brokerURL string, qos byte) telemetry.Config {
	cfg := telemetry.DefaultConfig()
	cfg.Enabled = true
	cfg.Broker = brokerURL
	cfg.Topic = testTopic
	cfg.QoS = qos
	cfg.ConnectTimeout = 5 * time.Second
	cfg.PublishTimeout = 5 * time.Second

	return cfg
}

func testWindow() stats.Window {
	w := stats.Window{
		Timestamp:   42,
		SampleCount: 20,
		Flags:       bms.FlagValid | bms.UndervoltageFlag(2),
		PackVAvg:    6.05,
		PackVMin:    5.9,
		PackVMax:    6.2,
		PackIAvg:    0.4,
		PackIMin:    -0.1,
		PackIMax:    1.1,
	}
	for c := 0; c < bms.NumCells; c++ {
		w.CellVAvg[c] = 1.21
		w.CellVMin[c] = 1.18
		w.CellVMax[c] = 1.24
	}

	return w
}

func TestConfigValidation(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(*telemetry.Config)
		wantErr bool
	}{
		{"disabled needs nothing", func(c *telemetry.Config) { c.Broker = "" }, false},
		{"enabled defaults", func(c *telemetry.Config) { c.Enabled = true }, false},
		{"missing broker", func(c *telemetry.Config) { c.Enabled = true; c.Broker = "" }, true},
		{"missing topic", func(c *telemetry.Config) { c.Enabled = true; c.Topic = "" }, true},
		{"qos too high", func(c *telemetry.Config) { c.Enabled = true; c.QoS = 2 }, true},
		{"zero publish timeout", func(c *telemetry.Config) { c.Enabled = true; c.PublishTimeout = 0 }, true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := telemetry.DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDisabledSinkDiscards(t *testing.T) {
	cfg := telemetry.DefaultConfig()
	sink, err := telemetry.New(cfg, logger.Default())
	require.NoError(t, err)

	assert.NoError(t, sink.Publish(context.Background(), testWindow()))
	assert.NoError(t, sink.Close())
}

func TestPublishAtLeastOnce(t *testing.T) {
	brokerURL := startBroker(t)
	received := subscribe(t, brokerURL)

	sink, err := telemetry.New(liveConfig(brokerURL, telemetry.QoSAtLeastOnce), logger.Default())
	require.NoError(t, err)
	defer sink.Close()

	want := testWindow()
	require.NoError(t, sink.Publish(context.Background(), want))

	select {
	case payload := <-received:
		var got stats.Window
		require.NoError(t, json.Unmarshal(payload, &got))
		assert.Equal(t, want, got)
	case <-time.After(5 * time.Second):
		t.Fatal("window never arrived at the broker")
	}
}

func TestPublishFireAndForget(t *testing.T) {
	brokerURL := startBroker(t)
	received := subscribe(t, brokerURL)

	sink, err := telemetry.New(liveConfig(brokerURL, telemetry.QoSFireAndForget), logger.Default())
	require.NoError(t, err)
	defer sink.Close()

	require.NoError(t, sink.Publish(context.Background(), testWindow()))

	select {
	case <-received:
	case <-time.After(5 * time.Second):
		t.Fatal("window never arrived at the broker")
	}
}

func TestPublishAtLeastOnceFailsWithoutBroker(t *testing.T) {
	// Nothing listens on this port; construction still succeeds and
	// the failure surfaces on the acknowledged publish.
	brokerURL := fmt.Sprintf("tcp://127.0.0.1:%d", freePort(t))

	cfg := liveConfig(brokerURL, telemetry.QoSAtLeastOnce)
	cfg.ConnectTimeout = 200 * time.Millisecond
	cfg.PublishTimeout = 300 * time.Millisecond

	sink, err := telemetry.New(cfg, logger.Default())
	require.NoError(t, err)
	defer sink.Close()

	err = sink.Publish(context.Background(), testWindow())
	assert.Error(t, err)
}

func TestPublishHonorsCanceledContext(t *testing.T) {
	brokerURL := fmt.Sprintf("tcp://127.0.0.1:%d", freePort(t))

	cfg := liveConfig(brokerURL, telemetry.QoSAtLeastOnce)
	cfg.ConnectTimeout = 200 * time.Millisecond
	cfg.PublishTimeout = 10 * time.Second

	sink, err := telemetry.New(cfg, logger.Default())
	require.NoError(t, err)
	defer sink.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err = sink.Publish(ctx, testWindow())
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}
