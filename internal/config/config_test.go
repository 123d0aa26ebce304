package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"codeberg.org/mutker/packmon/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetArgs strips test-runner flags so Load parses a clean command line.
func resetArgs(t *testing.T) {
	t.Helper()
	oldArgs := os.Args
	os.Args = []string{"packmon"}
	t.Cleanup(func() { os.Args = oldArgs })
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "packmon.toml")
	err := os.WriteFile(configPath, []byte(content), 0o600)
	require.NoError(t, err)

	return configPath
}

func TestLoad(t *testing.T) {
	resetArgs(t)

	configPath := writeConfig(t, `
log_level = "debug"
delivery = "at_least_once"
state_dir = "/tmp/packmon-test"

[sampling]
interval = 100
queue_capacity = 300

[limits]
cell_v_min = 0.8
cell_v_max = 1.9

[telemetry]
enabled = true
broker = "tcp://broker.local:1883"
topic = "bms/test/stats"

[history]
database = "/tmp/packmon-test/history.db"
retention = 120
`)
	t.Setenv("PACKMON_CONFIG", configPath)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel debug")
	assert.Equal(t, "at_least_once", cfg.Delivery, "Expected Delivery at_least_once")
	assert.Equal(t, "/tmp/packmon-test", cfg.StateDir)
	assert.Equal(t, 100, cfg.Sampling.Interval, "Expected Interval 100")
	assert.Equal(t, 300, cfg.Sampling.QueueCapacity, "Expected QueueCapacity 300")
	assert.InDelta(t, 0.8, cfg.Limits.CellVoltageMin, 1e-9)
	assert.InDelta(t, 1.9, cfg.Limits.CellVoltageMax, 1e-9)
	assert.True(t, cfg.Telemetry.Enabled, "Expected Telemetry enabled")
	assert.Equal(t, "tcp://broker.local:1883", cfg.Telemetry.Broker)
	assert.Equal(t, "bms/test/stats", cfg.Telemetry.Topic)
	assert.Equal(t, "/tmp/packmon-test/history.db", cfg.History.Database)
	assert.Equal(t, 120, cfg.History.Retention)
	assert.Equal(t, configPath, cfg.Path())

	// untouched sections keep their defaults
	assert.Equal(t, 20, cfg.Sampling.BatchSize, "Expected default BatchSize 20")
	assert.Equal(t, 80, cfg.Watchdog.Timeout, "Expected default watchdog timeout 80")
}

func TestLoadDefaults(t *testing.T) {
	resetArgs(t)
	t.Setenv("PACKMON_CONFIG", "")

	cfg, err := config.Load()
	require.NoError(t, err, "Failed to load config")

	assert.Equal(t, config.DefaultLogLevel, cfg.LogLevel, "Expected default LogLevel info")
	assert.Equal(t, string(config.DeliveryBestEffort), cfg.Delivery)
	assert.Equal(t, 50, cfg.Sampling.Interval, "Expected default Interval 50")
	assert.Equal(t, 600, cfg.Sampling.QueueCapacity, "Expected default QueueCapacity 600")
	assert.Equal(t, 100, cfg.Sampling.RingCapacity, "Expected default RingCapacity 100")
	assert.Equal(t, 20, cfg.Sampling.BatchSize, "Expected default BatchSize 20")
	assert.Equal(t, 4, cfg.Sampling.SubwindowSize, "Expected default SubwindowSize 4")
	assert.Equal(t, 100, cfg.Sampling.MaxDrainPerCycle)
	assert.Equal(t, 1000, cfg.Sampling.TickInterval)
	assert.InDelta(t, 0.5, cfg.Limits.CellVoltageMin, 1e-9)
	assert.InDelta(t, 2.0, cfg.Limits.CellVoltageMax, 1e-9)
	assert.InDelta(t, 2.5, cfg.Limits.PackVoltageMin, 1e-9)
	assert.InDelta(t, 10.0, cfg.Limits.PackVoltageMax, 1e-9)
	assert.InDelta(t, -5.0, cfg.Limits.CurrentMin, 1e-9)
	assert.InDelta(t, 5.0, cfg.Limits.CurrentMax, 1e-9)
	assert.Equal(t, 20, cfg.Watchdog.FeedInterval)
	assert.Equal(t, 80, cfg.Watchdog.Timeout)
	assert.Equal(t, 30000, cfg.Watchdog.ProcessingBudget)
	assert.Equal(t, "demo", cfg.Adapter.Kind)
	assert.False(t, cfg.Telemetry.Enabled, "Expected Telemetry disabled by default")
	assert.Equal(t, "bms/packmon/stats", cfg.Telemetry.Topic)
	assert.True(t, cfg.History.Enabled, "Expected History enabled by default")
	assert.Equal(t, 240, cfg.History.Retention)
	assert.True(t, cfg.Console.Enabled, "Expected Console enabled by default")
	assert.Equal(t, ":8080", cfg.Console.Listen)
	assert.Empty(t, cfg.Path())
}

func TestLoadConfigFileInvalidFormat(t *testing.T) {
	resetArgs(t)

	configPath := writeConfig(t, "This is not a valid TOML file\n")
	t.Setenv("PACKMON_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read configuration")
}

func TestInvalidLogLevel(t *testing.T) {
	resetArgs(t)

	configPath := writeConfig(t, `log_level = "invalid"`)
	t.Setenv("PACKMON_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid_log_level")
}

func TestInvalidDeliveryMode(t *testing.T) {
	resetArgs(t)

	configPath := writeConfig(t, `delivery = "exactly_once"`)
	t.Setenv("PACKMON_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "delivery must be best_effort or at_least_once")
}

func TestInvertedLimitsRejected(t *testing.T) {
	resetArgs(t)

	configPath := writeConfig(t, `
[limits]
cell_v_min = 2.0
cell_v_max = 0.5
`)
	t.Setenv("PACKMON_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cell_v_min must be below")
}

func TestBatchMustDivideIntoSubwindows(t *testing.T) {
	resetArgs(t)

	configPath := writeConfig(t, `
[sampling]
batch_size = 20
subwindow_size = 3
`)
	t.Setenv("PACKMON_CONFIG", configPath)

	_, err := config.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiple of sampling.subwindow_size")
}

func TestLogLevelFlag(t *testing.T) {
	oldArgs := os.Args
	defer func() { os.Args = oldArgs }()
	os.Args = []string{"packmon", "--log-level", "debug"}
	t.Setenv("PACKMON_CONFIG", "")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel, "Expected LogLevel to be set by flag")
}

func TestSaveRoundTrip(t *testing.T) {
	resetArgs(t)
	t.Setenv("PACKMON_CONFIG", "")

	cfg, err := config.Load()
	require.NoError(t, err)

	cfg.Limits.CellVoltageMin = 0.9
	cfg.Limits.CellVoltageMax = 1.8
	cfg.Delivery = string(config.DeliveryAtLeastOnce)

	savePath := filepath.Join(t.TempDir(), "packmon.toml")
	require.NoError(t, cfg.Save(savePath))
	assert.Equal(t, savePath, cfg.Path())

	t.Setenv("PACKMON_CONFIG", savePath)
	reloaded, err := config.Load()
	require.NoError(t, err)
	assert.InDelta(t, 0.9, reloaded.Limits.CellVoltageMin, 1e-9)
	assert.InDelta(t, 1.8, reloaded.Limits.CellVoltageMax, 1e-9)
	assert.Equal(t, string(config.DeliveryAtLeastOnce), reloaded.Delivery)
}
