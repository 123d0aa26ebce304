package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/packmon/internal/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultStateDir holds the flag file, the history database and, when no
// explicit configuration file is in use, configuration saved from the
// console. It is on the configuration search path so saved settings
// survive a restart.
const DefaultStateDir = "/var/lib/packmon"

// Sampling holds the measurement pipeline geometry. Intervals are in
// milliseconds; capacities are in samples.
type Sampling struct {
	Interval         int `mapstructure:"interval"`
	QueueCapacity    int `mapstructure:"queue_capacity"`
	RingCapacity     int `mapstructure:"ring_capacity"`
	BatchSize        int `mapstructure:"batch_size"`
	SubwindowSize    int `mapstructure:"subwindow_size"`
	MaxDrainPerCycle int `mapstructure:"max_drain_per_cycle"`
	TickInterval     int `mapstructure:"tick_interval"`
}

// Limits holds the battery thresholds consulted by the violation scan
// and the configuration console.
type Limits struct {
	CellVoltageMin float64 `mapstructure:"cell_v_min"`
	CellVoltageMax float64 `mapstructure:"cell_v_max"`
	PackVoltageMin float64 `mapstructure:"pack_v_min"`
	PackVoltageMax float64 `mapstructure:"pack_v_max"`
	CurrentMin     float64 `mapstructure:"current_min"`
	CurrentMax     float64 `mapstructure:"current_max"`
}

// Watchdog holds the supervision timing. All values are in milliseconds.
type Watchdog struct {
	FeedInterval     int `mapstructure:"feed_interval"`
	Timeout          int `mapstructure:"timeout"`
	ProcessingBudget int `mapstructure:"processing_budget"`
}

// Telemetry holds the MQTT sink settings. Timeouts are in milliseconds.
type Telemetry struct {
	Enabled        bool   `mapstructure:"enabled"`
	Broker         string `mapstructure:"broker"`
	Topic          string `mapstructure:"topic"`
	ClientID       string `mapstructure:"client_id"`
	ConnectTimeout int    `mapstructure:"connect_timeout"`
	PublishTimeout int    `mapstructure:"publish_timeout"`
}

// History holds the stats window store settings.
type History struct {
	Enabled       bool   `mapstructure:"enabled"`
	Database      string `mapstructure:"database"`
	Retention     int    `mapstructure:"retention"`
	FlushInterval int    `mapstructure:"flush_interval"`
}

// Console holds the HTTP configuration console settings.
type Console struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// Adapter selects and seeds the sensor adapter.
type Adapter struct {
	Kind string `mapstructure:"kind"`
	Seed uint32 `mapstructure:"seed"`
}

type Config struct {
	LogLevel string `mapstructure:"log_level"`
	Debug    bool   `mapstructure:"debug"`
	Verbose  bool   `mapstructure:"verbose"`
	Delivery string `mapstructure:"delivery"`
	StateDir string `mapstructure:"state_dir"`

	Sampling  Sampling  `mapstructure:"sampling"`
	Limits    Limits    `mapstructure:"limits"`
	Watchdog  Watchdog  `mapstructure:"watchdog"`
	Adapter   Adapter   `mapstructure:"adapter"`
	Telemetry Telemetry `mapstructure:"telemetry"`
	History   History   `mapstructure:"history"`
	Console   Console   `mapstructure:"console"`

	// path of the file the configuration was loaded from, empty if defaults
	path string
}

func Load() (*Config, error) {
	errFactory := errors.New()

	fs := pflag.NewFlagSet("packmon", pflag.ContinueOnError)
	configFlag := fs.String("config", "", "Path to configuration file")
	fs.String("log-level", "", "Log level (debug, info, warning, error)")
	fs.Bool("debug", false, "Enable debugging mode")
	fs.Bool("verbose", false, "Enable verbose logging")
	fs.String("delivery", "", "Telemetry delivery mode (best_effort, at_least_once)")
	fs.String("broker", "", "MQTT broker URI")
	fs.String("listen", "", "Console listen address")
	fs.String("database", "", "History database path")
	fs.String("state-dir", "", "Directory for runtime state")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("PACKMON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Explicit config file beats the search path. PACKMON_CONFIG is kept
	// for service units that cannot pass flags.
	switch {
	case os.Getenv("PACKMON_CONFIG") != "":
		v.SetConfigFile(os.Getenv("PACKMON_CONFIG"))
	case *configFlag != "":
		v.SetConfigFile(*configFlag)
	default:
		v.SetConfigName("packmon")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/packmon")
		v.AddConfigPath(DefaultStateDir)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	// Flags set on the command line override file and environment values
	flagKeys := map[string]string{
		"log-level": "log_level",
		"debug":     "debug",
		"verbose":   "verbose",
		"delivery":  "delivery",
		"broker":    "telemetry.broker",
		"listen":    "console.listen",
		"database":  "history.database",
		"state-dir": "state_dir",
	}
	fs.Visit(func(f *pflag.Flag) {
		if key, ok := flagKeys[f.Name]; ok {
			v.Set(key, f.Value.String())
		}
	})

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}
	config.path = v.ConfigFileUsed()

	if err := config.Validate(); err != nil {
		return nil, err
	}

	applyLogLevel(config)

	return config, nil
}

// Defaults returns the built-in configuration without consulting any
// file, flag, or environment value. It backs the fallback path taken
// when the persisted configuration cannot be used.
func Defaults() (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	setDefaults(v)

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrReadConfig, err)
	}

	applyLogLevel(config)

	return config, nil
}

// IsFault reports whether err means the persisted configuration is
// unreadable or invalid, as opposed to a command-line usage error. A
// configuration fault is answered by starting in configuration mode on
// defaults rather than by refusing to start.
func IsFault(err error) bool {
	var appErr errors.Error
	if !errors.As(err, &appErr) {
		return false
	}

	switch appErr.Code() {
	case errors.ErrReadConfig, errors.ErrInvalidConfig, errors.ErrInvalidLogLevel, errors.ErrInvalidInterval:
		return true
	default:
		return false
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("debug", false)
	v.SetDefault("verbose", false)
	v.SetDefault("delivery", string(DeliveryBestEffort))
	v.SetDefault("state_dir", DefaultStateDir)

	v.SetDefault("sampling.interval", 50)
	v.SetDefault("sampling.queue_capacity", 600)
	v.SetDefault("sampling.ring_capacity", 100)
	v.SetDefault("sampling.batch_size", 20)
	v.SetDefault("sampling.subwindow_size", 4)
	v.SetDefault("sampling.max_drain_per_cycle", 100)
	v.SetDefault("sampling.tick_interval", 1000)

	v.SetDefault("limits.cell_v_min", 0.5)
	v.SetDefault("limits.cell_v_max", 2.0)
	v.SetDefault("limits.pack_v_min", 2.5)
	v.SetDefault("limits.pack_v_max", 10.0)
	v.SetDefault("limits.current_min", -5.0)
	v.SetDefault("limits.current_max", 5.0)

	v.SetDefault("watchdog.feed_interval", 20)
	v.SetDefault("watchdog.timeout", 80)
	v.SetDefault("watchdog.processing_budget", 30000)

	v.SetDefault("adapter.kind", "demo")
	v.SetDefault("adapter.seed", 0)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.broker", "tcp://localhost:1883")
	v.SetDefault("telemetry.topic", "bms/packmon/stats")
	v.SetDefault("telemetry.client_id", "")
	v.SetDefault("telemetry.connect_timeout", 10000)
	v.SetDefault("telemetry.publish_timeout", 5000)

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.database", "/var/lib/packmon/history.db")
	v.SetDefault("history.retention", 240)
	v.SetDefault("history.flush_interval", 5000)

	v.SetDefault("console.enabled", true)
	v.SetDefault("console.listen", ":8080")
}

func (c *Config) Validate() error {
	errFactory := errors.New()

	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if !DeliveryMode(c.Delivery).IsValid() {
		return errFactory.WithData(errors.ErrInvalidConfig, "delivery must be best_effort or at_least_once")
	}
	if c.StateDir == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "state_dir must not be empty")
	}

	s := c.Sampling
	if s.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, "sampling.interval must be positive")
	}
	if s.TickInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, "sampling.tick_interval must be positive")
	}
	if s.QueueCapacity <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "sampling.queue_capacity must be positive")
	}
	if s.BatchSize <= 0 || s.SubwindowSize <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "sampling.batch_size and sampling.subwindow_size must be positive")
	}
	if s.BatchSize%s.SubwindowSize != 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "sampling.batch_size must be a multiple of sampling.subwindow_size")
	}
	if s.RingCapacity < s.BatchSize {
		return errFactory.WithData(errors.ErrInvalidConfig, "sampling.ring_capacity must hold at least one batch")
	}
	if s.MaxDrainPerCycle <= 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "sampling.max_drain_per_cycle must be positive")
	}

	l := c.Limits
	if l.CellVoltageMin >= l.CellVoltageMax {
		return errFactory.WithData(errors.ErrInvalidConfig, "limits.cell_v_min must be below limits.cell_v_max")
	}
	if l.PackVoltageMin >= l.PackVoltageMax {
		return errFactory.WithData(errors.ErrInvalidConfig, "limits.pack_v_min must be below limits.pack_v_max")
	}
	if l.CurrentMin >= l.CurrentMax {
		return errFactory.WithData(errors.ErrInvalidConfig, "limits.current_min must be below limits.current_max")
	}

	w := c.Watchdog
	if w.FeedInterval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, "watchdog.feed_interval must be positive")
	}
	if w.Timeout <= w.FeedInterval {
		return errFactory.WithData(errors.ErrInvalidConfig, "watchdog.timeout must exceed watchdog.feed_interval")
	}
	if w.ProcessingBudget <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, "watchdog.processing_budget must be positive")
	}

	if c.Adapter.Kind != "demo" {
		return errFactory.WithData(errors.ErrInvalidConfig, "adapter.kind must be demo")
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.Broker == "" || c.Telemetry.Topic == "" {
			return errFactory.WithData(errors.ErrInvalidConfig, "telemetry.broker and telemetry.topic must be set")
		}
		if c.Telemetry.ConnectTimeout <= 0 || c.Telemetry.PublishTimeout <= 0 {
			return errFactory.WithData(errors.ErrInvalidInterval, "telemetry timeouts must be positive")
		}
	}

	if c.History.Enabled {
		if c.History.Database == "" {
			return errFactory.WithData(errors.ErrInvalidConfig, "history.database must be set")
		}
		if c.History.Retention <= 0 {
			return errFactory.WithData(errors.ErrInvalidConfig, "history.retention must be positive")
		}
		if c.History.FlushInterval <= 0 {
			return errFactory.WithData(errors.ErrInvalidInterval, "history.flush_interval must be positive")
		}
	}

	if c.Console.Enabled && c.Console.Listen == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "console.listen must be set")
	}

	return nil
}

// Path returns the configuration file the values were loaded from,
// empty when running on defaults.
func (c *Config) Path() string {
	return c.path
}

// Save persists the current configuration to the given path. Used by the
// console when the operator submits new limits.
func (c *Config) Save(path string) error {
	errFactory := errors.New()

	if path == "" {
		return errFactory.WithData(errors.ErrInvalidArgument, "config path must not be empty")
	}

	v := viper.New()
	v.SetConfigType("toml")

	v.Set("log_level", c.LogLevel)
	v.Set("debug", c.Debug)
	v.Set("verbose", c.Verbose)
	v.Set("delivery", c.Delivery)
	v.Set("state_dir", c.StateDir)

	v.Set("sampling.interval", c.Sampling.Interval)
	v.Set("sampling.queue_capacity", c.Sampling.QueueCapacity)
	v.Set("sampling.ring_capacity", c.Sampling.RingCapacity)
	v.Set("sampling.batch_size", c.Sampling.BatchSize)
	v.Set("sampling.subwindow_size", c.Sampling.SubwindowSize)
	v.Set("sampling.max_drain_per_cycle", c.Sampling.MaxDrainPerCycle)
	v.Set("sampling.tick_interval", c.Sampling.TickInterval)

	v.Set("limits.cell_v_min", c.Limits.CellVoltageMin)
	v.Set("limits.cell_v_max", c.Limits.CellVoltageMax)
	v.Set("limits.pack_v_min", c.Limits.PackVoltageMin)
	v.Set("limits.pack_v_max", c.Limits.PackVoltageMax)
	v.Set("limits.current_min", c.Limits.CurrentMin)
	v.Set("limits.current_max", c.Limits.CurrentMax)

	v.Set("watchdog.feed_interval", c.Watchdog.FeedInterval)
	v.Set("watchdog.timeout", c.Watchdog.Timeout)
	v.Set("watchdog.processing_budget", c.Watchdog.ProcessingBudget)

	v.Set("adapter.kind", c.Adapter.Kind)
	v.Set("adapter.seed", c.Adapter.Seed)

	v.Set("telemetry.enabled", c.Telemetry.Enabled)
	v.Set("telemetry.broker", c.Telemetry.Broker)
	v.Set("telemetry.topic", c.Telemetry.Topic)
	v.Set("telemetry.client_id", c.Telemetry.ClientID)
	v.Set("telemetry.connect_timeout", c.Telemetry.ConnectTimeout)
	v.Set("telemetry.publish_timeout", c.Telemetry.PublishTimeout)

	v.Set("history.enabled", c.History.Enabled)
	v.Set("history.database", c.History.Database)
	v.Set("history.retention", c.History.Retention)
	v.Set("history.flush_interval", c.History.FlushInterval)

	v.Set("console.enabled", c.Console.Enabled)
	v.Set("console.listen", c.Console.Listen)

	if err := v.WriteConfigAs(path); err != nil {
		return errFactory.Wrap(errors.ErrWriteConfig, err)
	}

	c.path = path

	return nil
}

func applyLogLevel(c *Config) {
	switch {
	case c.Debug:
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case c.Verbose:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	default:
		switch LogLevel(c.LogLevel) {
		case LogLevelDebug:
			zerolog.SetGlobalLevel(zerolog.DebugLevel)
		case LogLevelInfo:
			zerolog.SetGlobalLevel(zerolog.InfoLevel)
		case LogLevelWarning:
			zerolog.SetGlobalLevel(zerolog.WarnLevel)
		case LogLevelError:
			zerolog.SetGlobalLevel(zerolog.ErrorLevel)
		}
	}
}

// SamplePeriod returns the acquisition loop period.
func (c *Config) SamplePeriod() time.Duration {
	return time.Duration(c.Sampling.Interval) * time.Millisecond
}

// TickPeriod returns the state machine tick period.
func (c *Config) TickPeriod() time.Duration {
	return time.Duration(c.Sampling.TickInterval) * time.Millisecond
}

// FeedInterval returns the watchdog feeding period.
func (c *Config) FeedInterval() time.Duration {
	return time.Duration(c.Watchdog.FeedInterval) * time.Millisecond
}

// WatchdogTimeout returns the watchdog expiry timeout.
func (c *Config) WatchdogTimeout() time.Duration {
	return time.Duration(c.Watchdog.Timeout) * time.Millisecond
}

// ProcessingBudget returns the processing duty-cycle ceiling.
func (c *Config) ProcessingBudget() time.Duration {
	return time.Duration(c.Watchdog.ProcessingBudget) * time.Millisecond
}

// ConnectTimeout returns the MQTT connect wait budget.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Telemetry.ConnectTimeout) * time.Millisecond
}

// PublishTimeout returns the acknowledged-publish wait budget.
func (c *Config) PublishTimeout() time.Duration {
	return time.Duration(c.Telemetry.PublishTimeout) * time.Millisecond
}

// FlushInterval returns the history store flush period.
func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.History.FlushInterval) * time.Millisecond
}
