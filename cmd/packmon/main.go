package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/packmon/internal/acquire"
	"codeberg.org/mutker/packmon/internal/adapter"
	"codeberg.org/mutker/packmon/internal/appsm"
	"codeberg.org/mutker/packmon/internal/bms"
	"codeberg.org/mutker/packmon/internal/config"
	"codeberg.org/mutker/packmon/internal/console"
	"codeberg.org/mutker/packmon/internal/history"
	"codeberg.org/mutker/packmon/internal/logger"
	"codeberg.org/mutker/packmon/internal/pid"
	"codeberg.org/mutker/packmon/internal/process"
	"codeberg.org/mutker/packmon/internal/queue"
	"codeberg.org/mutker/packmon/internal/stats"
	"codeberg.org/mutker/packmon/internal/telemetry"
	"codeberg.org/mutker/packmon/internal/watchdog"
)

const shutdownTimeout = 10 * time.Second

var (
	cfg *config.Config

	// configDegraded records that the persisted configuration could not
	// be used and the daemon is running on defaults.
	configDegraded bool
)

type application struct {
	machine *appsm.Machine
	console *console.Server
	sink    telemetry.Sink
	store   history.Store
}

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		if !config.IsFault(err) {
			fmt.Printf("failed to load config: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("invalid configuration, continuing with defaults: %v\n", err)
		cfg, err = config.Defaults()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			os.Exit(1)
		}
		configDegraded = true
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	if err := pid.Write(); err != nil {
		logger.Fatal().Err(err).Msg("failed to acquire PID file")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	// A persisted configuration that could not be loaded boots the
	// daemon straight into configuration mode so the operator can
	// replace it from the console.
	if configDegraded {
		if err := config.NewFlagStore(cfg.StateDir).Set(); err != nil {
			logger.Error().Err(err).Msg("failed to request configuration mode")
		} else {
			logger.Warn().Msg("Persisted configuration invalid, starting in configuration mode")
		}
	}

	// Saving or canceling configuration in the console cancels the root
	// context: the daemon exits cleanly and the service manager brings
	// it back up with the new configuration.
	app, err := buildApplication(cancel)
	if err != nil {
		logger.Error().Err(err).Msg("failed to initialize application")
		if removeErr := pid.Remove(); removeErr != nil {
			logger.Error().Err(removeErr).Msg("failed to remove PID file")
		}
		os.Exit(1)
	}

	if err := app.run(ctx); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
	}
	app.cleanup()
}

func buildApplication(restart context.CancelFunc) (*application, error) {
	limits := bms.Limits{
		CellVoltageMin: cfg.Limits.CellVoltageMin,
		CellVoltageMax: cfg.Limits.CellVoltageMax,
		PackVoltageMin: cfg.Limits.PackVoltageMin,
		PackVoltageMax: cfg.Limits.PackVoltageMax,
		CurrentMin:     cfg.Limits.CurrentMin,
		CurrentMax:     cfg.Limits.CurrentMax,
	}

	sensor, err := adapter.New(adapter.Config{
		Kind: cfg.Adapter.Kind,
		Seed: cfg.Adapter.Seed,
	}, limits, logger.Default())
	if err != nil {
		return nil, err
	}

	sampleQueue, err := queue.New(cfg.Sampling.QueueCapacity)
	if err != nil {
		return nil, err
	}

	engine, err := stats.NewEngine(stats.Config{
		Limits:        limits,
		BatchSize:     cfg.Sampling.BatchSize,
		SubwindowSize: cfg.Sampling.SubwindowSize,
	})
	if err != nil {
		return nil, err
	}

	atLeastOnce := config.DeliveryMode(cfg.Delivery) == config.DeliveryAtLeastOnce

	telemetryCfg := telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		Broker:         cfg.Telemetry.Broker,
		Topic:          cfg.Telemetry.Topic,
		ClientID:       cfg.Telemetry.ClientID,
		QoS:            telemetry.QoSFireAndForget,
		ConnectTimeout: cfg.ConnectTimeout(),
		PublishTimeout: cfg.PublishTimeout(),
	}
	if atLeastOnce {
		telemetryCfg.QoS = telemetry.QoSAtLeastOnce
	}
	mqttSink, err := telemetry.New(telemetryCfg, logger.Default())
	if err != nil {
		return nil, err
	}

	historyCfg := history.DefaultConfig()
	historyCfg.Enabled = cfg.History.Enabled
	historyCfg.DBPath = cfg.History.Database
	historyCfg.Retention = cfg.History.Retention
	historyCfg.FlushInterval = cfg.FlushInterval()
	store, err := history.NewStore(historyCfg, logger.Default())
	if err != nil {
		return nil, err
	}

	flag := config.NewFlagStore(cfg.StateDir)

	consoleCfg := console.DefaultConfig()
	consoleCfg.Enabled = cfg.Console.Enabled
	consoleCfg.Listen = cfg.Console.Listen

	var machine *appsm.Machine
	consoleSrv, err := console.New(consoleCfg, cfg, flag, store,
		func() string { return machine.State().String() },
		console.RestartFunc(restart), logger.Default())
	if err != nil {
		return nil, err
	}

	sink := mqttSink
	if consoleCfg.Enabled {
		sink = telemetry.NewFanout(mqttSink, consoleSrv.Sink())
	}

	supervisor := watchdog.NewSupervisor(logger.Default())

	timerCfg := watchdog.DefaultConfig()
	timerCfg.FeedInterval = cfg.FeedInterval()
	timerCfg.Timeout = cfg.WatchdogTimeout()
	timer, err := watchdog.NewTimer(timerCfg, logger.Default())
	if err != nil {
		return nil, err
	}

	sampler, err := acquire.New(acquire.Config{Period: cfg.SamplePeriod()},
		sensor, sampleQueue, supervisor, logger.Default())
	if err != nil {
		return nil, err
	}

	loop, err := process.New(process.Config{
		RingCapacity:     cfg.Sampling.RingCapacity,
		MaxDrainPerCycle: cfg.Sampling.MaxDrainPerCycle,
		AtLeastOnce:      atLeastOnce,
	}, sampleQueue, engine, sink, store, flag, logger.Default())
	if err != nil {
		return nil, err
	}

	machineCfg := appsm.DefaultConfig()
	machineCfg.TickPeriod = cfg.TickPeriod()
	machineCfg.ProcessingBudget = cfg.ProcessingBudget()
	machineCfg.FeedInterval = cfg.FeedInterval()
	machine, err = appsm.New(machineCfg, loop, sampler, timer, supervisor, flag, logger.Default())
	if err != nil {
		return nil, err
	}

	return &application{
		machine: machine,
		console: consoleSrv,
		sink:    sink,
		store:   store,
	}, nil
}

func (a *application) run(ctx context.Context) error {
	if err := a.console.Start(); err != nil {
		return err
	}

	a.machine.Run(ctx)

	return nil
}

func (a *application) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.console.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("failed to stop console")
	}
	if err := a.sink.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close telemetry sink")
	}
	if err := a.store.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close history store")
	}
	if err := pid.Remove(); err != nil {
		logger.Error().Err(err).Msg("failed to remove PID file")
	}
	logger.Info().Msg("Exiting...")
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}
