// Package console serves the operator-facing HTTP surface: the status
// and statistics pages, the configuration form, and a websocket stream
// of freshly computed windows. Opening the configuration form requests
// configuration mode; the state machine suspends measurement on its
// next tick, and saving or canceling schedules a restart.
package console

import (
	"context"
	"net"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"codeberg.org/mutker/packmon/internal/config"
	"codeberg.org/mutker/packmon/internal/errors"
	"codeberg.org/mutker/packmon/internal/history"
	"codeberg.org/mutker/packmon/internal/logger"
)

const savedConfigName = "packmon.toml"

// StateFunc reports the current application mode for the status
// endpoints.
type StateFunc func() string

// RestartFunc is invoked after a save or cancel response has been
// written. The usual wiring cancels the root context so the service
// manager restarts the daemon with the new configuration.
type RestartFunc func()

// ModeFlag is the persisted configuration-mode request toggled by the
// console. *config.FlagStore satisfies it.
type ModeFlag interface {
	Set() error
	Clear() error
}

type Server struct {
	cfg      Config
	settings *config.Config
	flag     ModeFlag
	store    history.Store
	state    StateFunc
	restart  RestartFunc
	log      logger.Logger

	cast    *broadcaster
	httpSrv *http.Server
	started time.Time

	// mu serializes configuration reads and saves across requests.
	mu sync.Mutex
}

func New(cfg Config, settings *config.Config, flag ModeFlag, store history.Store,
	state StateFunc, restart RestartFunc, log logger.Logger,
) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		settings: settings,
		flag:     flag,
		store:    store,
		state:    state,
		restart:  restart,
		log:      log,
		cast:     newBroadcaster(),
		started:  time.Now(),
	}

	// No write timeout: the live stream holds its connection open for as
	// long as the viewer stays.
	s.httpSrv = &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s, nil
}

// Handler returns the console routing table. Exposed so tests can drive
// the endpoints without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/stats", s.handleStatsPage)
	mux.HandleFunc("/config", s.handleConfigPage)
	mux.HandleFunc("/api/stats", s.handleStatsData)
	mux.HandleFunc("/api/config", s.handleConfigData)
	mux.HandleFunc("/api/config-mode", s.handleConfigMode)
	mux.HandleFunc("/api/config/cancel", s.handleConfigCancel)
	mux.HandleFunc("/api/live", s.handleLive)
	mux.HandleFunc("/healthz", s.handleHealth)

	return mux
}

// Start binds the listen address and begins serving in the background.
// A disabled console starts nothing and reports success.
func (s *Server) Start() error {
	if !s.cfg.Enabled {
		s.log.Debug().Msg("Console disabled")
		return nil
	}

	errFactory := errors.New()

	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return errFactory.Wrap(ErrServeFailed, err)
	}

	s.log.Info().Str("listen", ln.Addr().String()).Msg("Console listening")

	go func() {
		if err := s.httpSrv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.ErrorWithCode(errFactory.Wrap(ErrServeFailed, err)).
				Msg("Console server stopped unexpectedly")
		}
	}()

	return nil
}

// Shutdown detaches the live stream viewers and drains in-flight
// requests within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}

	s.cast.close()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return errors.New().Wrap(ErrServeFailed, err)
	}

	s.log.Debug().Msg("Console stopped")

	return nil
}

// savePath is where submitted configuration lands. An explicitly loaded
// file is updated in place; otherwise the file goes to the state
// directory, which is on the configuration search path.
func (s *Server) savePath() string {
	if p := s.settings.Path(); p != "" {
		return p
	}

	return filepath.Join(s.settings.StateDir, savedConfigName)
}

// scheduleRestart invokes the restart hook after the grace period so the
// response reaches the browser first.
func (s *Server) scheduleRestart() {
	go func() {
		time.Sleep(s.cfg.RestartDelay)
		s.restart()
	}()
}
