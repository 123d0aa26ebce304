package console

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"codeberg.org/mutker/packmon/internal/config"
	"codeberg.org/mutker/packmon/internal/errors"
	"codeberg.org/mutker/packmon/internal/stats"
)

// configPayload mirrors the shape the config form expects. Battery
// limits and broker settings are editable; the delivery mode is shown
// for reference only.
type configPayload struct {
	Battery  batteryPayload `json:"battery"`
	Mqtt     mqttPayload    `json:"mqtt"`
	Delivery string         `json:"delivery"`
}

type batteryPayload struct {
	CellVoltageMin float64 `json:"cell_v_min"`
	CellVoltageMax float64 `json:"cell_v_max"`
	PackVoltageMin float64 `json:"pack_v_min"`
	PackVoltageMax float64 `json:"pack_v_max"`
	CurrentMin     float64 `json:"current_min"`
	CurrentMax     float64 `json:"current_max"`
}

type mqttPayload struct {
	Broker string `json:"broker"`
	Topic  string `json:"topic"`
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}

func (s *Server) handleStatsPage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(statsHTML))
}

// handleConfigPage serves the configuration form. Viewing the form
// requests configuration mode, matching the rest of the console's
// behavior to the device it fronts: measurement is suspended while an
// operator is editing limits.
func (s *Server) handleConfigPage(w http.ResponseWriter, r *http.Request) {
	if err := s.flag.Set(); err != nil {
		s.log.Error().Err(err).Msg("Could not request configuration mode")
		http.Error(w, "could not request configuration mode", http.StatusInternalServerError)

		return
	}

	s.log.Info().Msg("Configuration mode requested from console")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(configHTML))
}

func (s *Server) handleStatsData(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	windows, err := s.store.Recent(0)
	if err != nil {
		s.log.Error().Err(err).Msg("Could not read stats history")
		http.Error(w, "could not read stats history", http.StatusInternalServerError)

		return
	}
	if windows == nil {
		windows = []stats.Window{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(windows)
}

func (s *Server) handleConfigData(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.sendConfig(w)
	case http.MethodPost:
		s.saveConfig(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) sendConfig(w http.ResponseWriter) {
	s.mu.Lock()
	payload := configPayload{
		Battery: batteryPayload{
			CellVoltageMin: s.settings.Limits.CellVoltageMin,
			CellVoltageMax: s.settings.Limits.CellVoltageMax,
			PackVoltageMin: s.settings.Limits.PackVoltageMin,
			PackVoltageMax: s.settings.Limits.PackVoltageMax,
			CurrentMin:     s.settings.Limits.CurrentMin,
			CurrentMax:     s.settings.Limits.CurrentMax,
		},
		Mqtt: mqttPayload{
			Broker: s.settings.Telemetry.Broker,
			Topic:  s.settings.Telemetry.Topic,
		},
		Delivery: s.settings.Delivery,
	}
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(payload)
}

// saveConfig applies the submitted form, persists the configuration,
// clears the mode request and schedules a restart. Fields left out of
// the form keep their current values.
func (s *Server) saveConfig(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "malformed form", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	limits := s.settings.Limits
	fields := map[string]*float64{
		"cell_v_min":  &limits.CellVoltageMin,
		"cell_v_max":  &limits.CellVoltageMax,
		"pack_v_min":  &limits.PackVoltageMin,
		"pack_v_max":  &limits.PackVoltageMax,
		"current_min": &limits.CurrentMin,
		"current_max": &limits.CurrentMax,
	}
	for key, dst := range fields {
		if err := applyField(r.PostForm, key, dst); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	if err := validateLimits(limits); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.settings.Limits = limits
	if broker := r.PostForm.Get("mqtt_broker"); broker != "" {
		s.settings.Telemetry.Broker = broker
	}
	if topic := r.PostForm.Get("mqtt_topic"); topic != "" {
		s.settings.Telemetry.Topic = topic
	}

	path := s.savePath()
	if err := s.settings.Save(path); err != nil {
		s.log.Error().Err(err).Str("path", path).Msg("Could not save configuration")
		http.Error(w, "could not save configuration", http.StatusInternalServerError)

		return
	}
	if err := s.flag.Clear(); err != nil {
		s.log.Error().Err(err).Msg("Could not clear configuration mode request")
	}

	s.log.Info().Str("path", path).Msg("Configuration saved, restart scheduled")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(savedHTML))

	s.scheduleRestart()
}

// handleConfigMode sets the configuration-mode flag without serving
// the form, for headless clients that drive the device over the API.
func (s *Server) handleConfigMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.flag.Set(); err != nil {
		s.log.Error().Err(err).Msg("Could not request configuration mode")
		http.Error(w, "could not request configuration mode", http.StatusInternalServerError)

		return
	}

	s.log.Info().Msg("Configuration mode requested")

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleConfigCancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := s.flag.Clear(); err != nil {
		s.log.Error().Err(err).Msg("Could not clear configuration mode request")
	}

	s.log.Info().Msg("Configuration canceled, restart scheduled")

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(canceledHTML))

	s.scheduleRestart()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":         "ok",
		"mode":           s.state(),
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
	})
}

// applyField overwrites dst with the parsed form value. An absent field
// keeps the current value.
func applyField(form url.Values, key string, dst *float64) error {
	raw := form.Get(key)
	if raw == "" {
		return nil
	}

	val, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return errors.New().WithData(ErrInvalidLimits, key+" is not a number")
	}
	*dst = val

	return nil
}

func validateLimits(l config.Limits) error {
	errFactory := errors.New()

	if l.CellVoltageMin >= l.CellVoltageMax {
		return errFactory.WithData(ErrInvalidLimits, "cell_v_min must be below cell_v_max")
	}
	if l.PackVoltageMin >= l.PackVoltageMax {
		return errFactory.WithData(ErrInvalidLimits, "pack_v_min must be below pack_v_max")
	}
	if l.CurrentMin >= l.CurrentMax {
		return errFactory.WithData(ErrInvalidLimits, "current_min must be below current_max")
	}

	return nil
}
