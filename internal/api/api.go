// Package api serves the dashboard's JSON endpoints, health and metrics.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/luki/nutetra/internal/engine"
	"github.com/luki/nutetra/internal/sensor"
	"github.com/luki/nutetra/internal/settings"
	"github.com/luki/nutetra/internal/store"
)

// Snapshots is the read side of the engine.
type Snapshots interface {
	Latest() (engine.Snapshot, bool)
}

// SettingsStore persists operator settings.
type SettingsStore interface {
	Current() settings.Settings
	Save(settings.Settings) error
	ApplyProfile(name string) (settings.Settings, error)
}

// Poller triggers an immediate controller read.
type Poller interface {
	Poll(ctx context.Context) error
}

// Options wires the server. Poller and Gatherer may be nil.
type Options struct {
	Snapshots Snapshots
	Settings  SettingsStore
	Poller    Poller
	DataDir   string
	Gatherer  prometheus.Gatherer
	Log       zerolog.Logger
}

type Server struct {
	opts   Options
	router *mux.Router
	now    func() time.Time
}

func New(opts Options) *Server {
	s := &Server{opts: opts, router: mux.NewRouter(), now: time.Now}
	s.routes()
	return s
}

func (s *Server) routes() {
	sr := s.router.PathPrefix("/api").Subrouter()
	sr.HandleFunc("/sensors", s.getSensors).Methods("GET")
	sr.HandleFunc("/sensors/read_now", s.readNow).Methods("POST")
	sr.HandleFunc("/sensor-history", s.getHistory).Methods("GET")
	sr.HandleFunc("/settings", s.getSettings).Methods("GET")
	sr.HandleFunc("/settings", s.putSettings).Methods("PUT")
	sr.HandleFunc("/settings/profile/{name}", s.applyProfile).Methods("POST")

	s.router.HandleFunc("/healthz", s.healthz).Methods("GET")
	if s.opts.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		s.opts.Log.Info().Str("addr", addr).Msg("api listening")
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// ── Sensors ──────────────────────────────────────────────────────────────────

type sensorJSON struct {
	Channel    sensor.Channel `json:"channel"`
	Name       string         `json:"name"`
	Text       string         `json:"text"`
	Status     string         `json:"status"`
	Alert      bool           `json:"alert"`
	Value      *float64       `json:"value"`
	Min        *float64       `json:"min,omitempty"`
	Max        *float64       `json:"max,omitempty"`
	Target     string         `json:"target,omitempty"`
	Updated    *time.Time     `json:"updated,omitempty"`
	UpdatedAgo string         `json:"updated_ago,omitempty"`
}

type sensorsResponse struct {
	Seq     uint64       `json:"seq"`
	At      time.Time    `json:"at"`
	Sensors []sensorJSON `json:"sensors"`
}

func (s *Server) stateJSON(st sensor.ChannelState) sensorJSON {
	out := sensorJSON{
		Channel: st.Channel,
		Name:    sensor.FriendlyName(st.Channel),
		Text:    st.Text,
		Status:  st.Status.String(),
		Alert:   st.Status.Alert(),
	}
	if st.HasValue {
		v := st.Value
		out.Value = &v
	}
	if st.HasRange {
		lo, hi := st.Range.Min, st.Range.Max
		out.Min, out.Max = &lo, &hi
		out.Target = sensor.FormatTargetRange(st.Channel, st.Range)
	}
	if !st.ObservedAt.IsZero() {
		at := st.ObservedAt
		out.Updated = &at
		out.UpdatedAgo = humanize.RelTime(at, s.now(), "ago", "from now")
	}
	return out
}

func (s *Server) getSensors(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.opts.Snapshots.Latest()
	if !ok {
		http.Error(w, "no readings yet", http.StatusServiceUnavailable)
		return
	}
	resp := sensorsResponse{Seq: snap.Seq, At: snap.At}
	for _, st := range snap.States {
		resp.Sensors = append(resp.Sensors, s.stateJSON(st))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) readNow(w http.ResponseWriter, r *http.Request) {
	if s.opts.Poller == nil {
		http.Error(w, "polling is not configured", http.StatusServiceUnavailable)
		return
	}
	if err := s.opts.Poller.Poll(r.Context()); err != nil {
		s.opts.Log.Warn().Err(err).Msg("read_now failed")
		writeJSON(w, http.StatusBadGateway, map[string]interface{}{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true})
}

// ── History ──────────────────────────────────────────────────────────────────

type channelHistory struct {
	Values     []*float64  `json:"values"`
	Timestamps []time.Time `json:"timestamps"`
	Status     string      `json:"status"`
}

type historyResponse struct {
	Timeframe string                            `json:"timeframe"`
	From      time.Time                         `json:"from"`
	To        time.Time                         `json:"to"`
	Channels  map[sensor.Channel]*channelHistory `json:"channels"`
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	tf := r.URL.Query().Get("timeframe")
	if tf == "" {
		tf = "24h"
	}
	to := s.now()
	from := to.Add(-store.ParseTimeframe(tf))

	rows, err := store.LoadRange(s.opts.DataDir, from, to)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	resp := historyResponse{Timeframe: tf, From: from, To: to, Channels: make(map[sensor.Channel]*channelHistory)}
	for _, ch := range sensor.Channels {
		resp.Channels[ch] = &channelHistory{Values: []*float64{}, Timestamps: []time.Time{}, Status: "disconnected"}
	}
	for _, row := range rows {
		h, ok := resp.Channels[row.Channel]
		if !ok {
			continue
		}
		var v *float64
		if row.HasValue {
			val := row.Value
			v = &val
			h.Status = "connected"
		}
		h.Values = append(h.Values, v)
		h.Timestamps = append(h.Timestamps, row.Time)
	}
	writeJSON(w, http.StatusOK, resp)
}

// ── Settings ─────────────────────────────────────────────────────────────────

func (s *Server) getSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.opts.Settings.Current())
}

// putSettings merges the request body over the current settings, so
// clients may send only the fields they change.
func (s *Server) putSettings(w http.ResponseWriter, r *http.Request) {
	next := s.opts.Settings.Current()
	if err := json.NewDecoder(r.Body).Decode(&next); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.opts.Settings.Save(next); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	s.opts.Log.Info().Str("profile", next.ActiveProfile).Msg("settings saved")
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) applyProfile(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if _, ok := settings.Profiles[name]; !ok {
		http.Error(w, "unknown plant profile "+name, http.StatusNotFound)
		return
	}
	next, err := s.opts.Settings.ApplyProfile(name)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.opts.Log.Info().Str("profile", name).Msg("plant profile applied")
	writeJSON(w, http.StatusOK, next)
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	snap, ok := s.opts.Snapshots.Latest()
	resp := map[string]interface{}{"status": "ok", "has_readings": ok}
	if ok {
		resp["last_update"] = humanize.Time(snap.At)
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
