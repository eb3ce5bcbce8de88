// Package web serves the daemon's HTTP API: engine status, the precomputed
// timeline the display surface pulls on wake, manual refresh, and settings.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"leavetimed/internal/config"
	"leavetimed/internal/engine"
	appLog "leavetimed/internal/log"
	"leavetimed/internal/store"
	"leavetimed/internal/timeline"
)

// Server wires the engine, store and timeline generator behind HTTP.
type Server struct {
	cfg    *config.Config
	engine *engine.Engine
	store  *store.Store
	gen    *timeline.Generator
	router chi.Router
}

func NewServer(cfg *config.Config, eng *engine.Engine, st *store.Store, gen *timeline.Generator) *Server {
	s := &Server{
		cfg:    cfg,
		engine: eng,
		store:  st,
		gen:    gen,
	}
	s.router = s.buildRouter()
	return s
}

// Handler returns the http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.basicAuthEnabled() {
			appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
			r.Use(s.basicAuth)
		}
		r.Get("/api/status", s.handleStatus)
		r.Get("/api/timeline", s.handleTimeline)
		r.Post("/api/refresh", s.handleRefresh)
		r.Get("/api/settings", s.handleGetSettings)
		r.Put("/api/settings", s.handlePutSettings)
	})
	return r
}

func (s *Server) basicAuthEnabled() bool {
	ba := s.cfg.BasicAuth
	// Treat empty username or password as disabled.
	return ba != nil && ba.Username != "" && ba.Password != ""
}

// basicAuth guards everything except /health, which is registered outside
// this group.
func (s *Server) basicAuth(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="leavetimed", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.engine.State())
}

// handleTimeline regenerates the timeline from the persisted snapshot on
// every call. This is the pull half of the display-refresh contract: the
// surface wakes, fetches once, and renders from the precomputed entries
// until its next wake.
func (s *Server) handleTimeline(w http.ResponseWriter, r *http.Request) {
	snap, err := s.store.ReadSnapshot(r.Context())
	if err != nil {
		if !errors.Is(err, store.ErrNoSnapshot) {
			appLog.Error("snapshot read failed", err)
		}
		writeJSON(w, http.StatusOK, s.gen.Generate(nil))
		return
	}
	writeJSON(w, http.StatusOK, s.gen.Generate(&snap))
}

// handleRefresh triggers a forced engine run in the background. A drop by
// the re-entrancy guard is indistinguishable from a started run here; the
// trigger is fire-and-forget.
func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	go s.engine.Refresh(context.Background(), true)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "refresh triggered"})
}

type settingsPayload struct {
	AlertsEnabled *bool `json:"alerts_enabled,omitempty"`
	BufferMinutes *int  `json:"buffer_minutes,omitempty"`
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	enabled, err := s.store.AlertsEnabled(ctx, s.cfg.AlertsEnabled)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read settings")
		return
	}
	buffer, err := s.store.BufferMinutes(ctx, s.cfg.BufferMinutes)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read settings")
		return
	}
	writeJSON(w, http.StatusOK, settingsPayload{AlertsEnabled: &enabled, BufferMinutes: &buffer})
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var payload settingsPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings payload")
		return
	}
	if payload.AlertsEnabled == nil && payload.BufferMinutes == nil {
		writeError(w, http.StatusBadRequest, "no settings provided")
		return
	}

	ctx := r.Context()
	if payload.AlertsEnabled != nil {
		if err := s.store.SetAlertsEnabled(ctx, *payload.AlertsEnabled); err != nil {
			appLog.Error("settings write failed", err)
			writeError(w, http.StatusInternalServerError, "failed to store settings")
			return
		}
	}
	if payload.BufferMinutes != nil {
		if err := s.store.SetBufferMinutes(ctx, *payload.BufferMinutes); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	// Re-derive from the persisted snapshot under the new settings. No
	// event or travel refetch is involved, so this is cheap enough to run
	// inline.
	s.engine.OnSettingsChanged(context.Background())

	s.handleGetSettings(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("response encode failed", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
