// Package api exposes the sync engine over HTTP: the game client's
// save/load surface plus status and conflict-resolution endpoints.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/playback-games/progress-sync/internal/model"
	"github.com/playback-games/progress-sync/internal/monitor"
	"github.com/playback-games/progress-sync/internal/syncer"
)

// Server wires the coordinator and live monitor into an HTTP router.
type Server struct {
	coord *syncer.Coordinator
	mon   *monitor.Monitor
}

// NewServer builds the HTTP surface. mon may be nil when no live monitor
// is running; the conflict endpoints then report empty state.
func NewServer(coord *syncer.Coordinator, mon *monitor.Monitor) *Server {
	return &Server{coord: coord, mon: mon}
}

// Router returns the chi router with all routes mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Get("/progress/{dayKey}", s.handleLoad)
	r.Post("/progress/{dayKey}", s.handleSave)
	r.Get("/conflicts", s.handleConflicts)
	r.Post("/conflicts/{dayKey}", s.handleResolve)
	r.Post("/focus", s.handleFocus)

	return r
}

// handleHealth always answers 200 while the process is up: the engine is
// local-first, so an unreachable account store degrades rather than fails.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	remote := "ok"
	if err := s.coord.Remote().Ping(r.Context()); err != nil {
		remote = "unreachable"
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "remote": remote})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	owner := s.coord.Identity().Current()
	resp := map[string]any{
		"device_id": s.coord.DeviceID(),
		"signed_in": owner != "",
		"owner":     owner,
		"dirty":     s.coord.DirtyCount(),
	}
	if s.mon != nil {
		resp["state"] = s.mon.State()
		resp["pending_conflicts"] = len(s.mon.PendingConflicts())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	dayKey := chi.URLParam(r, "dayKey")
	rec, err := s.coord.Load(r.Context(), dayKey)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no record"})
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	dayKey := chi.URLParam(r, "dayKey")
	var rec model.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid record body"})
		return
	}

	// Save never fails from the caller's perspective; mirroring is async.
	s.coord.Save(r.Context(), dayKey, rec)
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "day_key": dayKey})
}

func (s *Server) handleConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts := []model.Conflict{}
	if s.mon != nil {
		conflicts = s.mon.PendingConflicts()
	}
	writeJSON(w, http.StatusOK, conflicts)
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if s.mon == nil {
		writeJSON(w, http.StatusConflict, map[string]string{"error": "no live monitor running"})
		return
	}
	dayKey := chi.URLParam(r, "dayKey")

	var req struct {
		Choice model.LiveChoice `json:"choice"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Choice != model.KeepLocal && req.Choice != model.KeepRemote {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "choice must be keep-local or keep-remote"})
		return
	}

	if err := s.mon.ResolvePending(r.Context(), dayKey, req.Choice); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "resolved", "day_key": dayKey})
}

func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	if s.mon != nil {
		s.mon.Focus()
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sweep scheduled"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("response encode failed", zap.Error(err))
	}
}
