package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/revwatch/revwatch/internal/models"
	"github.com/revwatch/revwatch/internal/store"
)

// Analyzer produces a review for a code snippet.
// Implemented by inference.Client.
type Analyzer interface {
	Review(ctx context.Context, code string) (string, error)
}

// Info describes the running instance for GET /api/v1/status.
type Info struct {
	WatchDir   string
	Extensions []string
	Provider   string
	Model      string
}

// WatchStats is a snapshot of watcher and dispatcher counters.
type WatchStats struct {
	EventsObserved int64 `json:"events_observed"`
	EventsEmitted  int64 `json:"events_emitted"`
	Settles        int64 `json:"settles"`
	Runs           int64 `json:"runs"`
	QueuedReruns   int64 `json:"queued_reruns"`
	Skips          int64 `json:"skips"`
}

// Server provides the REST API handlers.
type Server struct {
	analyzer Analyzer
	store    store.Store
	info     Info
	stats    func() WatchStats
}

// NewServer creates a new API server. The store may be nil when run
// history is disabled; stats may be nil when no watcher is running.
func NewServer(analyzer Analyzer, s store.Store, info Info, stats func() WatchStats) *Server {
	return &Server{
		analyzer: analyzer,
		store:    s,
		info:     info,
		stats:    stats,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	// Bare /analyze is kept alongside the versioned route for
	// scripted clients that POST snippets directly.
	mux.HandleFunc("POST /analyze", s.analyze)
	mux.HandleFunc("POST /api/v1/analyze", s.analyze)

	mux.HandleFunc("GET /api/v1/runs", s.listRuns)
	mux.HandleFunc("GET /api/v1/runs/{id}", s.getRun)

	mux.HandleFunc("GET /api/v1/status", s.status)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Analyze ---

type analyzeRequest struct {
	Code string `json:"code"`
}

type analyzeResponse struct {
	Analysis string `json:"analysis"`
}

func (s *Server) analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	analysis, err := s.analyzer.Review(r.Context(), req.Code)
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("analysis failed: %v", err))
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{Analysis: analysis})
}

// --- Runs ---

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run history not configured")
		return
	}

	filter := store.RunListFilter{
		File:   r.URL.Query().Get("file"),
		Status: models.RunStatus(r.URL.Query().Get("status")),
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = n
	}

	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []*models.ReviewRun{}
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusServiceUnavailable, "run history not configured")
		return
	}

	id := r.PathValue("id")
	run, err := s.store.GetRun(r.Context(), id)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// --- Status ---

type statusResponse struct {
	WatchDir   string         `json:"watch_dir,omitempty"`
	Extensions []string       `json:"extensions,omitempty"`
	Provider   string         `json:"provider"`
	Model      string         `json:"model"`
	Runs       map[string]int `json:"runs"`
	Watch      *WatchStats    `json:"watch,omitempty"`
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		WatchDir:   s.info.WatchDir,
		Extensions: s.info.Extensions,
		Provider:   s.info.Provider,
		Model:      s.info.Model,
		Runs:       map[string]int{},
	}

	if s.store != nil {
		counts, err := s.store.CountRunsByStatus(r.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		for status, n := range counts {
			resp.Runs[string(status)] = n
		}
	}

	if s.stats != nil {
		ws := s.stats()
		resp.Watch = &ws
	}

	writeJSON(w, http.StatusOK, resp)
}
