package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"newscrawler/internal/site"
)

// RunRequest is the payload for starting a crawl run.
type RunRequest struct {
	Sites     []string `json:"sites"`
	StartDate string   `json:"start_date"` // "2006-01-02"
	EndDate   string   `json:"end_date"`
}

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid start_date")
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		s.respondWithError(w, http.StatusBadRequest, "Invalid end_date")
		return
	}
	if start.After(end) {
		s.respondWithError(w, http.StatusBadRequest, "start_date is after end_date")
		return
	}

	names := req.Sites
	if len(names) == 0 {
		names = site.Names()
	}
	var sites []*site.Config
	for _, name := range names {
		cfg, err := site.Lookup(name)
		if err != nil {
			s.respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		sites = append(sites, cfg)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.seq++
	entry := &runEntry{
		ID:        fmt.Sprintf("run-%d", s.seq),
		Status:    "running",
		StartedAt: time.Now(),
		cancel:    cancel,
	}
	s.runs[entry.ID] = entry
	s.mu.Unlock()

	go func() {
		summaries, err := s.crawler.Run(runCtx, start, end, sites)
		cancel()
		now := time.Now()
		s.mu.Lock()
		defer s.mu.Unlock()
		entry.FinishedAt = &now
		if err != nil {
			entry.Status = "failed"
			entry.Error = err.Error()
			s.logger.Error("run failed", zap.String("run", entry.ID), zap.Error(err))
			return
		}
		entry.Status = "completed"
		entry.Summaries = summaries
	}()

	s.respondWithJSON(w, http.StatusAccepted, map[string]string{"id": entry.ID})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	out := make([]runEntry, 0, len(s.runs))
	for _, entry := range s.runs {
		out = append(out, *entry)
	}
	s.mu.Unlock()
	s.respondWithJSON(w, http.StatusOK, out)
}

func (s *Server) handleRunStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	entry, ok := s.runs[id]
	var snapshot runEntry
	if ok {
		snapshot = *entry
	}
	s.mu.Unlock()
	if !ok {
		s.respondWithError(w, http.StatusNotFound, "Run not found")
		return
	}
	s.respondWithJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.mu.Lock()
	entry, ok := s.runs[id]
	if ok && entry.cancel != nil {
		entry.cancel()
	}
	s.mu.Unlock()
	if !ok {
		s.respondWithError(w, http.StatusNotFound, "Run not found")
		return
	}
	s.respondWithJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "cancelling"})
}

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	s.respondWithJSON(w, http.StatusOK, site.Names())
}

func (s *Server) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	healthStatus := make(map[string]string)
	healthy := true
	for name, backend := range s.backends {
		if err := backend.Ping(ctx); err != nil {
			healthStatus[name] = "unhealthy"
			healthy = false
			s.logger.Error("health check failed", zap.String("backend", name), zap.Error(err))
		} else {
			healthStatus[name] = "healthy"
		}
	}

	if !healthy {
		s.respondWithJSON(w, http.StatusServiceUnavailable, healthStatus)
		return
	}
	s.respondWithJSON(w, http.StatusOK, healthStatus)
}

// --- Helper Functions ---

func (s *Server) respondWithError(w http.ResponseWriter, code int, message string) {
	s.respondWithJSON(w, code, map[string]string{"error": message})
}

func (s *Server) respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, _ := json.Marshal(payload)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}
