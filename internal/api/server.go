package api

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"newscrawler/internal/config"
	"newscrawler/internal/crawler"
	"newscrawler/internal/domain"
	"newscrawler/internal/monitoring"
)

// Pinger is anything whose backing connection can be health-checked.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server holds the dependencies for the HTTP server.
type Server struct {
	config     *config.Config
	router     http.Handler
	httpServer *http.Server
	crawler    *crawler.Crawler
	metrics    *monitoring.Metrics
	logger     *zap.Logger

	backends map[string]Pinger

	mu   sync.Mutex
	runs map[string]*runEntry
	seq  int
}

// runEntry tracks one crawl run triggered through the API.
type runEntry struct {
	ID         string              `json:"id"`
	Status     string              `json:"status"` // "running", "completed", "failed"
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt *time.Time          `json:"finished_at,omitempty"`
	Error      string              `json:"error,omitempty"`
	Summaries  []domain.RunSummary `json:"summaries,omitempty"`
	cancel     context.CancelFunc
}

func NewServer(cfg *config.Config, cr *crawler.Crawler, backends map[string]Pinger, m *monitoring.Metrics, l *zap.Logger) *Server {
	s := &Server{
		config:   cfg,
		crawler:  cr,
		backends: backends,
		metrics:  m,
		logger:   l,
		runs:     make(map[string]*runEntry),
	}
	s.router = s.setupRouter()
	return s
}

func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", s.config.ServerPort),
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for _, run := range s.runs {
		if run.cancel != nil {
			run.cancel()
		}
	}
	s.mu.Unlock()
	return s.httpServer.Shutdown(ctx)
}
