// Package api exposes the search, worker, and alert endpoints over HTTP.
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"pricepatrol/internal/config"
	"pricepatrol/internal/jobs"
	"pricepatrol/internal/observability"
	"pricepatrol/internal/store"
	"pricepatrol/internal/types"
)

// Server is the public HTTP surface of the pipeline.
type Server struct {
	mux          *http.ServeMux
	cfg          *config.Config
	orchestrator *jobs.Orchestrator
	alerts       store.AlertStore
	metrics      *observability.Metrics
	logger       *slog.Logger

	// workerMode exposes only the handoff endpoint plus health/metrics.
	workerMode bool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// AsWorker restricts the surface to the worker handoff endpoint.
func AsWorker() ServerOption {
	return func(s *Server) { s.workerMode = true }
}

// NewServer wires routes onto a fresh mux.
func NewServer(
	cfg *config.Config,
	orchestrator *jobs.Orchestrator,
	alerts store.AlertStore,
	metrics *observability.Metrics,
	logger *slog.Logger,
	opts ...ServerOption,
) *Server {
	s := &Server{
		mux:          http.NewServeMux(),
		cfg:          cfg,
		orchestrator: orchestrator,
		alerts:       alerts,
		metrics:      metrics,
		logger:       logger.With("component", "api_server"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	if s.cfg.Metrics.Enabled {
		s.mux.Handle("GET "+s.cfg.Metrics.Path, s.metrics)
	}
	s.mux.HandleFunc("POST /scrape", s.handleWorkerScrape)
	if s.workerMode {
		return
	}

	s.mux.HandleFunc("POST /search/scrape", s.handleSearchScrape)
	s.mux.HandleFunc("GET /search/status/{jobId}", s.handleSearchStatus)

	s.mux.HandleFunc("POST /alerts", s.handleCreateAlert)
	s.mux.HandleFunc("GET /alerts/{id}", s.handleGetAlert)
	s.mux.HandleFunc("GET /alerts", s.handleListAlerts)
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe blocks until the context is cancelled, then drains.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "addr", srv.Addr, "worker_mode", s.workerMode)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type searchRequest struct {
	Query    string `json:"query"`
	Category string `json:"category"`
}

func (s *Server) handleSearchScrape(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	job, err := s.orchestrator.Submit(r.Context(), req.Query, req.Category)
	if err != nil {
		if errors.Is(err, types.ErrEmptyQuery) {
			s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		s.logger.Error("submit failed", "error", err)
		s.jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": "could not create job"})
		return
	}
	s.jsonResponse(w, http.StatusAccepted, map[string]any{
		"jobId":  job.ID,
		"status": job.Status,
	})
}

func (s *Server) handleSearchStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.orchestrator.Status(r.Context(), r.PathValue("jobId"))
	if err != nil {
		if errors.Is(err, types.ErrJobNotFound) {
			s.jsonResponse(w, http.StatusNotFound, map[string]string{"error": "job not found"})
			return
		}
		s.logger.Error("status lookup failed", "error", err)
		s.jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}
	s.jsonResponse(w, http.StatusOK, job)
}

// handleWorkerScrape executes a previously created job on this process,
// authenticated with the shared bearer secret.
func (s *Server) handleWorkerScrape(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		s.jsonResponse(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}
	var req jobs.HandoffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.JobID == "" {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "jobId required"})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		if err := s.orchestrator.Run(ctx, req.JobID); err != nil {
			s.logger.Error("worker run failed", "job_id", req.JobID, "error", err)
		}
	}()
	s.jsonResponse(w, http.StatusAccepted, map[string]string{"jobId": req.JobID, "status": "accepted"})
}

func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.Worker.Secret == "" {
		return false
	}
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.Worker.Secret)) == 1
}

type createAlertRequest struct {
	ProductName string   `json:"productName"`
	ProductURL  string   `json:"productUrl"`
	Stores      []string `json:"stores"`
	TargetPrice float64  `json:"targetPrice"`
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req createAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}
	if strings.TrimSpace(req.ProductName) == "" {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "productName is required"})
		return
	}
	if req.TargetPrice <= 0 {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": "targetPrice must be positive"})
		return
	}

	alert := &types.Alert{
		ID:          uuid.NewString(),
		ProductName: strings.TrimSpace(req.ProductName),
		ProductURL:  strings.TrimSpace(req.ProductURL),
		Stores:      req.Stores,
		TargetPrice: req.TargetPrice,
		CreatedAt:   time.Now(),
	}
	if err := s.alerts.InsertAlert(r.Context(), alert); err != nil {
		s.logger.Error("alert create failed", "error", err)
		s.jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": "could not create alert"})
		return
	}
	s.jsonResponse(w, http.StatusCreated, alert)
}

func (s *Server) handleGetAlert(w http.ResponseWriter, r *http.Request) {
	alert, err := s.alerts.GetAlert(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, types.ErrAlertNotFound) {
			s.jsonResponse(w, http.StatusNotFound, map[string]string{"error": "alert not found"})
			return
		}
		s.logger.Error("alert lookup failed", "error", err)
		s.jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}
	s.jsonResponse(w, http.StatusOK, alert)
}

func (s *Server) handleListAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.alerts.ListAlerts(r.Context(), false)
	if err != nil {
		s.logger.Error("alert list failed", "error", err)
		s.jsonResponse(w, http.StatusInternalServerError, map[string]string{"error": "lookup failed"})
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"alerts": alerts, "count": len(alerts)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "pricepatrol",
	})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}
