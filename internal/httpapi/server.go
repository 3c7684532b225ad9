// Package httpapi hosts the operator-facing HTTP surface: channel
// webhooks, the capture query API, the approval endpoint, health and
// metrics. Read endpoints never refresh capture activity timestamps.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/chuchurex/papaia.cl/internal/domain"
	"github.com/chuchurex/papaia.cl/internal/metrics"
)

// Approver is the out-of-band approval entrypoint (the gateway).
type Approver interface {
	Approve(ctx context.Context, address string) ([]domain.PublishResult, error)
}

// WebhookChannel is a channel adapter that exposes an HTTP webhook.
type WebhookChannel interface {
	Name() string
	Handler() http.Handler
}

type Server struct {
	store    domain.CaptureStore
	approver Approver
	logger   *slog.Logger
	srv      *http.Server
}

type Config struct {
	Addr     string
	Store    domain.CaptureStore
	Approver Approver
	Webhooks []WebhookChannel
	Logger   *slog.Logger
}

func New(cfg Config) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	s := &Server{
		store:    cfg.Store,
		approver: cfg.Approver,
		logger:   cfg.Logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /api/captures", s.handleListCaptures)
	mux.HandleFunc("GET /api/captures/{address}", s.handleGetCapture)
	mux.HandleFunc("POST /api/captures/{address}/approve", s.handleApprove)
	mux.HandleFunc("GET /api/stats", s.handleStats)
	mux.Handle("GET /metrics", metrics.Collector.Handler())

	// Channel webhooks keep their own sub-muxes; mount them at the root so
	// their registered paths resolve unchanged.
	for _, ch := range cfg.Webhooks {
		mux.Handle("/webhook/"+ch.Name()+"/", ch.Handler())
		mux.Handle("/webhook/"+ch.Name(), ch.Handler())
	}

	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": int64(metrics.Collector.Uptime().Seconds()),
	})
}

func (s *Server) handleListCaptures(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.List(r.Context())
	if err != nil {
		s.logger.Error("list captures failed", "error", err)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}

	state := r.URL.Query().Get("state")
	out := make([]*domain.CaptureRecord, 0, len(recs))
	for _, rec := range recs {
		if state != "" && string(rec.State) != state {
			continue
		}
		out = append(out, rec)
	}
	writeJSON(w, http.StatusOK, map[string]any{"captures": out, "count": len(out)})
}

func (s *Server) handleGetCapture(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	rec, err := s.store.Get(r.Context(), address)
	if err != nil {
		s.logger.Error("get capture failed", "address", address, "error", err)
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, fmt.Sprintf("no capture for %s", address))
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	address := r.PathValue("address")
	results, err := s.approver.Approve(r.Context(), address)
	if err != nil {
		status := http.StatusConflict
		if strings.Contains(err.Error(), "no capture") {
			status = http.StatusNotFound
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "storage error")
		return
	}

	byState := make(map[string]int)
	byChannel := make(map[string]int)
	for _, rec := range recs {
		byState[string(rec.State)]++
		byChannel[rec.Channel]++
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"total":     len(recs),
		"byState":   byState,
		"byChannel": byChannel,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
