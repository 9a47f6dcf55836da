// Package api implements the HTTP surface of the ingest service.
//
// Routes:
//
//	GET  /health        → liveness
//	POST /scrape/start  → start a run, returns {"sessionId": "..."} at once
//	GET  /metrics       → prometheus
package api

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"jobmate/ingest-service/internal/metrics"
)

const (
	serviceName = "ingest-service"
	Version     = "1.0.0"
)

// Starter kicks off a run. Implemented by *pipeline.Runner.
type Starter interface {
	Start(ctx context.Context) (string, error)
}

// Handler holds shared dependencies.
type Handler struct {
	runs   Starter
	logger *zap.Logger
}

// NewHandler returns a configured Handler.
func NewHandler(runs Starter, logger *zap.Logger) *Handler {
	return &Handler{runs: runs, logger: logger.Named("api")}
}

// RegisterRoutes mounts all ingest-service routes on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.health)
	mux.HandleFunc("/scrape/start", h.startScrape)
	mux.Handle("/metrics", metrics.Handler())
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	jsonOK(w, map[string]string{
		"status":  "ok",
		"service": serviceName,
		"version": Version,
	})
}

type startResponse struct {
	SessionID string `json:"sessionId"`
}

// startScrape handles POST /scrape/start. The run continues after the
// response is written.
func (h *Handler) startScrape(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		jsonError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	id, err := h.runs.Start(r.Context())
	if err != nil {
		h.logger.Error("start run", zap.Error(err))
		jsonError(w, "could not start scraping session", http.StatusServiceUnavailable)
		return
	}

	h.logger.Info("run started via http", zap.String("sessionId", id))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(startResponse{SessionID: id})
}

func jsonOK(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
