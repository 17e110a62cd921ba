package handlers

import (
	"context"
	"log/slog"
	"net/http"
)

// Pinger проверяет доступность хранилища
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	logger  *slog.Logger
	db      Pinger
	version string
}

// NewHealthHandler создает новый handler для health check
func NewHealthHandler(logger *slog.Logger, db Pinger, version string) *HealthHandler {
	return &HealthHandler{
		logger:  logger,
		db:      db,
		version: version,
	}
}

// HealthResponse представляет ответ health check
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// Health обрабатывает GET /api/health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:  "ok",
		Version: h.version,
	}
	status := http.StatusOK

	if err := h.db.Ping(r.Context()); err != nil {
		h.logger.ErrorContext(r.Context(), "database ping failed", slog.Any("error", err))
		resp.Status = "unavailable"
		status = http.StatusServiceUnavailable
	}

	sendJSON(h.logger, w, resp, status)
}
