package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/pmtool/pkg/api"
)

const healthCheckTimeout = 2 * time.Second

// Pinger проверяет доступность зависимости (база данных)
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	responder
	db      Pinger
	version string
}

// NewHealthHandler создает новый handler для health check. db может быть nil.
func NewHealthHandler(logger *slog.Logger, db Pinger, version string) *HealthHandler {
	return &HealthHandler{
		responder: responder{logger: logger},
		db:        db,
		version:   version,
	}
}

// Root обрабатывает GET /
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	h.sendJSON(w, api.MessageResponse{Message: "Hello World"}, http.StatusOK)
}

// Health обрабатывает GET /health
// Отвечает 503, если база данных недоступна.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := api.HealthResponse{
		Status:  "ok",
		Version: h.version,
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := h.db.Ping(ctx); err != nil {
			h.logger.ErrorContext(ctx, "database health check failed", slog.Any("error", err))
			resp.Status = "unavailable"
			resp.Database = "down"
			h.sendJSON(w, resp, http.StatusServiceUnavailable)
			return
		}
		resp.Database = "up"
	}

	h.sendJSON(w, resp, http.StatusOK)
}
