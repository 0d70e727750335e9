package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/iudanet/clinicsync/pkg/api"
)

// Pinger reports database availability
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler обрабатывает health check запросы
type HealthHandler struct {
	logger *slog.Logger
	db     Pinger
	now    func() time.Time
}

// NewHealthHandler создает новый handler для health check
func NewHealthHandler(logger *slog.Logger, db Pinger) *HealthHandler {
	return &HealthHandler{
		logger: logger,
		db:     db,
		now:    time.Now,
	}
}

// Health обрабатывает GET /api/v1/health.
// Недоступная база данных дает 503, и клиенты считают сервер offline.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			h.logger.Error("Database ping failed", "error", err)
			writeJSON(h.logger, w, http.StatusServiceUnavailable, api.HealthResponse{Status: "unavailable", Time: h.now().UTC()})
			return
		}
	}
	writeJSON(h.logger, w, http.StatusOK, api.HealthResponse{Status: "ok", Time: h.now().UTC()})
}
