// Package handler provides HTTP handlers for the admin API. Handlers read the
// store directly and drive the reminder engine through the cycle driver.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/Alexey3476/CoC-Telegramm/internal/api/respond"
	"github.com/Alexey3476/CoC-Telegramm/internal/config"
	"github.com/Alexey3476/CoC-Telegramm/internal/reminder"
	"github.com/Alexey3476/CoC-Telegramm/internal/store"
)

// Driver is the reminder cycle driver as seen by the API.
type Driver interface {
	RunOnce(ctx context.Context) (*reminder.CycleResult, error)
	Last() (*reminder.CycleResult, error)
	Enabled() bool
	SetEnabled(enabled bool)
	Interval() time.Duration
}

// Store is the persistence surface read by the API.
type Store interface {
	store.BindingRegistry
	store.CooldownStore
	Ping(ctx context.Context) error
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	store  Store
	driver Driver
	cfg    *config.Config
	now    func() time.Time
}

// New creates a Handler with shared dependencies.
func New(s Store, driver Driver, cfg *config.Config) *Handler {
	return &Handler{store: s, driver: driver, cfg: cfg, now: time.Now}
}

// Root serves API info at /.
// @Summary API root info
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":   "CoC war reminder admin API",
		"status": "running",
		"routes": []string{
			"/health",
			"/health/db",
			"/api/v1/groups",
			"/api/v1/reminders/status",
		},
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies database connectivity.
// @Summary Database health check
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	backend := "sqlite"
	if h.cfg != nil && h.cfg.UsesPostgres() {
		backend = "postgres"
	}
	if err := h.store.Ping(r.Context()); err != nil {
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"backend":   backend,
			"error":     "Database connection check failed",
			"timestamp": h.now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"backend":   backend,
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}
