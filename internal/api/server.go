// Package api is the admin HTTP API: health checks, read access to bindings
// and cooldowns, and control of the reminder driver.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"

	"github.com/Alexey3476/CoC-Telegramm/internal/api/handler"
	"github.com/Alexey3476/CoC-Telegramm/internal/config"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(s handler.Store, driver handler.Driver, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(TimingMiddleware)

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "HEAD", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Process-Time", "X-Request-Id"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Handler dependencies ---
	h := handler.New(s, driver, cfg)

	// --- Routes ---

	r.Get("/", h.Root)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
	})

	r.Route("/api/v1", func(r chi.Router) {
		// Groups
		r.Get("/groups", h.ListGroups)
		r.Get("/groups/{groupID}/bindings", h.ListBindings)
		r.Get("/groups/{groupID}/cooldowns", h.ListCooldowns)

		// Reminders
		r.Get("/reminders/status", h.ReminderStatus)
		r.Get("/reminders/enabled", h.GetEnabled)
		r.Group(func(r chi.Router) {
			r.Use(RequireToken(cfg.APIAdminToken))
			r.Post("/reminders/run", h.RunReminders)
			r.Put("/reminders/enabled", h.SetEnabled)
		})
	})

	return r
}
