package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/skysync/internal/dashboard"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Route("/panels", func(r chi.Router) {
				r.Get("/", s.handleListPanels)

				r.Route("/{panelID}", func(r chi.Router) {
					r.Get("/", s.handleGetPanel)
					r.Get("/history", s.handleGetPanelHistory)
					r.With(s.requireControl).Put("/arm-state", s.handleSetArmState)
					r.With(s.requireControl).Post("/refresh", s.handleRefreshPanel)

					r.Route("/devices", func(r chi.Router) {
						r.Get("/", s.handleListDevices)

						r.Route("/{deviceID}", func(r chi.Router) {
							r.Get("/", s.handleGetDevice)
							r.Get("/history", s.handleGetDeviceHistory)
							r.With(s.requireControl).Put("/lock", s.handleSetLock)
							r.With(s.requireControl).Put("/garage-door", s.handleSetGarageDoor)
						})
					})
				})
			})

			r.Get("/ws", s.handleWebSocket)
		})
	})

	// Status page; it holds no data and authenticates its own API calls.
	if s.cfg.Dashboard.Enabled {
		r.Handle("/*", dashboard.Handler(s.cfg.Dashboard.Dir))
	}

	return r
}

// handleHealth returns the server health status and the mirror's state.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   s.version,
		"mirror":    s.mirror.Status(),
		"websocket": s.hub.Stats(),
	})
}
