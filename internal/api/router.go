package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware())
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus scrape endpoint (no auth, LAN monitoring)
	r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		// No auth required
		r.Get("/health", s.handleHealth)
		r.Post("/auth/login", s.handleLogin)

		// WebSocket authenticates from the token query parameter
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/system", s.handleSystemMetrics)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Put("/", s.handlePutDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Post("/commands", s.handleDeviceCommand)
					r.Get("/command", s.handleCommandState)
					r.Post("/refresh", s.handleRefreshDevice)
				})
			})

			r.Route("/rooms", func(r chi.Router) {
				r.Get("/", s.handleListRooms)
				r.Put("/{id}", s.handlePutRoom)
				r.Delete("/{id}", s.handleDeleteRoom)
			})

			r.Route("/scenes", func(r chi.Router) {
				r.Get("/", s.handleListScenes)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetScene)
					r.Put("/", s.handlePutScene)
					r.Delete("/", s.handleDeleteScene)
					r.Post("/activate", s.handleActivateScene)
				})
			})

			r.Post("/discovery", s.handleDiscovery)
			r.Get("/mqtt/status", s.handleMQTTStatus)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
