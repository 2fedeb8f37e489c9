package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
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

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/metrics", s.handleMetrics)

		// Reading streams
		r.Route("/streams", func(r chi.Router) {
			r.Get("/", s.handleListStreams)

			r.Route("/{stream}", func(r chi.Router) {
				r.Post("/readings", s.handleIngestReading)
				r.Get("/latest", s.handleLatestReading)
				r.Get("/history", s.handleReadingHistory)
				r.Delete("/history", s.handleClearHistory)
				r.Get("/health", s.handleStreamHealth)
			})
		})

		// Device endpoints
		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Post("/", s.handleRegisterDevice)
			r.Post("/scan", s.handleScanDevices)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetDevice)
				r.Get("/readings", s.handleDeviceReadings)
				r.Post("/commands", s.handleDeviceCommand)
			})
		})

		r.Post("/commands", s.handleSendCommand)
		r.Get("/network/status", s.handleNetworkStatus)
		r.Get("/analytics", s.handleAnalytics)
		r.Get("/audit", s.handleListAuditLogs)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}
