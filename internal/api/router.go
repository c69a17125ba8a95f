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
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Device-facing endpoints (per-device API key).
		// Heartbeat authenticates inside the handler: the
		// auth -> blocked-gate -> facts -> drain -> ota ordering is
		// part of its contract.
		r.Route("/device", func(r chi.Router) {
			r.Post("/heartbeat", s.handleHeartbeat)

			r.Group(func(r chi.Router) {
				r.Use(s.deviceAuthMiddleware)
				r.Post("/event", s.handleDeviceEvent)
				r.Get("/firmware/{version}", s.handleFirmwareDownload)
			})
		})

		// Admin endpoints (static bearer token, consumed by the
		// external CRUD layer).
		r.Group(func(r chi.Router) {
			r.Use(s.adminAuthMiddleware)

			r.Route("/devices", func(r chi.Router) {
				r.Get("/", s.handleListDevices)
				r.Post("/", s.handleRegisterDevice)
				r.Get("/stats", s.handleFleetStats)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDevice)
					r.Patch("/", s.handleRenameDevice)
					r.Delete("/", s.handleDeleteDevice)
					r.Put("/state", s.handleSetDeviceState)
					r.Put("/ota", s.handleSetDeviceOTA)

					r.Route("/commands", func(r chi.Router) {
						r.Get("/", s.handleCommandHistory)
						r.Post("/", s.handleEnqueueCommand)
					})

					r.Route("/schedule", func(r chi.Router) {
						r.Get("/", s.handleGetSchedule)
						r.Put("/", s.handlePutSchedule)
						r.Delete("/", s.handleDeleteSchedule)
					})

					r.Get("/alarms", s.handleDeviceAlarms)
				})
			})

			r.Route("/firmware", func(r chi.Router) {
				r.Get("/", s.handleListFirmware)
				r.Post("/", s.handleFirmwareUpload)
				r.Delete("/{id}", s.handleDeleteFirmware)
			})

			r.Get("/alarms", s.handleListAlarms)
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
