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
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)

	// Ingress
	if s.ingressCfg.Enabled {
		r.Group(func(r chi.Router) {
			r.Use(s.basicAuthMiddleware)
			r.Post("/publish/{device_id}/{channel}", s.handlePublish)
			r.Put("/telemetry/{tenant}/{device}", s.handleTelemetry)
		})
	}

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	wsPath := s.wsCfg.Path
	if wsPath == "" {
		wsPath = "/ws"
	}
	r.Get(wsPath, s.handleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", s.handleListDevices)
			r.Get("/{id}/state", s.handleGetDeviceState)
		})

		r.Get("/consumers", s.handleListConsumers)

		r.Route("/deadletters", func(r chi.Router) {
			r.Get("/", s.handleListDeadLetters)
			r.Get("/{id}", s.handleGetDeadLetter)
		})
	})

	return r
}
