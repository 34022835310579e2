package api

import (
	"github.com/go-chi/chi/v5"
)

// buildRouter assembles the route tree. Everything lives under /api/v1;
// the surface is read-only apart from the session stop request.
func (s *Server) buildRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(s.recoveryMiddleware)
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Get("/session", s.handleSession)
		r.Post("/session/stop", s.handleSessionStop)
		r.Post("/session/notes", s.handleSessionNote)

		r.Get("/devices", s.handleDevices)
		r.Get("/devices/{id}", s.handleDevice)

		r.Get("/data/latest/{id}", s.handleLatest)
		r.Get("/data/type/{type}", s.handleLatestByType)
		r.Get("/data/stats", s.handleStats)

		r.Get("/ws", s.handleWebSocket)
	})

	return r
}
