package server

import (
	"github.com/go-chi/chi/v5"
)

func (s *Server) routes() {
	s.router.Get("/api/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(limitBody)
		r.Use(jsonContentType)
		r.Use(corsMiddleware(s.corsOrigin))

		r.Get("/status", s.handleStatus)
		r.Get("/snapshot", s.handleSnapshot)
		r.Get("/sessions", s.handleSessions)
		r.Get("/libraries", s.handleLibraries)
		r.Get("/handles", s.handleHandles)
		r.Post("/refresh", s.handleRefresh)

		r.Route("/sessions/{id}", func(sr chi.Router) {
			sr.Post("/playing/{command}", s.handlePlayingCommand)
			sr.Post("/command/{name}", s.handleGeneralCommand)
			sr.Post("/seek", s.handleSeek)
			sr.Post("/volume", s.handleSetVolume)
			sr.Post("/message", s.handleSendMessage)
			sr.Post("/play", s.handlePlayMedia)
			sr.Delete("/", s.handleStopSession)
		})

		r.Post("/system/restart", s.handleSystemRestart)
		r.Post("/system/shutdown", s.handleSystemShutdown)
		r.Post("/library/scan", s.handleLibraryScan)
	})
}
