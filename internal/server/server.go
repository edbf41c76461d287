// Package server is the host-boundary HTTP adapter: a thin JSON API over the
// mirrored state plus pass-through session and server control.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"embymirror/internal/coordinator"
	"embymirror/internal/emby"
	"embymirror/internal/reconciler"
)

const maxBodySize = 1 << 20

type Server struct {
	router      chi.Router
	client      *emby.Client
	coordinator *coordinator.Coordinator
	reconciler  *reconciler.Reconciler
	identity    emby.Identity
	corsOrigin  string
}

func NewServer(client *emby.Client, coord *coordinator.Coordinator, opts ...Option) *Server {
	srv := &Server{
		router:      chi.NewRouter(),
		client:      client,
		coordinator: coord,
	}
	for _, o := range opts {
		o(srv)
	}
	srv.router.Use(middleware.Logger)
	srv.router.Use(middleware.Recoverer)
	srv.routes()
	return srv
}

type Option func(*Server)

func WithCORSOrigin(origin string) Option {
	return func(s *Server) { s.corsOrigin = origin }
}

func WithReconciler(r *reconciler.Reconciler) Option {
	return func(s *Server) { s.reconciler = r }
}

func WithIdentity(id emby.Identity) Option {
	return func(s *Server) { s.identity = id }
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func limitBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
		next.ServeHTTP(w, r)
	})
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func corsMiddleware(allowedOrigin string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if allowedOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				if r.Method == http.MethodOptions {
					w.WriteHeader(http.StatusNoContent)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
