// Package server exposes the link simulator over HTTP.
package server

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Server is the HTTP front end of the simulator.
type Server struct {
	router  *mux.Router
	handler *Handlers
	metrics *Metrics
	srv     *http.Server
}

// NewServer creates a server listening on addr.
func NewServer(addr string, handler *Handlers, metrics *Metrics) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		handler: handler,
		metrics: metrics,
	}
	s.srv = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/simulate", s.handler.HandleSimulate).Methods(http.MethodPost)
	api.HandleFunc("/runs", s.handler.HandleRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", s.handler.HandleRun).Methods(http.MethodGet)
	api.HandleFunc("/sweep", s.handler.HandleSweep).Methods(http.MethodPost)
	api.HandleFunc("/sweeps/{id}", s.handler.HandleSweepState).Methods(http.MethodGet)
	api.HandleFunc("/schemes", s.handler.HandleSchemes).Methods(http.MethodGet)
	api.HandleFunc("/status", s.handler.HandleStatus).Methods(http.MethodGet)

	s.router.HandleFunc("/ws", s.handler.HandleWebSocket)
	s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	log.Printf("Starting server on %s", s.srv.Addr)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
