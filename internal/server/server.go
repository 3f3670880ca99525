package server

import (
	"context"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/calorily/backend/internal/service"
)

// Server ties the HTTP surface and the analysis dispatcher together so they
// start and stop as one unit.
type Server struct {
	http       *http.Server
	dispatcher *service.Dispatcher
}

// New creates a new server instance
func New(router *gin.Engine, dispatcher *service.Dispatcher, addr string) *Server {
	return &Server{
		http: &http.Server{
			Addr:    addr,
			Handler: router,
		},
		dispatcher: dispatcher,
	}
}

// Start launches the dispatcher workers and serves HTTP. It blocks until the
// listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.dispatcher.Start()
	log.Printf("Listening on %s", s.http.Addr)
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, then drains the dispatcher so in-flight
// analysis outcomes still get written back.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.http.Shutdown(ctx); err != nil {
		return err
	}
	return s.dispatcher.Stop(ctx)
}
