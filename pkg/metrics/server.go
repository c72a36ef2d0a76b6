package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/moverwatch/moverwatch/pkg/log"
)

// Server exposes the Prometheus registry and the health endpoints on one
// listener. It is optional; the monitor runs fine without it.
type Server struct {
	srv    *http.Server
	stopCh chan struct{}
}

// NewServer creates a metrics server bound to addr.
func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/health", HealthHandler())
	mux.HandleFunc("/ready", ReadyHandler())
	mux.HandleFunc("/live", LivenessHandler())

	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		stopCh: make(chan struct{}),
	}
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	logger := log.WithComponent("metrics")
	go func() {
		logger.Info().Str("addr", s.srv.Addr).Msg("Metrics server listening")
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

// Stop shuts the listener down, waiting up to the context deadline for
// in-flight scrapes.
func (s *Server) Stop(ctx context.Context) error {
	select {
	case <-s.stopCh:
		return nil
	default:
		close(s.stopCh)
	}
	return s.srv.Shutdown(ctx)
}
