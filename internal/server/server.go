// Package server exposes Voxgate's streaming ingest surface: a WebSocket
// endpoint that feeds audio through per-connection detectors, plus the
// health, readiness, and metrics endpoints around it.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/voxgate/voxgate/internal/config"
	"github.com/voxgate/voxgate/internal/health"
	"github.com/voxgate/voxgate/internal/observe"
	"github.com/voxgate/voxgate/pkg/vad"
)

// shutdownTimeout bounds graceful HTTP shutdown after the run context ends.
const shutdownTimeout = 15 * time.Second

// Server hosts the Voxgate HTTP and WebSocket surface. Create it with [New],
// then call [Server.Run].
type Server struct {
	cfg     *config.Config
	metrics *observe.Metrics
	httpSrv *http.Server

	// listener is set once Run has bound the listen address. listenerCh is
	// closed at that point; Addr blocks on it.
	mu         sync.Mutex
	listener   net.Listener
	listenerCh chan struct{}

	// streams tracks live detector connections for config fan-out and the
	// capacity readiness check.
	streams map[*stream]struct{}
}

// New creates a Server from a validated config. version appears in the
// /healthz response.
func New(cfg *config.Config, m *observe.Metrics, version string) *Server {
	s := &Server{
		cfg:        cfg,
		metrics:    m,
		listenerCh: make(chan struct{}),
		streams:    make(map[*stream]struct{}),
	}

	probes := health.New(version,
		health.CapacityCheck("stream_capacity", s.ActiveStreams, cfg.Ingest.MaxStreams),
	)

	mux := http.NewServeMux()
	probes.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /v1/streams", s.handleStream)

	s.httpSrv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           observe.Middleware(m)(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully. Open
// WebSocket streams are closed as part of shutdown.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.ListenAddr)
	if err != nil {
		return fmt.Errorf("server: listen on %s: %w", s.cfg.Server.ListenAddr, err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()
	close(s.listenerCh)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if tls := s.cfg.Server.TLS; tls != nil {
			err = s.httpSrv.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = s.httpSrv.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		s.closeStreams()
		if err := s.httpSrv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	})

	slog.Info("server listening", "addr", ln.Addr().String(), "tls", s.cfg.Server.TLS != nil)
	return g.Wait()
}

// Addr returns the bound listen address. It blocks until Run has bound the
// listener or ctx is done.
func (s *Server) Addr(ctx context.Context) (string, error) {
	select {
	case <-s.listenerCh:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener.Addr().String(), nil
}

// ActiveStreams reports the number of currently open detector streams.
func (s *Server) ActiveStreams() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.streams)
}

// ApplyDetectorUpdate fans a runtime detector reconfiguration out to every
// open stream. New streams pick settings up from the config snapshot given
// to [New]; this covers the ones already running.
func (s *Server) ApplyDetectorUpdate(u vad.Update) {
	s.mu.Lock()
	streams := make([]*stream, 0, len(s.streams))
	for st := range s.streams {
		streams = append(streams, st)
	}
	s.mu.Unlock()

	for _, st := range streams {
		st.applyUpdate(u)
	}
	slog.Info("detector update applied", "streams", len(streams))
}

// register adds st to the live set. It fails when the stream cap is reached.
func (s *Server) register(st *stream) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if max := s.cfg.Ingest.MaxStreams; max > 0 && len(s.streams) >= max {
		return fmt.Errorf("server: stream capacity %d reached", max)
	}
	s.streams[st] = struct{}{}
	return nil
}

func (s *Server) unregister(st *stream) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.streams, st)
}

// closeStreams force-closes all open streams during shutdown.
func (s *Server) closeStreams() {
	s.mu.Lock()
	streams := make([]*stream, 0, len(s.streams))
	for st := range s.streams {
		streams = append(streams, st)
	}
	s.mu.Unlock()

	for _, st := range streams {
		st.close("server shutting down")
	}
}
