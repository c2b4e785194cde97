// Package server exposes the practice API: lesson endpoints over HTTP and
// the real-time practice session over WebSocket, plus health and metrics
// endpoints.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/sorilabs/sori/internal/coach"
	"github.com/sorilabs/sori/internal/content"
	"github.com/sorilabs/sori/internal/health"
	"github.com/sorilabs/sori/internal/observe"
	"github.com/sorilabs/sori/internal/recorder"
	"github.com/sorilabs/sori/pkg/provider/assess"
)

// shutdownTimeout bounds graceful HTTP shutdown.
const shutdownTimeout = 10 * time.Second

// Config holds the dependencies for a [Server].
type Config struct {
	// ListenAddr is the TCP address to listen on, e.g. ":8080".
	ListenAddr string

	// Store serves lesson content. Required.
	Store content.Store

	// Provider opens assessment sessions. Required.
	Provider assess.Provider

	// Coach generates practice tips. Optional.
	Coach coach.Coach

	// Metrics receives request and pipeline metrics. Optional.
	Metrics *observe.Metrics

	// Language is the default practice language tag.
	Language string

	// EnableProsody requests prosody scoring on assessment sessions.
	EnableProsody bool

	// Checks are additional readiness probes beyond the built-in ones.
	Checks []health.Check

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	TLSCertFile string
	TLSKeyFile  string
}

// Server is the sori HTTP server.
type Server struct {
	cfg  Config
	mux  *http.ServeMux
	http *http.Server
}

// New assembles the routes and returns an unstarted Server.
func New(cfg Config) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("server: content store is required")
	}
	if cfg.Provider == nil {
		return nil, errors.New("server: assessment provider is required")
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}

	s := &Server{
		cfg: cfg,
		mux: http.NewServeMux(),
	}

	checks := append([]health.Check{
		{Name: "content-store", Probe: func(ctx context.Context) error {
			_, err := cfg.Store.List(ctx)
			return err
		}},
	}, cfg.Checks...)
	health.New(checks...).Register(s.mux)

	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.mux.HandleFunc("GET /api/lessons", s.handleListLessons)
	s.mux.HandleFunc("GET /api/lessons/{id}", s.handleGetLesson)
	s.mux.HandleFunc("POST /api/lessons", s.handleCreateLesson)
	s.mux.HandleFunc("DELETE /api/lessons/{id}", s.handleDeleteLesson)
	s.mux.HandleFunc("GET /ws/practice", s.handlePractice)

	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           observe.Middleware(cfg.Metrics)(s.mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s, nil
}

// Handler returns the server's root handler, for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
			slog.Info("https server listening", "addr", s.cfg.ListenAddr)
			err = s.http.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			slog.Info("http server listening", "addr", s.cfg.ListenAddr)
			err = s.http.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: listen: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// newRecorder creates a per-connection recording manager. Each practice
// connection owns one; the at-most-one-recording invariant is scoped to the
// learner's connection.
func (s *Server) newRecorder() *recorder.Manager {
	return recorder.New(recorder.Config{
		Provider:      s.cfg.Provider,
		Language:      s.cfg.Language,
		EnableProsody: s.cfg.EnableProsody,
		Coach:         s.cfg.Coach,
		Metrics:       s.cfg.Metrics,
	})
}
