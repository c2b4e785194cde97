// Package app wires all sori subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves until the context is cancelled, and Shutdown tears
// everything down in order.
//
// For testing, inject mock implementations via functional options
// (WithStore, WithProvider, etc.). When an option is not provided, New
// creates real implementations from the config.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"

	"github.com/sorilabs/sori/internal/coach"
	coachopenai "github.com/sorilabs/sori/internal/coach/openai"
	"github.com/sorilabs/sori/internal/config"
	"github.com/sorilabs/sori/internal/content"
	"github.com/sorilabs/sori/internal/health"
	"github.com/sorilabs/sori/internal/observe"
	"github.com/sorilabs/sori/internal/resilience"
	"github.com/sorilabs/sori/internal/server"
	"github.com/sorilabs/sori/pkg/provider/assess"
	"github.com/sorilabs/sori/pkg/provider/assess/azure"
)

// App owns all subsystem lifetimes and serves the practice API.
type App struct {
	cfg *config.Config

	store    content.Store
	provider assess.Provider
	coach    coach.Coach
	metrics  *observe.Metrics
	server   *server.Server

	// checks are extra readiness probes handed to the server.
	checks []health.Check

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a lesson store instead of creating one from config.
func WithStore(s content.Store) Option {
	return func(a *App) { a.store = s }
}

// WithProvider injects an assessment provider instead of creating one from
// config.
func WithProvider(p assess.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithCoach injects a feedback coach instead of creating one from config.
func WithCoach(c coach.Coach) Option {
	return func(a *App) { a.coach = c }
}

// WithMetrics injects a metrics set instead of creating one from the global
// meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App by wiring all subsystems together. Use Option functions
// to inject test doubles for any subsystem.
//
// New performs all initialisation synchronously: content store connection
// and migration, seed loading, provider construction, and route assembly.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg}
	for _, o := range opts {
		o(a)
	}

	if a.metrics == nil {
		m, err := observe.NewMetrics(otel.GetMeterProvider())
		if err != nil {
			return nil, fmt.Errorf("app: init metrics: %w", err)
		}
		a.metrics = m
	}

	if err := a.initContent(ctx); err != nil {
		return nil, fmt.Errorf("app: init content: %w", err)
	}
	if err := a.initProviders(); err != nil {
		return nil, fmt.Errorf("app: init providers: %w", err)
	}

	srvCfg := server.Config{
		ListenAddr:    cfg.Server.ListenAddr,
		Store:         a.store,
		Provider:      a.provider,
		Coach:         a.coach,
		Metrics:       a.metrics,
		Language:      cfg.Practice.Language,
		EnableProsody: cfg.Practice.ProsodyEnabled(),
		Checks:        a.checks,
	}
	if tls := cfg.Server.TLS; tls != nil {
		srvCfg.TLSCertFile = tls.CertFile
		srvCfg.TLSKeyFile = tls.KeyFile
	}
	srv, err := server.New(srvCfg)
	if err != nil {
		return nil, fmt.Errorf("app: init server: %w", err)
	}
	a.server = srv

	return a, nil
}

// initContent sets up the lesson store and loads seed data.
func (a *App) initContent(ctx context.Context) error {
	if a.store == nil {
		if dsn := a.cfg.Content.PostgresDSN; dsn != "" {
			pool, err := pgxpool.New(ctx, dsn)
			if err != nil {
				return fmt.Errorf("connect postgres: %w", err)
			}
			pg := content.NewPostgresStore(pool)
			if err := pg.Migrate(ctx); err != nil {
				pool.Close()
				return err
			}
			a.store = pg
			a.closers = append(a.closers, func() error {
				pool.Close()
				return nil
			})
			a.checks = append(a.checks, health.Check{
				Name:  "postgres",
				Probe: pool.Ping,
			})
			slog.Info("lesson store ready", "backend", "postgres")
		} else {
			a.store = content.NewMemStore()
			slog.Info("lesson store ready", "backend", "memory")
		}
	}

	if dir := a.cfg.Content.SeedDir; dir != "" {
		n, err := loadSeeds(ctx, a.store, dir)
		if err != nil {
			return fmt.Errorf("seed lessons from %q: %w", dir, err)
		}
		slog.Info("seeded lessons", "dir", dir, "count", n)
	}
	return nil
}

// initProviders builds the assessment backend chain and the optional coach.
func (a *App) initProviders() error {
	if a.provider == nil {
		primary, err := buildAssess(a.cfg.Providers.Assess)
		if err != nil {
			return fmt.Errorf("assess provider %q: %w", a.cfg.Providers.Assess.Name, err)
		}
		a.provider = primary

		if fallbacks := a.cfg.Providers.AssessFallbacks; len(fallbacks) > 0 {
			group := resilience.NewAssessFallback(primary, backendLabel(a.cfg.Providers.Assess),
				resilience.BreakerConfig{Name: "assess"})
			for _, entry := range fallbacks {
				p, err := buildAssess(entry)
				if err != nil {
					return fmt.Errorf("assess fallback %q: %w", backendLabel(entry), err)
				}
				group.AddFallback(backendLabel(entry), p)
			}
			a.provider = group
			slog.Info("assessment failover enabled", "backends", 1+len(fallbacks))
		}
	}

	if a.coach == nil && a.cfg.Providers.Coach.Name != "" {
		entry := a.cfg.Providers.Coach
		switch entry.Name {
		case "openai":
			var opts []coachopenai.Option
			if entry.BaseURL != "" {
				opts = append(opts, coachopenai.WithBaseURL(entry.BaseURL))
			}
			c, err := coachopenai.New(entry.APIKey, entry.Model, opts...)
			if err != nil {
				return fmt.Errorf("coach provider %q: %w", entry.Name, err)
			}
			a.coach = c
			slog.Info("coach ready", "provider", entry.Name, "model", entry.Model)
		default:
			return fmt.Errorf("unknown coach provider %q", entry.Name)
		}
	}
	return nil
}

// buildAssess constructs one assessment backend from its config entry.
func buildAssess(entry config.AssessEntry) (assess.Provider, error) {
	switch entry.Name {
	case "azure":
		var opts []azure.Option
		if entry.Endpoint != "" {
			opts = append(opts, azure.WithEndpoint(entry.Endpoint))
		}
		return azure.New(entry.APIKey, entry.Region, opts...)
	default:
		return nil, fmt.Errorf("unknown assess provider %q", entry.Name)
	}
}

// backendLabel names an assessment backend for logs and breaker state. A
// region or endpoint suffix keeps multi-region failover chains readable.
func backendLabel(entry config.AssessEntry) string {
	switch {
	case entry.Region != "":
		return entry.Name + "/" + entry.Region
	case entry.Endpoint != "":
		return entry.Name + "/custom"
	default:
		return entry.Name
	}
}

// loadSeeds imports every lesson JSON file in dir into the store. Lessons
// whose ID already exists are skipped, so restarts do not error on a
// persistent store.
func loadSeeds(ctx context.Context, store content.Store, dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	var count int
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return count, err
		}
		var lesson content.Lesson
		if err := json.Unmarshal(data, &lesson); err != nil {
			return count, fmt.Errorf("parse %q: %w", path, err)
		}
		if lesson.ID != "" {
			if _, err := store.Get(ctx, lesson.ID); err == nil {
				continue
			}
		}
		if err := store.Create(ctx, &lesson); err != nil {
			return count, fmt.Errorf("import %q: %w", path, err)
		}
		count++
	}
	return count, nil
}

// Run starts the HTTP server and blocks until ctx is cancelled or the server
// fails.
func (a *App) Run(ctx context.Context) error {
	slog.Info("app running", "addr", a.cfg.Server.ListenAddr)
	return a.server.Run(ctx)
}

// Server returns the wired HTTP server, for tests.
func (a *App) Server() *server.Server { return a.server }

// Shutdown tears down all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}
