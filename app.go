// Package userdeck wires the admin console together: the remote user
// service client, the optimistic store, the mutation coordinator, the live
// feed, and the console's own HTTP surface.
//
// Create an App from configuration and run it:
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    return err
//	}
//	app, err := userdeck.New(cfg)
//	if err != nil {
//	    return err
//	}
//	return app.Run(ctx)
package userdeck

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/userdeck/userdeck/internal/cache"
	"github.com/userdeck/userdeck/internal/config"
	"github.com/userdeck/userdeck/internal/server"
	"github.com/userdeck/userdeck/pkg/api"
	"github.com/userdeck/userdeck/pkg/audit"
	"github.com/userdeck/userdeck/pkg/export"
	"github.com/userdeck/userdeck/pkg/live"
	"github.com/userdeck/userdeck/pkg/mutate"
	"github.com/userdeck/userdeck/pkg/rbac"
	"github.com/userdeck/userdeck/pkg/store"
	"github.com/userdeck/userdeck/pkg/toast"
)

// App is the assembled console.
type App struct {
	cfg    *config.Config
	log    *slog.Logger
	client *api.Client

	Store       *store.Store
	Coordinator *mutate.Coordinator
	Toasts      *toast.Emitter
	Trail       *audit.Trail
	Roles       *rbac.Registry
	Pages       cache.PageCache

	feed     *live.Feed
	objects  export.ObjectStore
	exporter *export.Exporter
	registry *prometheus.Registry
	srv      *http.Server
}

// Option configures optional App collaborators.
type Option func(*App)

// WithLogger replaces the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(a *App) { a.log = log }
}

// WithObjectStore wires GDPR exports into the HTTP surface, storing
// archives in the given store. Without it the export endpoint is absent.
func WithObjectStore(objects export.ObjectStore) Option {
	return func(a *App) { a.objects = objects }
}

// New assembles the console from configuration.
func New(cfg *config.Config, opts ...Option) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}

	a := &App{
		cfg:    cfg,
		Store:  store.New(),
		Toasts: &toast.Emitter{},
		Trail:  audit.NewTrail(0),
		Roles:  rbac.Defaults(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		level := slog.LevelInfo
		if cfg.Debug {
			level = slog.LevelDebug
		}
		a.log = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	}

	a.client = api.New(cfg.API.BaseURL)

	a.registry = prometheus.NewRegistry()
	metrics := mutate.NewMetrics(mutate.MetricsConfig{Registry: a.registry})

	a.Coordinator = mutate.New(a.Store, a.client,
		mutate.WithBulkDelay(cfg.BulkDelay()),
		mutate.WithToasts(a.Toasts),
		mutate.WithAuditTrail(a.Trail),
		mutate.WithMetrics(metrics),
		mutate.WithLogger(a.log),
	)

	if cfg.CacheEnabled() {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.Pages = cache.NewRedis(rdb, cfg.CacheTTL(), a.log)
	} else {
		a.Pages = cache.NewMemory(cfg.CacheTTL())
	}

	if cfg.API.LiveURL != "" {
		a.feed = live.New(cfg.API.LiveURL, a.Store, live.WithLogger(a.log))
	}

	if a.objects != nil {
		a.exporter = export.New(a.client, a.objects, a.Roles, a.Trail, a.log)
	}

	return a, nil
}

// Exporter returns the GDPR exporter, or nil when no object store is wired.
func (a *App) Exporter() *export.Exporter {
	return a.exporter
}

// Client returns the remote user service client.
func (a *App) Client() *api.Client {
	return a.client
}

// Registry returns the app's metric registry.
func (a *App) Registry() *prometheus.Registry {
	return a.registry
}

// LoadInitial fetches the first page from the service into the store,
// preferring a cached copy.
func (a *App) LoadInitial(ctx context.Context) error {
	key := cache.PageKey{Page: 1, Size: a.cfg.API.PageSize}
	if entry, ok := a.Pages.Get(ctx, key); ok {
		a.Store.ReplaceAll(entry.Users)
		a.log.Debug("initial page served from cache", "count", len(entry.Users))
		return nil
	}

	page, err := a.client.List(ctx, api.ListFilter{Page: 1, PageSize: a.cfg.API.PageSize})
	if err != nil {
		return fmt.Errorf("initial page load: %w", err)
	}
	a.Store.ReplaceAll(page.Users)
	a.Pages.Set(ctx, key, cache.Entry{Users: page.Users, Total: page.Total})
	a.log.Info("initial page loaded", "count", len(page.Users), "total", page.Total)
	return nil
}

// Run loads the initial page, starts the live feed and the HTTP server, and
// blocks until ctx is cancelled. Shutdown drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	if err := a.LoadInitial(ctx); err != nil {
		return err
	}

	// Any store change makes cached pages stale.
	unsub := a.Store.Subscribe(func() {
		a.Pages.Invalidate(context.Background())
	})
	defer unsub()

	opts := []server.Option{
		server.WithLogger(a.log),
		server.WithAuditTrail(a.Trail),
		server.WithMetrics(a.registry),
		server.WithListGeometry(a.cfg.List.ItemHeight, a.cfg.List.Overscan),
	}
	if a.exporter != nil {
		opts = append(opts, server.WithExporter(a.exporter))
	}
	handler := server.New(a.Store, a.Coordinator, opts...).Handler()

	a.srv = &http.Server{
		Addr:              a.cfg.Server.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("console listening", "addr", a.cfg.Server.ListenAddr)
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	if a.feed != nil {
		go a.feed.Run(ctx)
	}

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	a.log.Info("console stopped")
	return nil
}
