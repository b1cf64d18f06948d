// Package app wires the RSVP server runtime: config, logging, storage, HTTP routes and the admin feed.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"rsvp/cmd/internal/metrics"
	"rsvp/cmd/internal/realtime"
	"rsvp/cmd/internal/rsvpapi"
	"rsvp/cmd/internal/rsvptoken"
	"rsvp/cmd/internal/tracking"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Store is a small app-level lifecycle abstraction.
// It exists to allow DB-backed resources to be closed gracefully.
type Store interface {
	Close(ctx context.Context) error
}

// nopStore is used for in-memory store mode.
type nopStore struct{}

func (nopStore) Close(_ context.Context) error { return nil }

// dbStore owns the pool; PostgresStore borrows it.
type dbStore struct {
	pool *pgxpool.Pool
}

func (s dbStore) Close(_ context.Context) error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// App is the RSVP server runtime: it owns HTTP server wiring and the feed dependencies.
type App struct {
	cfg Config
	log Logger

	store Store

	dbPool    *pgxpool.Pool
	dbEnabled bool

	rdb   *redis.Client
	relay *realtime.RedisRelay

	metrics *metrics.Metrics
	ws      *realtime.WSGateway
	api     *rsvpapi.Handler
}

// New constructs a fully wired App from config, the package-level env
// configs and a logger.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogFormat)
	}

	tokCfg, err := rsvptoken.LoadConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("rsvp token config: %w", err)
	}
	apiCfg := rsvpapi.LoadConfigFromEnv()
	wsCfg := realtime.LoadGatewayConfigFromEnv()

	if err := ValidateSecurityConfig(cfg, tokCfg, apiCfg, wsCfg); err != nil {
		return nil, err
	}
	if tokCfg.UsesInsecureDefault() {
		log.Warn("security.insecure_default_secret", "env", tokCfg.Environment)
	}

	manager, err := rsvptoken.NewManager(tokCfg)
	if err != nil {
		return nil, err
	}

	ctx := context.Background()

	st, dbPool, dbEnabled, trackingStore, err := newStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:       cfg,
		log:       log,
		store:     st,
		dbPool:    dbPool,
		dbEnabled: dbEnabled,
	}

	if cfg.MetricsEnabled {
		a.metrics = metrics.New()
	}

	svc, err := tracking.NewService(manager, trackingStore, tracking.WithRequireRecord(apiCfg.RequireTracking))
	if err != nil {
		_ = st.Close(ctx)
		return nil, err
	}

	hub := realtime.NewHub(log, realtime.WithDropHook(a.metrics.FeedEventDropped))

	// With Redis every instance publishes to the channel and its relay feeds
	// the local hub, so a local subscriber sees each event exactly once.
	var feed realtime.Publisher = hub
	if cfg.RedisURL != "" {
		rdb, err := realtime.NewRedisClient(cfg.RedisURL)
		if err != nil {
			_ = st.Close(ctx)
			return nil, fmt.Errorf("RSVP_REDIS_URL: %w", err)
		}
		a.rdb = rdb
		a.relay = realtime.NewRedisRelay(log, rdb, cfg.RedisChannel, hub)
		feed = realtime.NewRedisPublisher(rdb, cfg.RedisChannel)
		log.Info("feed.redis.enabled", "channel", cfg.RedisChannel)
	}

	api, err := rsvpapi.NewHandler(log, svc, apiCfg,
		rsvpapi.WithPublisher(feed),
		rsvpapi.WithMetrics(a.metrics),
	)
	if err != nil {
		a.closeResources(ctx)
		return nil, err
	}
	a.api = api

	var auth realtime.Authorizer
	if admin := api.AdminAuthorizer(); admin != nil {
		auth = admin
	} else {
		log.Warn("admin.disabled", "reason", "RSVP_ADMIN_KEY_HASH not set")
	}
	a.ws = realtime.NewWSGateway(log, hub, auth, wsCfg)

	return a, nil
}

// Handler returns the fully wrapped HTTP handler.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.dbEnabled, a.rdb, a.metrics, a.ws, a.api)

	var h http.Handler = mux
	h = WithCORS(h, a.cfg, a.log)
	h = WithSecurityHeaders(h)
	return WithRequestLogging(h, a.log, a.metrics)
}

// Run starts the HTTP server and blocks until context cancellation or fatal server error.
func (a *App) Run(ctx context.Context) error {
	if a.relay != nil {
		if err := a.relay.Start(ctx); err != nil {
			a.closeResources(context.Background())
			return fmt.Errorf("feed relay: %w", err)
		}
	}

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"db_enabled", a.dbEnabled,
		"redis_enabled", a.rdb != nil,
		"metrics_enabled", a.metrics != nil,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		a.closeResources(context.Background())
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		a.closeResources(shutdownCtx)
		return err
	}

	a.closeResources(shutdownCtx)
	a.log.Info("server.stopped")
	return nil
}

// closeResources releases the relay, the Redis client and the store, in that order.
func (a *App) closeResources(ctx context.Context) {
	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			a.log.Error("feed.relay.close.fail", "err", err)
		}
	}
	if a.rdb != nil {
		if err := a.rdb.Close(); err != nil {
			a.log.Error("redis.close.fail", "err", err)
		}
	}
	if err := a.store.Close(ctx); err != nil {
		a.log.Error("store.close.fail", "err", err)
	}
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// newStore decides between the Postgres tracking store and the in-memory dev store.
func newStore(ctx context.Context, cfg Config, log Logger) (Store, *pgxpool.Pool, bool, tracking.Store, error) {
	if cfg.DatabaseURL == "" {
		log.Info("db.disabled.inmemory_store")
		return nopStore{}, nil, false, tracking.NewMemoryStore(), nil
	}

	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, nil, false, nil, err
	}

	log.Info("db.enabled.postgres_store", "schema", cfg.DBSchema)

	// Ownership model:
	// - app owns pool lifecycle
	// - PostgresStore never closes the pool
	ps, err := tracking.NewPostgresStore(pool, tracking.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, nil, false, nil, err
	}

	if cfg.DBAutoMigrate {
		if err := ps.Migrate(ctx); err != nil {
			pool.Close()
			return nil, nil, false, nil, fmt.Errorf("migrate tracking schema: %w", err)
		}
		log.Info("db.migrate.ok", "schema", cfg.DBSchema)
	}

	return dbStore{pool: pool}, pool, true, ps, nil
}
