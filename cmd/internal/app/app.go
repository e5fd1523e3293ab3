// Package app wires the Torii server runtime: config, logging, metrics,
// storage clients, and HTTP routes.
//
// It is intentionally small and deterministic to keep behavior predictable.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"torii/cmd/identity"
	authapi "torii/cmd/internal/auth/api"
	"torii/cmd/internal/auth/session"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// App is the Torii server runtime: it owns HTTP wiring and the lifecycle
// of the Postgres pool and the Redis client.
type App struct {
	cfg Config
	log Logger

	dbPool *pgxpool.Pool
	rdb    *redis.Client

	metrics *Metrics
	auth    *authapi.Handler
}

// New constructs a fully wired App instance from config and logger.
// Without a configured database the HTTP server still starts, but account
// endpoints answer 503; without Redis the session store falls back to the
// in-memory dev store.
func New(cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg.LogLevel, cfg.LogPretty)
	}

	metrics := NewMetrics()

	a := &App{
		cfg:     cfg,
		log:     log,
		metrics: metrics,
	}

	ctx := context.Background()

	var users identity.Store
	if cfg.DatabaseURL == "" {
		log.Warn("db.disabled", "hint", "set TORII_DATABASE_URL to enable accounts")
	} else {
		pool, err := NewDBPool(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.dbPool = pool

		store, err := identity.NewPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, err
		}
		users = store
		log.Info("db.enabled.postgres_store")
	}

	var protocol *session.Service
	if users != nil {
		sessCfg, err := session.LoadConfigFromEnv()
		if err != nil {
			a.closeStores()
			return nil, err
		}
		signer, err := session.NewHS256Signer(sessCfg.SigningSecret)
		if err != nil {
			a.closeStores()
			return nil, err
		}

		var sessStore session.Store
		if cfg.RedisAddr == "" {
			log.Warn("session_store.inmemory", "hint", "set TORII_REDIS_ADDR for durable sessions")
			sessStore = session.NewMemoryStore()
		} else {
			rdb, err := NewRedisClient(ctx, cfg)
			if err != nil {
				a.closeStores()
				return nil, err
			}
			a.rdb = rdb
			sessStore = session.NewRedisStore(rdb)
			log.Info("session_store.redis", "addr", cfg.RedisAddr)
		}

		protocol = session.NewService(sessCfg, signer, sessStore, users, log)
	}

	a.auth = authapi.NewHandler(log, authapi.LoadConfigFromEnv(), a.dbPool, users, protocol, metrics)

	return a, nil
}

// Run starts the HTTP server and blocks until context cancellation or a
// fatal server error.
func (a *App) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	registerHTTP(mux, a.log, a.cfg, a.dbPool, a.rdb, a.metrics, a.auth)

	handler := WithRequestLogging(WithSecurityHeaders(mux), a.log, a.metrics)

	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}

	a.log.Info("server.start",
		"addr", a.cfg.HTTPAddr,
		"db_enabled", a.dbPool != nil,
		"redis_enabled", a.rdb != nil,
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
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.closeStores()
	a.log.Info("server.stopped")
	return nil
}

func (a *App) closeStores() {
	if a.rdb != nil {
		_ = a.rdb.Close()
		a.rdb = nil
	}
	if a.dbPool != nil {
		a.dbPool.Close()
		a.dbPool = nil
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
