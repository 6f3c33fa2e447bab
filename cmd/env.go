package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/tradecraft-foods/reconcile-cli/internal/resilience"
	"github.com/tradecraft-foods/reconcile-cli/internal/review"
	"github.com/tradecraft-foods/reconcile-cli/internal/store"
	"github.com/tradecraft-foods/reconcile-cli/pkg/graphstore"
)

// env holds the initialized store, gateway, and services shared by the
// ingest, reviews, and serve commands.
type env struct {
	Store   store.Store
	Graph   graphstore.Client
	Reviews *review.Service
}

// Close releases resources held by the environment.
func (e *env) Close() {
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "reconcile.db"
		}
		return store.NewSQLite(dsn)
	case "postgres":
		poolCfg := &store.PoolConfig{
			MaxConns: cfg.Store.Pool.MaxConns,
			MinConns: cfg.Store.Pool.MinConns,
		}
		return store.NewPostgres(ctx, cfg.Store.DatabaseURL, poolCfg)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

func initGateway() graphstore.Client {
	retry := resilience.DefaultRetryPolicy()
	retry.MaxAttempts = cfg.Graph.MaxRetries
	retry.BaseDelay = cfg.Graph.RetryBaseDelay()

	return graphstore.NewClient(cfg.Graph.URL, cfg.Graph.APIToken,
		graphstore.WithTimeout(cfg.Graph.Timeout()),
		graphstore.WithRetryPolicy(retry),
		graphstore.WithRateLimit(cfg.Graph.RateLimit),
	)
}

// initEnv sets up the store, gateway, and services. Callers should defer
// env.Close().
func initEnv(ctx context.Context) (*env, error) {
	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}

	graph := initGateway()

	return &env{
		Store:   st,
		Graph:   graph,
		Reviews: review.NewService(st, graph),
	}, nil
}
