package node

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Mindburn-Labs/ticket-auction/pkg/config"
	"github.com/Mindburn-Labs/ticket-auction/pkg/gateway"
	"github.com/Mindburn-Labs/ticket-auction/pkg/store"
)

const (
	defaultSQLitePath = "ticket-auction.db"
	redisNamespace    = "ticket:kv:"
	redisLimiterKey   = "ticket:limiter:"
)

// openStore opens the configured backend. With the redis driver the
// Gateway throttle shares the same client so buckets survive restarts.
func openStore(ctx context.Context, cfg *config.Config, base *slog.Logger) (store.KV, gateway.Limiter, error) {
	logger := base.With("component", "store")
	switch cfg.StoreDriver {
	case config.DriverMemory, "":
		logger.WarnContext(ctx, "using in-memory store; state is lost on exit")
		return store.NewMemoryStore(), nil, nil

	case config.DriverSQLite:
		path := cfg.DatabaseURL
		if path == "" {
			path = defaultSQLitePath
		}
		s, err := store.OpenSQLite(ctx, path)
		if err != nil {
			return nil, nil, fmt.Errorf("sqlite store: %w", err)
		}
		logger.InfoContext(ctx, "sqlite: connected", "path", path)
		return s, nil, nil

	case config.DriverPostgres:
		if cfg.DatabaseURL == "" {
			return nil, nil, fmt.Errorf("postgres store: DATABASE_URL not set")
		}
		s, err := store.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres store: %w", err)
		}
		logger.InfoContext(ctx, "postgres: connected")
		return s, nil, nil

	case config.DriverRedis:
		s := store.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, redisNamespace)
		if err := s.Ping(ctx); err != nil {
			_ = s.Close()
			return nil, nil, fmt.Errorf("redis store: %w", err)
		}
		logger.InfoContext(ctx, "redis: connected", "addr", cfg.RedisAddr)
		var limiter gateway.Limiter
		if cfg.GatewayRPS > 0 {
			limiter = gateway.NewRedisLimiter(s.Client(), redisLimiterKey, cfg.GatewayRPS, cfg.GatewayBurst)
		}
		return s, limiter, nil

	case config.DriverBadger:
		s, err := store.OpenBadger(store.BadgerConfig{
			Path:       cfg.BadgerPath,
			SyncWrites: true,
			Logger:     base.With("component", "badger"),
			GCInterval: 10 * time.Minute,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("badger store: %w", err)
		}
		logger.InfoContext(ctx, "badger: opened", "path", cfg.BadgerPath)
		return s, nil, nil

	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}
