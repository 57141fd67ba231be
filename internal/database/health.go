package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// Health pings the backing stores for the /health endpoint.
type Health struct {
	pg    *pgxpool.Pool
	redis *RedisClients
}

func NewHealth(pg *pgxpool.Pool, redis *RedisClients) *Health {
	return &Health{pg: pg, redis: redis}
}

// Check pings postgres and redis concurrently and returns the first failure.
func (h *Health) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return h.pg.Ping(ctx) })
	g.Go(func() error { return h.redis.Ping(ctx) })
	return g.Wait()
}
