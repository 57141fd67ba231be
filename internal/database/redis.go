package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients splits queue traffic from pub/sub so long subscriptions never
// starve BLPOP workers of connections.
type RedisClients struct {
	Queue  *redis.Client
	PubSub *redis.Client
}

// NewRedisClients connects both clients. The queue pool holds one connection per
// worker blocked in BLPOP plus headroom for request-path commands.
func NewRedisClients(redisURL string, workers int) (*RedisClients, error) {
	base, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	queueOpt := *base
	if size := queuePoolSize(workers); size > queueOpt.PoolSize {
		queueOpt.PoolSize = size
	}
	pubsubOpt := *base

	clients := &RedisClients{
		Queue:  redis.NewClient(&queueOpt),
		PubSub: redis.NewClient(&pubsubOpt),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := clients.Ping(ctx); err != nil {
		clients.Close()
		return nil, err
	}
	return clients, nil
}

func queuePoolSize(workers int) int {
	if workers < 0 {
		workers = 0
	}
	return workers + 10
}

// Ping checks both connections.
func (r *RedisClients) Ping(ctx context.Context) error {
	if err := r.Queue.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis (queue): %w", err)
	}
	if err := r.PubSub.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis (pubsub): %w", err)
	}
	return nil
}

func (r *RedisClients) Close() {
	r.Queue.Close()
	r.PubSub.Close()
}
