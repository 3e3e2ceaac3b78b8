package testsupport

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"

	"github.com/rafaeljc/mimir/internal/cache"
	"github.com/rafaeljc/mimir/internal/config"
)

const redisImage = "redis:7-alpine"

// RedisContainer is a running Redis with the taginfo shared tier on top.
type RedisContainer struct {
	Container testcontainers.Container
	// Client is built by cache.NewRedisClient, as in the API server.
	Client *redis.Client
	// Store is the taginfo L2 tier over Client. Entries never expire.
	Store *cache.RedisStore
}

// Terminate closes the client and removes the container.
func (c *RedisContainer) Terminate(ctx context.Context) error {
	_ = c.Store.Close()
	return c.Container.Terminate(ctx)
}

// StartRedisContainer starts Redis and connects to it through its URL.
func StartRedisContainer(ctx context.Context) (*RedisContainer, error) {
	ctr, err := tcredis.Run(ctx, redisImage)
	if err != nil {
		return nil, fmt.Errorf("failed to start redis container: %w", err)
	}

	url, err := ctr.ConnectionString(ctx)
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to get redis connection string: %w", err)
	}

	client, err := cache.NewRedisClient(ctx, &config.RedisConfig{
		Endpoint:     config.Endpoint{URL: url},
		PoolSize:     5,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		Retry:        config.Retry{PingMaxRetries: 5, PingBackoff: time.Second},
	})
	if err != nil {
		_ = ctr.Terminate(ctx)
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}

	return &RedisContainer{
		Container: ctr,
		Client:    client,
		Store:     cache.NewRedisStore(client, 0),
	}, nil
}
