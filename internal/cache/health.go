package cache

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rafaeljc/mimir/internal/observability"
	"github.com/rafaeljc/mimir/internal/validation"
)

// NewHealthChecker returns the readiness check for the shared taginfo tier.
func NewHealthChecker(client *redis.Client) *observability.CheckFunc {
	validation.AssertNotNil(client, "redis client")

	return observability.NewCheckFunc("redis", func(ctx context.Context) error {
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping: %w", err)
		}
		return nil
	})
}
