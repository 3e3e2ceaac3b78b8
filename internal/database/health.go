package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/mimir/internal/observability"
	"github.com/rafaeljc/mimir/internal/validation"
)

// NewHealthChecker returns the readiness check for the custom preset
// database. It fails when the server does not answer a ping.
func NewHealthChecker(pool *pgxpool.Pool) *observability.CheckFunc {
	validation.AssertNotNil(pool, "postgres pool")

	return observability.NewCheckFunc("postgres", func(ctx context.Context) error {
		if err := pool.Ping(ctx); err != nil {
			return fmt.Errorf("ping: %w", err)
		}
		return nil
	})
}
