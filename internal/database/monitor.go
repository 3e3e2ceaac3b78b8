package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rafaeljc/mimir/internal/observability"
)

// RunPoolMonitor samples pool statistics into the database gauges every
// interval until ctx is cancelled.
func RunPoolMonitor(ctx context.Context, pool *pgxpool.Pool, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastCount, lastWaits int64
	var lastDuration time.Duration

	for {
		stat := pool.Stat()
		observability.DBPoolConnections.WithLabelValues("max").Set(float64(stat.MaxConns()))
		observability.DBPoolConnections.WithLabelValues("total").Set(float64(stat.TotalConns()))
		observability.DBPoolConnections.WithLabelValues("idle").Set(float64(stat.IdleConns()))
		observability.DBPoolConnections.WithLabelValues("in_use").Set(float64(stat.AcquiredConns()))

		// pgx reports cumulative values; counters take the delta.
		if d := stat.AcquireCount() - lastCount; d > 0 {
			observability.DBPoolAcquireCount.Add(float64(d))
		}
		if d := stat.AcquireDuration() - lastDuration; d > 0 {
			observability.DBPoolAcquireDuration.Add(d.Seconds())
		}
		if d := stat.EmptyAcquireCount() - lastWaits; d > 0 {
			observability.DBPoolWaitCount.Add(float64(d))
		}
		lastCount = stat.AcquireCount()
		lastWaits = stat.EmptyAcquireCount()
		lastDuration = stat.AcquireDuration()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
