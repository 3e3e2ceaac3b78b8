package config

import (
	"fmt"
	"time"
)

// SyncerConfig drives the background worker that keeps the supplementary
// overlay, the custom presets and the region atlas installed in the engine.
type SyncerConfig struct {
	Enabled bool `envconfig:"ENABLED" default:"true"`

	// PollInterval is how often the custom preset repository is checked for
	// changes made by other instances.
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"30s" validate:"gt=0"`

	// JobTimeout bounds a single attempt of a rebuild.
	JobTimeout time.Duration `envconfig:"JOB_TIMEOUT" default:"60s" validate:"gt=0"`

	// MaxRetries counts attempts after the first one.
	MaxRetries     int           `envconfig:"MAX_RETRIES" default:"3" validate:"min=0"`
	BaseRetryDelay time.Duration `envconfig:"BASE_RETRY_DELAY" default:"1s"`
	MaxRetryDelay  time.Duration `envconfig:"MAX_RETRY_DELAY" default:"30s"`
}

// RetryDelay returns the wait after failed attempt n (0-based): the base delay
// doubled n times, capped at MaxRetryDelay when one is set.
func (c SyncerConfig) RetryDelay(n int) time.Duration {
	d := c.BaseRetryDelay
	for range n {
		d *= 2
		if c.MaxRetryDelay > 0 && d >= c.MaxRetryDelay {
			return c.MaxRetryDelay
		}
	}
	return d
}

// Validate checks that the retry delays are ordered.
func (c *SyncerConfig) Validate() error {
	if c.MaxRetryDelay > 0 && c.BaseRetryDelay > c.MaxRetryDelay {
		return fmt.Errorf("syncer base retry delay (%s) cannot exceed max retry delay (%s)", c.BaseRetryDelay, c.MaxRetryDelay)
	}
	return nil
}
