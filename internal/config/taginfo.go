package config

import (
	"fmt"
	"time"
)

// TagInfoConfig configures the tag-statistics lookups.
type TagInfoConfig struct {
	Enabled bool   `envconfig:"ENABLED" default:"true"`
	BaseURL string `envconfig:"BASE_URL" default:"https://taginfo.openstreetmap.org"`

	// StaleAfter is how long a cached result is served before it is refreshed.
	StaleAfter time.Duration `envconfig:"STALE_AFTER" default:"720h" validate:"gt=0"`

	Timeout       time.Duration `envconfig:"TIMEOUT" default:"10s" validate:"gt=0"`
	CacheCapacity int           `envconfig:"CACHE_CAPACITY" default:"10000" validate:"min=1"`
}

// Validate checks TagInfoConfig fields for correctness.
func (c *TagInfoConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if _, err := parseURL(c.BaseURL, "http", "https"); err != nil {
		return fmt.Errorf("invalid taginfo base URL: %w", err)
	}
	return nil
}
