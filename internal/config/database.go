package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// postgresIdentifierLimit is the longest name PostgreSQL keeps untruncated.
const postgresIdentifierLimit = 63

var productionSSLModes = map[string]bool{"require": true, "verify-ca": true, "verify-full": true}

// DatabaseConfig contains the PostgreSQL settings of the custom preset store.
// The section is optional.
type DatabaseConfig struct {
	Endpoint
	Retry

	Name    string `envconfig:"NAME"`
	User    string `envconfig:"USER"`
	SSLMode string `envconfig:"SSL_MODE" default:"prefer" validate:"oneof=disable allow prefer require verify-ca verify-full"`

	MaxConns        int           `envconfig:"MAX_CONNS" default:"10" validate:"min=1"`
	MinConns        int           `envconfig:"MIN_CONNS" default:"2" validate:"min=0"`
	MaxConnLifetime time.Duration `envconfig:"MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `envconfig:"MAX_CONN_IDLE_TIME" default:"30m"`
	ConnectTimeout  time.Duration `envconfig:"CONNECT_TIMEOUT" default:"5s"`
}

// ConnectionString returns URL when set, otherwise a postgres:// URL built
// from the parts.
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

// Validate checks the connection target and the pool bounds. Production
// requires a strong password and a verifying SSL mode when configured by parts.
func (c *DatabaseConfig) Validate(environment string) error {
	if c.URL != "" {
		if err := validatePostgresURL(c.URL); err != nil {
			return fmt.Errorf("invalid database URL: %w", err)
		}
	} else if err := c.validateParts(environment); err != nil {
		return err
	}

	if c.MinConns > c.MaxConns {
		return fmt.Errorf("min_conns (%d) cannot be greater than max_conns (%d)", c.MinConns, c.MaxConns)
	}
	return nil
}

func (c *DatabaseConfig) validateParts(environment string) error {
	if err := c.validateAddress("database"); err != nil {
		return err
	}
	if err := validateNoWhitespace(c.Name, "database name"); err != nil {
		return err
	}
	if len(c.Name) > postgresIdentifierLimit {
		return fmt.Errorf("database name cannot exceed %d characters", postgresIdentifierLimit)
	}
	if err := validateNoWhitespace(c.User, "database user"); err != nil {
		return err
	}
	if err := c.validateSecret("database", environment); err != nil {
		return err
	}
	if environment == EnvironmentProduction && !productionSSLModes[c.SSLMode] {
		return fmt.Errorf("database SSL mode must be 'require', 'verify-ca', or 'verify-full' in production environment")
	}
	return nil
}

func validatePostgresURL(raw string) error {
	u, err := parseURL(raw, "postgres", "postgresql")
	if err != nil {
		return err
	}
	if u.User == nil || u.User.Username() == "" {
		return fmt.Errorf("user is required in URL")
	}
	if strings.TrimPrefix(u.Path, "/") == "" {
		return fmt.Errorf("database name is required in URL path")
	}
	return nil
}
