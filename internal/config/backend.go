package config

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

const minProductionPasswordLen = 12

// Endpoint locates one of the optional backends, either as a URL or as
// host/port parts. Setting URL or Host opts the backend in.
type Endpoint struct {
	URL      string `envconfig:"URL"`
	Host     string `envconfig:"HOST"`
	Port     string `envconfig:"PORT"`
	Password string `envconfig:"PASSWORD"`
}

// IsConfigured reports whether the backend was requested.
func (e *Endpoint) IsConfigured() bool {
	return e.URL != "" || e.Host != ""
}

func (e *Endpoint) validateAddress(backend string) error {
	if err := validateNoWhitespace(e.Host, backend+" host"); err != nil {
		return err
	}
	return validatePort(e.Port, backend)
}

func (e *Endpoint) validateSecret(backend, environment string) error {
	if environment != EnvironmentProduction {
		return nil
	}
	switch {
	case e.Password == "":
		return fmt.Errorf("%s password is required in production environment", backend)
	case len(e.Password) < minProductionPasswordLen:
		return fmt.Errorf("%s password must be at least %d characters in production", backend, minProductionPasswordLen)
	}
	return nil
}

// Retry bounds the ping loop a backend must pass before it is handed out.
type Retry struct {
	PingMaxRetries int           `envconfig:"PING_MAX_RETRIES" default:"5" validate:"min=1"`
	PingBackoff    time.Duration `envconfig:"PING_BACKOFF" default:"2s"`
}

// Do calls ping until it succeeds, doubling the wait after each failure.
// Each attempt gets attemptTimeout; ctx cancellation aborts the wait.
func (r Retry) Do(ctx context.Context, log *slog.Logger, backend string, attemptTimeout time.Duration, ping func(context.Context) error) error {
	attempts := max(r.PingMaxRetries, 1)
	backoff := r.PingBackoff

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		lastErr = ping(pingCtx)
		cancel()
		if lastErr == nil {
			log.Info(backend+" connection established", slog.Int("attempt", attempt))
			return nil
		}

		log.Warn(backend+" ping failed",
			slog.Int("attempt", attempt),
			slog.Int("max_retries", attempts),
			slog.Any("error", lastErr),
		)
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%s connection cancelled: %w", backend, ctx.Err())
		case <-time.After(backoff):
		}
		backoff *= 2
	}
	return fmt.Errorf("failed to ping %s after %d attempts: %w", backend, attempts, lastErr)
}

func validatePort(port, backend string) error {
	if port == "" {
		return fmt.Errorf("%s port cannot be empty", backend)
	}
	n, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("%s port must be a number: %w", backend, err)
	}
	if n < 1 || n > 65535 {
		return fmt.Errorf("%s port must be between 1 and 65535, got %d", backend, n)
	}
	return nil
}

func validateNoWhitespace(value, field string) error {
	if value == "" {
		return fmt.Errorf("%s cannot be empty", field)
	}
	if strings.TrimSpace(value) != value {
		return fmt.Errorf("%s cannot contain whitespace", field)
	}
	return nil
}

// parseURL parses raw and requires one of schemes and a host.
func parseURL(raw string, schemes ...string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL: %w", err)
	}
	if !slices.Contains(schemes, u.Scheme) {
		return nil, fmt.Errorf("invalid scheme '%s', must be one of: %v", u.Scheme, schemes)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("host is required in URL")
	}
	return u, nil
}
