package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var redisParts = []string{"HOST", "PORT", "PASSWORD", "TLS_ENABLED"}

func TestRedisConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
		check   func(t *testing.T, r RedisConfig)
	}{
		{
			name: "Should parse ping retry settings",
			env:  mergeEnvVars(map[string]string{"MIMIR_REDIS_PING_MAX_RETRIES": "8", "MIMIR_REDIS_PING_BACKOFF": "3s"}),
			check: func(t *testing.T, r RedisConfig) {
				assert.Equal(t, 8, r.PingMaxRetries)
				assert.Equal(t, 3*time.Second, r.PingBackoff)
				assert.Equal(t, "localhost:6379", r.Address())
			},
		},
		{
			name:    "Should reject ping retries below one",
			env:     mergeEnvVars(map[string]string{"MIMIR_REDIS_PING_MAX_RETRIES": "0"}),
			wantErr: "PingMaxRetries",
		},
		{
			name:    "Should reject a malformed ping backoff",
			env:     mergeEnvVars(map[string]string{"MIMIR_REDIS_PING_BACKOFF": "notaduration"}),
			wantErr: "PING_BACKOFF",
		},
		{
			name:    "Should require a password in production",
			env:     production(func(env map[string]string) { delete(env, "MIMIR_REDIS_PASSWORD") }),
			wantErr: "redis password is required",
		},
		{
			name:    "Should reject a short password in production",
			env:     production(func(env map[string]string) { env["MIMIR_REDIS_PASSWORD"] = "short" }),
			wantErr: "at least 12 characters",
		},
		{
			name:    "Should require TLS in production",
			env:     production(func(env map[string]string) { env["MIMIR_REDIS_TLS_ENABLED"] = "false" }),
			wantErr: "redis TLS must be enabled",
		},
		{
			name: "Should accept a URL in production",
			env: production(func(env map[string]string) {
				useURL(env, "MIMIR_REDIS_", "rediss://:password@redis.example.com:6379/0", redisParts...)
			}),
			check: func(t *testing.T, r RedisConfig) {
				assert.True(t, r.IsConfigured())
				assert.Equal(t, "rediss://:password@redis.example.com:6379/0", r.URL)
			},
		},
		{
			name: "Should reject a URL with the wrong scheme",
			env: production(func(env map[string]string) {
				useURL(env, "MIMIR_REDIS_", "http://redis.example.com:6379/0", redisParts...)
			}),
			wantErr: "invalid scheme",
		},
		{
			name: "Should reject a URL database out of range",
			env: production(func(env map[string]string) {
				useURL(env, "MIMIR_REDIS_", "redis://redis.example.com:6379/16", redisParts...)
			}),
			wantErr: "between 0 and 15",
		},
		{
			name: "Should reject a URL with a non-numeric database",
			env: production(func(env map[string]string) {
				useURL(env, "MIMIR_REDIS_", "redis://redis.example.com:6379/abc", redisParts...)
			}),
			wantErr: "valid integer",
		},
		{
			name:    "Should reject min idle conns above pool size",
			env:     mergeEnvVars(map[string]string{"MIMIR_REDIS_POOL_SIZE": "20", "MIMIR_REDIS_MIN_IDLE_CONNS": "50"}),
			wantErr: "min_idle_conns",
		},
		{
			name:    "Should reject a database above 15",
			env:     mergeEnvVars(map[string]string{"MIMIR_REDIS_DB": "16"}),
			wantErr: "Redis.DB",
		},
		{
			name:    "Should reject a negative database",
			env:     mergeEnvVars(map[string]string{"MIMIR_REDIS_DB": "-1"}),
			wantErr: "Redis.DB",
		},
		{
			name: "Should allow an empty password in development",
			env:  mergeEnvVars(map[string]string{"MIMIR_REDIS_PASSWORD": ""}),
			check: func(t *testing.T, r RedisConfig) {
				assert.Empty(t, r.Password)
			},
		},
		{
			name:    "Should reject a non-numeric port",
			env:     mergeEnvVars(map[string]string{"MIMIR_REDIS_PORT": "abc"}),
			wantErr: "redis port must be a number",
		},
		{
			name:    "Should reject a host with leading whitespace",
			env:     mergeEnvVars(map[string]string{"MIMIR_REDIS_HOST": " localhost"}),
			wantErr: "redis host cannot contain whitespace",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Act
			cfg, err := loadEnv(t, tt.env)

			// Assert
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg.Redis)
			}
		})
	}
}
