package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServerConfig_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
		check   func(t *testing.T, s ServerConfig)
	}{
		{
			name: "Should apply defaults",
			env:  mergeEnvVars(nil),
			check: func(t *testing.T, s ServerConfig) {
				assert.Equal(t, "0.0.0.0:8080", s.Address())
				assert.Equal(t, 10*time.Second, s.ReadTimeout)
				assert.Equal(t, 30*time.Second, s.WriteTimeout)
				assert.Equal(t, 5*time.Second, s.ReadHeaderTimeout)
				assert.Equal(t, time.Minute, s.IdleTimeout)
				assert.Equal(t, 512<<10, s.MaxHeaderBytes)
				assert.Equal(t, int64(1<<20), s.MaxBodyBytes)
			},
		},
		{
			name: "Should accept TLS with cert and key",
			env: mergeEnvVars(map[string]string{
				"MIMIR_SERVER_TLS_ENABLED":   "true",
				"MIMIR_SERVER_TLS_CERT_FILE": "/certs/tls.crt",
				"MIMIR_SERVER_TLS_KEY_FILE":  "/certs/tls.key",
			}),
			check: func(t *testing.T, s ServerConfig) {
				assert.True(t, s.TLSEnabled)
				assert.Equal(t, "/certs/tls.key", s.TLSKey)
			},
		},
		{
			name:    "Should reject TLS without cert",
			env:     mergeEnvVars(map[string]string{"MIMIR_SERVER_TLS_ENABLED": "true"}),
			wantErr: "cert or key file not specified",
		},
		{
			name: "Should allow skipping auth in development",
			env:  mergeEnvVars(map[string]string{"MIMIR_SERVER_SKIP_AUTH": "true"}),
			check: func(t *testing.T, s ServerConfig) {
				assert.True(t, s.SkipAuth)
			},
		},
		{
			name:    "Should refuse skipped auth in production",
			env:     production(func(env map[string]string) { env["MIMIR_SERVER_SKIP_AUTH"] = "true" }),
			wantErr: "SKIP_AUTH",
		},
		{
			name:    "Should require an API key hash in production",
			env:     production(func(env map[string]string) { delete(env, "MIMIR_SERVER_API_KEY_HASH") }),
			wantErr: "API key hash is required",
		},
		{
			name:    "Should require TLS in production",
			env:     production(func(env map[string]string) { env["MIMIR_SERVER_TLS_ENABLED"] = "false" }),
			wantErr: "TLS must be enabled",
		},
		{
			name:    "Should reject a short API key hash",
			env:     mergeEnvVars(map[string]string{"MIMIR_SERVER_API_KEY_HASH": "aaaaaa"}),
			wantErr: "64 characters",
		},
		{
			name:    "Should reject a non-hex API key hash",
			env:     mergeEnvVars(map[string]string{"MIMIR_SERVER_API_KEY_HASH": strings.Repeat("z", 64)}),
			wantErr: "hexadecimal",
		},
		{
			name: "Should accept a production password of exactly twelve characters",
			env: production(func(env map[string]string) {
				env["MIMIR_DB_PASSWORD"] = "exactly12chr"
				env["MIMIR_REDIS_PASSWORD"] = "redis_pass12"
			}),
		},
		{
			name:    "Should reject a zero body limit",
			env:     mergeEnvVars(map[string]string{"MIMIR_SERVER_MAX_BODY_BYTES": "0"}),
			wantErr: "MaxBodyBytes",
		},
		{
			name:    "Should reject a zero header limit",
			env:     mergeEnvVars(map[string]string{"MIMIR_SERVER_MAX_HEADER_BYTES": "0"}),
			wantErr: "MaxHeaderBytes",
		},
		{
			name:    "Should reject port zero",
			env:     mergeEnvVars(map[string]string{"MIMIR_SERVER_PORT": "0"}),
			wantErr: "server port must be between",
		},
		{
			name:    "Should reject a host with surrounding whitespace",
			env:     mergeEnvVars(map[string]string{"MIMIR_SERVER_HOST": "0.0.0.0 "}),
			wantErr: "server host cannot contain whitespace",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := loadEnv(t, tt.env)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			if tt.check != nil {
				tt.check(t, cfg.Server)
			}
		})
	}
}
