package config

import (
	"fmt"
	"strings"
	"time"
)

// ObservabilityConfig configures the admin server (probes, metrics, profiling).
type ObservabilityConfig struct {
	// Port is kept apart from the API port so probes and scrapes never
	// compete with resolution traffic.
	Port string `envconfig:"PORT" default:"9091"`

	// Timeout bounds reads and writes and each readiness probe.
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s" validate:"min=1s"`

	LivenessPath  string `envconfig:"LIVENESS_PATH" default:"/healthz"`
	ReadinessPath string `envconfig:"READINESS_PATH" default:"/readyz"`
	MetricsPath   string `envconfig:"METRICS_PATH" default:"/metrics"`

	// PprofEnabled mounts net/http/pprof under /debug.
	PprofEnabled bool `envconfig:"PPROF_ENABLED" default:"false"`
}

// Validate checks ObservabilityConfig fields for correctness.
func (o *ObservabilityConfig) Validate() error {
	if err := validatePort(o.Port, "observability"); err != nil {
		return err
	}

	seen := make(map[string]struct{}, 3)
	for _, p := range []string{o.LivenessPath, o.ReadinessPath, o.MetricsPath} {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("observability path %q must start with /", p)
		}
		if strings.HasPrefix(p, "/debug") {
			return fmt.Errorf("observability path %q collides with the profiler", p)
		}
		if _, dup := seen[p]; dup {
			return fmt.Errorf("observability path %q is used twice", p)
		}
		seen[p] = struct{}{}
	}
	return nil
}
