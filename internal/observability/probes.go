package observability

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// liveness answers 200 while the process can serve HTTP at all.
func (s *Server) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// probeResult is the outcome of one checker.
type probeResult struct {
	name    string
	err     error
	latency time.Duration
}

// readiness runs every checker concurrently under the probe timeout and
// answers 503 when any of them fails. A component that does not answer in
// time is reported down.
func (s *Server) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()

	results := s.runChecks(ctx)

	status := make(map[string]string, len(results))
	ready := true
	for _, res := range results {
		if res.err != nil {
			ready = false
			status[res.name] = "down: " + res.err.Error()
			ComponentUp.WithLabelValues(res.name).Set(0)
			s.logger.Warn("health probe failed",
				slog.String("component", res.name),
				slog.String("error", res.err.Error()),
				slog.Duration("latency", res.latency),
			)
			continue
		}
		status[res.name] = "up"
		ComponentUp.WithLabelValues(res.name).Set(1)
	}

	w.Header().Set("Content-Type", "application/json")
	if ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	// The status code is already written; the body is informational.
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ready":  ready,
		"status": status,
	})
}

func (s *Server) runChecks(ctx context.Context) []probeResult {
	results := make([]probeResult, len(s.checkers))

	var wg sync.WaitGroup
	for i, c := range s.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			err := c.Check(ctx)
			results[i] = probeResult{name: c.Name(), err: err, latency: time.Since(start)}
		}()
	}
	wg.Wait()

	return results
}
