package observability

import "context"

// Checker defines the contract for any component that needs to report its health status.
// Implementations must be thread-safe and non-blocking (respecting the context).
type Checker interface {
	// Name returns the unique identifier of the component (e.g., "postgres", "catalog").
	Name() string
	// Check returns nil if healthy. The provided context carries the probe timeout.
	Check(ctx context.Context) error
}

// CheckFunc adapts a function to the Checker interface.
type CheckFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewCheckFunc names fn as a component check.
func NewCheckFunc(name string, fn func(ctx context.Context) error) *CheckFunc {
	return &CheckFunc{name: name, fn: fn}
}

// Name returns the component name.
func (c *CheckFunc) Name() string { return c.name }

// Check runs the wrapped function.
func (c *CheckFunc) Check(ctx context.Context) error { return c.fn(ctx) }
