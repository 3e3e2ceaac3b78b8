// Package validation holds constructor guards. They panic because a missing
// dependency is a wiring mistake, not a runtime condition.
package validation

import (
	"fmt"
	"strings"
	"time"
)

// AssertNotNil panics if ptr is nil.
//
//	validation.AssertNotNil(engine, "syncer engine")
func AssertNotNil[T any](ptr *T, name string) {
	if ptr == nil {
		panic(fmt.Sprintf("critical error: %s cannot be nil", name))
	}
}

// AssertNotBlank panics if s is empty or only whitespace.
func AssertNotBlank(s, name string) {
	if strings.TrimSpace(s) == "" {
		panic(fmt.Sprintf("critical error: %s cannot be empty", name))
	}
}

// AssertPositive panics unless d is greater than zero.
func AssertPositive(d time.Duration, name string) {
	if d <= 0 {
		panic(fmt.Sprintf("critical error: %s must be positive, got %s", name, d))
	}
}
