// Package cache holds the two tiers of the tag-statistics cache: an in-process
// otter cache (L1) and an optional Redis store (L2) shared between instances.
package cache

import (
	"encoding/json"
	"fmt"
	"time"
)

// Entry is one cached taginfo answer. Date is when the answer was fetched, or
// when a refresh was started for it.
type Entry struct {
	Date    time.Time `json:"date"`
	Results []string  `json:"results"`
}

// Stale reports whether the entry is older than maxAge at now. The zero entry
// is always stale.
func (e Entry) Stale(now time.Time, maxAge time.Duration) bool {
	return e.Date.IsZero() || now.Sub(e.Date) > maxAge
}

func encodeEntry(e Entry) ([]byte, error) {
	if e.Results == nil {
		e.Results = []string{}
	}
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache entry: %w", err)
	}
	return data, nil
}

func decodeEntry(data []byte) (Entry, error) {
	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	if e.Date.IsZero() {
		return Entry{}, fmt.Errorf("failed to decode cache entry: missing date")
	}
	return e, nil
}
