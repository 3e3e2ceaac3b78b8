// Package taginfo serves key and value suggestions from the OpenStreetMap
// taginfo service, cached in two tiers and refreshed in the background.
package taginfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rafaeljc/mimir/internal/validation"
)

const (
	// uncommon results not documented on the wiki are dropped
	minKeyCount      = 1000
	minValueFraction = 0.01

	pageSize = "25"
)

// Client queries the taginfo HTTP API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the taginfo instance at baseURL
// (e.g. "https://taginfo.openstreetmap.org").
func NewClient(baseURL string, timeout time.Duration) *Client {
	validation.AssertNotBlank(baseURL, "taginfo base URL")
	validation.AssertPositive(timeout, "taginfo timeout")
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type apiResponse struct {
	Data []apiItem `json:"data"`
}

type apiItem struct {
	Key      string  `json:"key"`
	Value    string  `json:"value"`
	CountAll int64   `json:"count_all"`
	Fraction float64 `json:"fraction"`
	InWiki   bool    `json:"in_wiki"`
}

// Fetch returns common keys extending key (searchKeys) or common values of
// key, most used first.
func (c *Client) Fetch(ctx context.Context, key string, searchKeys bool) ([]string, error) {
	params := url.Values{}
	params.Set("page", "1")
	params.Set("rp", pageSize)
	params.Set("sortname", "count_all")
	params.Set("sortorder", "desc")

	var endpoint string
	if searchKeys {
		endpoint = "/api/4/keys/all"
		params.Set("query", strings.Trim(key, ":"))
	} else {
		endpoint = "/api/4/key/values"
		params.Set("key", key)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build taginfo request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("taginfo request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("taginfo returned status %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode taginfo response: %w", err)
	}

	if searchKeys {
		return filterKeys(body.Data, key), nil
	}
	return filterValues(body.Data), nil
}

func filterKeys(items []apiItem, prefix string) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if !it.InWiki && it.CountAll < minKeyCount {
			continue
		}
		if strings.HasPrefix(it.Key, prefix) && len(it.Key) > len(prefix) {
			out = append(out, it.Key)
		}
	}
	return out
}

func filterValues(items []apiItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		if !it.InWiki && it.Fraction < minValueFraction {
			continue
		}
		if it.Value != "" {
			out = append(out, it.Value)
		}
	}
	return out
}
