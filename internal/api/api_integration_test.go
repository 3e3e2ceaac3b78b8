//go:build integration

package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/mimir/internal/api"
	"github.com/rafaeljc/mimir/internal/cache"
	"github.com/rafaeljc/mimir/internal/catalog"
	"github.com/rafaeljc/mimir/internal/config"
	"github.com/rafaeljc/mimir/internal/resolver"
	"github.com/rafaeljc/mimir/internal/store"
	"github.com/rafaeljc/mimir/internal/syncer"
	"github.com/rafaeljc/mimir/internal/taginfo"
	"github.com/rafaeljc/mimir/internal/testsupport"
)

type staticFetcher map[string][]string

func (f staticFetcher) Fetch(_ context.Context, key string, _ bool) ([]string, error) {
	return f[key], nil
}

// TestAPI_Integration wires the API to PostgreSQL custom preset storage,
// the Redis taginfo tier and a running syncer.
func TestAPI_Integration(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pgContainer, err := testsupport.StartPostgresContainer(ctx, "../../migrations")
	require.NoError(t, err, "failed to start postgres container")
	defer func() { _ = pgContainer.Terminate(context.Background()) }()

	redisContainer, err := testsupport.StartRedisContainer(ctx)
	require.NoError(t, err, "failed to start redis container")
	defer func() { _ = redisContainer.Terminate(context.Background()) }()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	loader := catalog.NewLoader(os.DirFS("../catalog/testdata/presets"), logger)
	engine := resolver.New(logger)
	require.NoError(t, engine.SetLanguage(ctx, loader, "en"))

	repo := store.NewPostgresStore(pgContainer.DB)
	sync := syncer.New(logger, config.SyncerConfig{PollInterval: time.Hour, JobTimeout: 10 * time.Second},
		engine, syncer.Sources{Loader: loader}, repo)
	go func() { _ = sync.Run(ctx) }()
	<-sync.Ready()

	l1, err := cache.NewMemoryCache(100)
	require.NoError(t, err)
	tags := taginfo.NewService(l1, staticFetcher{"cuisine": {"pizza"}}, logger, time.Hour, 5*time.Second,
		taginfo.WithSharedStore(redisContainer.Store))

	a := api.NewAPI(api.Dependencies{
		Engine:        engine,
		Loader:        loader,
		CustomPresets: repo,
		TagInfo:       tags,
		Notifier:      sync,
		Logger:        logger,
	}, api.Config{SkipAuth: true})

	do := func(method, target string, body interface{}) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		req := httptest.NewRequest(method, target, &buf)
		rr := httptest.NewRecorder()
		a.Router.ServeHTTP(rr, req)
		return rr
	}

	t.Run("Should persist and install a custom preset", func(t *testing.T) {
		rr := do(http.MethodPost, "/api/v1/custom-presets", store.CustomPreset{
			ID: "kiosk", Name: "Kiosk", Tags: map[string]string{"shop": "kiosk"}, Geometry: []string{"point"},
		})
		require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

		require.Eventually(t, func() bool {
			_, ok := engine.Preset("custom/kiosk")
			return ok
		}, 5*time.Second, 50*time.Millisecond, "syncer should install the new preset")

		stored, err := repo.Get(ctx, "custom/kiosk")
		require.NoError(t, err)
		assert.Equal(t, "Kiosk", stored.Name)
	})

	t.Run("Should fill the shared taginfo tier in the background", func(t *testing.T) {
		rr := do(http.MethodGet, "/api/v1/taginfo/cuisine", nil)
		require.Equal(t, http.StatusOK, rr.Code)

		tags.Wait()

		entry, found, err := redisContainer.Store.Get(ctx, taginfo.CacheKey("cuisine", false))
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, []string{"pizza"}, entry.Results)

		again := do(http.MethodGet, "/api/v1/taginfo/cuisine", nil)
		var resp api.TagInfoResponse
		require.NoError(t, json.Unmarshal(again.Body.Bytes(), &resp))
		assert.Equal(t, []string{"pizza"}, resp.Results)
	})

	t.Run("Should delete a custom preset", func(t *testing.T) {
		rr := do(http.MethodDelete, "/api/v1/custom-presets/custom/kiosk", nil)
		require.Equal(t, http.StatusNoContent, rr.Code)

		require.Eventually(t, func() bool {
			_, ok := engine.Preset("custom/kiosk")
			return !ok
		}, 5*time.Second, 50*time.Millisecond)
	})
}
