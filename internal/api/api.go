// Package api implements the HTTP interface of the preset resolution engine.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	"github.com/rafaeljc/mimir/internal/catalog"
	"github.com/rafaeljc/mimir/internal/resolver"
	"github.com/rafaeljc/mimir/internal/store"
	"github.com/rafaeljc/mimir/internal/syncer"
)

// TagInfoLookup serves cached tag statistics, refreshing them in the background.
type TagInfoLookup interface {
	Lookup(ctx context.Context, key string, searchKeys bool, update func([]string)) []string
}

// Notifier is told about changes the background syncer must react to.
type Notifier interface {
	Notify(ev syncer.Event)
}

// Dependencies are the collaborators of the API. Engine and Loader are
// required; the rest are optional and the matching routes answer 503 without
// them.
type Dependencies struct {
	Engine *resolver.Engine
	Loader *catalog.Loader

	CustomPresets store.CustomPresetRepository
	TagInfo       TagInfoLookup

	// Notifier receives change events. Without one, custom preset changes
	// are installed synchronously.
	Notifier Notifier

	Logger *slog.Logger
}

// Config holds the request-handling settings.
type Config struct {
	// APIKeyHash is the hex SHA-256 of the key accepted for mutating routes.
	APIKeyHash string

	// SkipAuth disables authentication (USE ONLY IN TESTS or development).
	SkipAuth bool

	// MaxBodyBytes caps request bodies; zero means unlimited.
	MaxBodyBytes int64

	// LoadTimeout bounds catalog loads started by PUT /language. Zero means
	// defaultLoadTimeout.
	LoadTimeout time.Duration
}

const defaultLoadTimeout = 30 * time.Second

// API is the main struct that holds dependencies and the router.
type API struct {
	// Router is the Chi multiplexer that handles HTTP requests.
	Router *chi.Mux

	engine   *resolver.Engine
	loader   *catalog.Loader
	custom   store.CustomPresetRepository
	tagInfo  TagInfoLookup
	notifier Notifier
	logger   *slog.Logger

	cfg Config
}

// NewAPI creates the API and registers its routes.
//
// Panics if:
//   - Engine or Loader are nil
//   - APIKeyHash is empty when SkipAuth is false
func NewAPI(deps Dependencies, cfg Config) *API {
	if deps.Engine == nil {
		panic("api: engine cannot be nil")
	}
	if deps.Loader == nil {
		panic("api: catalog loader cannot be nil")
	}
	if !cfg.SkipAuth && cfg.APIKeyHash == "" {
		panic("api: apiKeyHash cannot be empty when authentication is enabled")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.LoadTimeout <= 0 {
		cfg.LoadTimeout = defaultLoadTimeout
	}

	a := &API{
		Router:   chi.NewRouter(),
		engine:   deps.Engine,
		loader:   deps.Loader,
		custom:   deps.CustomPresets,
		tagInfo:  deps.TagInfo,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		cfg:      cfg,
	}

	a.configureRoutes()
	return a
}

// configureRoutes registers the global middleware stack and API endpoints.
func (a *API) configureRoutes() {
	// Metrics first so the route pattern is complete when it reads it.
	a.Router.Use(Metrics)
	a.Router.Use(middleware.RequestID)
	a.Router.Use(middleware.RealIP)
	a.Router.Use(RequestLogger(a.logger))
	a.Router.Use(middleware.Recoverer)
	a.Router.Use(render.SetContentType(render.ContentTypeJSON))

	a.Router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "ERR_NOT_FOUND", "Route not found")
	})

	// Public routes
	a.Router.Get("/health", a.handleHealthCheck)

	a.Router.Route("/api/v1", func(r chi.Router) {
		r.Use(a.limitBody)

		// Read-only resolution routes
		r.Post("/match", a.handleMatch)
		r.Post("/apply", a.handleApply)
		r.Get("/search", a.handleSearch)
		r.Get("/presets/*", a.handleGetPreset)
		r.Get("/categories/{id}", a.handleGetCategory)
		r.Get("/fields/{name}", a.handleGetField)
		r.Get("/address-formats/{country}", a.handleGetAddressFormat)
		r.Get("/locales", a.handleListLocales)
		r.Get("/taginfo/{key}", a.handleTagInfo)

		// Protected routes (authentication required)
		r.Group(func(r chi.Router) {
			r.Use(a.authenticateAPIKey)

			r.Put("/language", a.handleSetLanguage)
			r.Route("/custom-presets", func(r chi.Router) {
				r.Get("/", a.handleListCustomPresets)
				r.Post("/", a.handleCreateCustomPreset)
				r.Delete("/*", a.handleDeleteCustomPreset)
			})
		})
	})
}

// handleHealthCheck reports whether a catalog is installed.
func (a *API) handleHealthCheck(w http.ResponseWriter, r *http.Request) {
	snap := a.engine.Snapshot()
	if snap == nil {
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, map[string]string{"status": "loading"})
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{
		"status":      "ok",
		"locale":      snap.Locale(),
		"fingerprint": snap.Fingerprint(),
	})
}
