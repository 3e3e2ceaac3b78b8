package api

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/rafaeljc/mimir/internal/catalog"
	"github.com/rafaeljc/mimir/internal/logger"
	"github.com/rafaeljc/mimir/internal/ruleengine"
)

// currentSnapshot returns the installed snapshot and handles conditional
// requests. It returns nil when the response has already been written.
func (a *API) currentSnapshot(w http.ResponseWriter, r *http.Request) *catalog.Snapshot {
	snap := a.engine.Snapshot()
	if snap == nil {
		writeError(w, r, http.StatusServiceUnavailable, "ERR_NOT_READY", "Catalog is still loading")
		return nil
	}

	etag := `"` + snap.Fingerprint() + `"`
	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Language", snap.Locale())
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return nil
	}
	return snap
}

// handleGetPreset processes GET /api/v1/presets/{id}. Preset ids contain
// slashes, so the id is the whole wildcard.
func (a *API) handleGetPreset(w http.ResponseWriter, r *http.Request) {
	id := strings.Trim(chi.URLParam(r, "*"), "/")
	if id == "" {
		writeError(w, r, http.StatusBadRequest, "ERR_INVALID_INPUT", "Preset id is required")
		return
	}

	snap := a.currentSnapshot(w, r)
	if snap == nil {
		return
	}

	p, ok := a.engine.Preset(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "ERR_NOT_FOUND", "Preset not found")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, newPresetResponse(snap, p))
}

// handleGetCategory processes GET /api/v1/categories/{id}.
func (a *API) handleGetCategory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	snap := a.currentSnapshot(w, r)
	if snap == nil {
		return
	}

	c, ok := snap.Category(id)
	if !ok {
		writeError(w, r, http.StatusNotFound, "ERR_NOT_FOUND", "Category not found")
		return
	}
	members, _ := snap.PresetsInCategory(id)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, CategoryResponse{Category: c, Presets: toResults(snap, members)})
}

// handleGetField processes GET /api/v1/fields/{name}.
func (a *API) handleGetField(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	snap := a.currentSnapshot(w, r)
	if snap == nil {
		return
	}

	f, ok := snap.Field(name)
	if !ok {
		writeError(w, r, http.StatusNotFound, "ERR_NOT_FOUND", "Field not found")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, f)
}

// handleGetAddressFormat processes GET /api/v1/address-formats/{country}.
func (a *API) handleGetAddressFormat(w http.ResponseWriter, r *http.Request) {
	country := chi.URLParam(r, "country")

	snap := a.currentSnapshot(w, r)
	if snap == nil {
		return
	}

	f, ok := snap.AddressFormat(country)
	if !ok {
		writeError(w, r, http.StatusNotFound, "ERR_NOT_FOUND", "No address format available")
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, f)
}

// handleSearch processes GET /api/v1/search. Without a query it returns the
// default presets for the geometry.
func (a *API) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	geom := q.Get("geometry")
	if geom == "" {
		geom = string(ruleengine.GeometryPoint)
	}
	g, errResp := parseGeometry(geom)
	if errResp != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, errResp)
		return
	}
	limit, errResp := parseLimit(q.Get("limit"))
	if errResp != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, errResp)
		return
	}
	loc, errResp := (&Location{Country: q.Get("country")}).Context()
	if errResp != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, errResp)
		return
	}

	snap := a.engine.Snapshot()
	if snap == nil {
		writeError(w, r, http.StatusServiceUnavailable, "ERR_NOT_READY", "Catalog is still loading")
		return
	}

	var presets []*ruleengine.Preset
	query := strings.TrimSpace(q.Get("q"))
	if query == "" {
		for _, id := range snap.Defaults(g) {
			if p, ok := a.engine.Preset(id); ok {
				presets = append(presets, p)
			}
		}
		if len(presets) > limit {
			presets = presets[:limit]
		}
	} else {
		presets = a.engine.Search(query, g, loc, limit, q.Get("suggestions") == "true")
	}

	results := toResults(snap, presets)
	render.Status(r, http.StatusOK)
	render.JSON(w, r, ListResponse{Data: results, Total: len(results)})
}

// handleListLocales processes GET /api/v1/locales.
func (a *API) handleListLocales(w http.ResponseWriter, r *http.Request) {
	locales, err := a.loader.Locales()
	if err != nil {
		logger.FromContext(r.Context()).Error("failed to list locales", slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, "ERR_INTERNAL", "Internal server error")
		return
	}

	current := ""
	if snap := a.engine.Snapshot(); snap != nil {
		current = snap.Locale()
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]interface{}{
		"current":   current,
		"available": locales,
	})
}

func toResults(snap *catalog.Snapshot, presets []*ruleengine.Preset) []SearchResult {
	out := make([]SearchResult, 0, len(presets))
	for _, p := range presets {
		icon := p.Icon
		if icon == "" {
			icon = snap.Icon(p.ID)
		}
		out = append(out, SearchResult{ID: p.ID, Name: p.Name, Icon: icon, Origin: p.Origin})
	}
	return out
}
