package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

// handleTagInfo processes GET /api/v1/taginfo/{key}?kind=keys|values. It
// answers from cache immediately; stale or missing entries are refreshed in
// the background and show up on a later request.
func (a *API) handleTagInfo(w http.ResponseWriter, r *http.Request) {
	if a.tagInfo == nil {
		writeError(w, r, http.StatusServiceUnavailable, "ERR_UNAVAILABLE", "Tag statistics are not configured")
		return
	}

	key := strings.TrimSpace(chi.URLParam(r, "key"))
	if key == "" {
		writeErrorResponse(w, r, http.StatusBadRequest, invalidInput("key", "key is required"))
		return
	}

	kind := r.URL.Query().Get("kind")
	if kind == "" {
		kind = "values"
	}
	if kind != "keys" && kind != "values" {
		writeErrorResponse(w, r, http.StatusBadRequest, invalidInput("kind", "kind must be keys or values"))
		return
	}

	results := a.tagInfo.Lookup(r.Context(), key, kind == "keys", func([]string) {})

	render.Status(r, http.StatusOK)
	render.JSON(w, r, TagInfoResponse{Key: key, Kind: kind, Results: results})
}
