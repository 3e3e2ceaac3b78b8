package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/rafaeljc/mimir/internal/logger"
	"github.com/rafaeljc/mimir/internal/resolver"
	"github.com/rafaeljc/mimir/internal/ruleengine"
)

// handleMatch processes POST /api/v1/match: it returns the preset that best
// describes the feature, or a null match when nothing scores.
func (a *API) handleMatch(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req MatchRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("invalid json payload", slog.String("error", err.Error()))
		writeError(w, r, http.StatusBadRequest, "ERR_INVALID_JSON", "Invalid JSON payload: "+err.Error())
		return
	}

	g, errResp := req.Validate()
	if errResp != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, errResp)
		return
	}
	loc, errResp := req.Location.Context()
	if errResp != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, errResp)
		return
	}

	snap := a.engine.Snapshot()
	if snap == nil {
		writeError(w, r, http.StatusServiceUnavailable, "ERR_NOT_READY", "Catalog is still loading")
		return
	}

	loc = a.engine.Locate(loc)
	m := a.engine.BestMatch(ruleengine.Tags(req.Tags), g, loc, req.Suggestions)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, MatchResponse{
		Match:       newPresetResponse(snap, m.Preset),
		Score:       m.Score,
		Fingerprint: snap.Fingerprint(),
		Location:    LocationInfo{Country: loc.Country, Regions: loc.Regions},
	})
}

// handleApply processes POST /api/v1/apply.
func (a *API) handleApply(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req ApplyRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("invalid json payload", slog.String("error", err.Error()))
		writeError(w, r, http.StatusBadRequest, "ERR_INVALID_JSON", "Invalid JSON payload: "+err.Error())
		return
	}

	g, errResp := req.Validate()
	if errResp != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, errResp)
		return
	}
	loc, errResp := req.Location.Context()
	if errResp != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, errResp)
		return
	}

	tags := ruleengine.Tags(req.Tags)
	if tags == nil {
		tags = ruleengine.Tags{}
	}

	out, err := a.engine.ApplyPreset(tags, g, a.engine.Locate(loc), req.PresetID)
	if err != nil {
		a.writeEngineError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ApplyResponse{Tags: out})
}

// writeEngineError maps resolver errors to HTTP responses.
func (a *API) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, resolver.ErrUnknownPreset):
		writeError(w, r, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
	case errors.Is(err, resolver.ErrUnsupportedGeometry):
		writeError(w, r, http.StatusUnprocessableEntity, "ERR_UNSUPPORTED_GEOMETRY", err.Error())
	case errors.Is(err, resolver.ErrShadowsCatalog):
		writeError(w, r, http.StatusConflict, "ERR_CONFLICT", err.Error())
	case errors.Is(err, resolver.ErrSuperseded):
		writeError(w, r, http.StatusConflict, "ERR_SUPERSEDED", err.Error())
	case errors.Is(err, resolver.ErrNoSnapshot):
		writeError(w, r, http.StatusServiceUnavailable, "ERR_NOT_READY", "Catalog is still loading")
	default:
		logger.FromContext(r.Context()).Error("engine request failed", slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, "ERR_INTERNAL", "Internal server error")
	}
}
