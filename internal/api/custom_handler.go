package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"golang.org/x/text/language"

	"github.com/rafaeljc/mimir/internal/logger"
	"github.com/rafaeljc/mimir/internal/store"
	"github.com/rafaeljc/mimir/internal/syncer"
)

// handleSetLanguage processes PUT /api/v1/language. The catalog for the new
// locale is loaded before responding; overlays are rebuilt in the background.
func (a *API) handleSetLanguage(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	var req LanguageRequest
	if err := render.DecodeJSON(r.Body, &req); err != nil {
		log.Warn("invalid json payload", slog.String("error", err.Error()))
		writeError(w, r, http.StatusBadRequest, "ERR_INVALID_JSON", "Invalid JSON payload: "+err.Error())
		return
	}

	tag, err := language.Parse(strings.TrimSpace(req.Locale))
	if err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, invalidInput("locale", err.Error()))
		return
	}
	locale := tag.String()

	// The load reserves a generation; a client disconnect must not abort it.
	loadCtx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), a.cfg.LoadTimeout)
	defer cancel()
	if err := a.engine.SetLanguage(loadCtx, a.loader, locale); err != nil {
		a.writeEngineError(w, r, err)
		return
	}
	if a.notifier != nil {
		a.notifier.Notify(syncer.EventLanguage)
	}

	log.Info("language changed", slog.String("locale", locale))

	snap := a.engine.Snapshot()
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{
		"locale":      snap.Locale(),
		"fingerprint": snap.Fingerprint(),
	})
}

// handleListCustomPresets processes GET /api/v1/custom-presets.
func (a *API) handleListCustomPresets(w http.ResponseWriter, r *http.Request) {
	if !a.requireCustomStore(w, r) {
		return
	}

	presets, err := a.custom.List(r.Context())
	if err != nil {
		a.writeStoreError(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ListResponse{Data: presets, Total: len(presets)})
}

// handleCreateCustomPreset processes POST /api/v1/custom-presets.
func (a *API) handleCreateCustomPreset(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	if !a.requireCustomStore(w, r) {
		return
	}

	var cp store.CustomPreset
	if err := render.DecodeJSON(r.Body, &cp); err != nil {
		log.Warn("invalid json payload", slog.String("error", err.Error()))
		writeError(w, r, http.StatusBadRequest, "ERR_INVALID_JSON", "Invalid JSON payload: "+err.Error())
		return
	}

	cp.Normalize()
	if err := cp.Validate(); err != nil {
		writeErrorResponse(w, r, http.StatusBadRequest, &ErrorResponse{
			Code:    "ERR_INVALID_INPUT",
			Message: err.Error(),
		})
		return
	}
	if snap := a.engine.Snapshot(); snap != nil {
		if _, clash := snap.Preset(cp.ID); clash {
			writeError(w, r, http.StatusConflict, "ERR_CONFLICT", fmt.Sprintf("Preset %q already exists in the catalog", cp.ID))
			return
		}
	}

	if err := a.custom.Create(r.Context(), &cp); err != nil {
		a.writeStoreError(w, r, err)
		return
	}

	log.Info("custom preset created", slog.String("id", cp.ID))
	a.customPresetsChanged(r.Context())

	w.Header().Set("Location", "/api/v1/custom-presets/"+cp.ID)
	render.Status(r, http.StatusCreated)
	render.JSON(w, r, cp)
}

// handleDeleteCustomPreset processes DELETE /api/v1/custom-presets/{id}.
func (a *API) handleDeleteCustomPreset(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	if !a.requireCustomStore(w, r) {
		return
	}

	cp := store.CustomPreset{ID: strings.Trim(chi.URLParam(r, "*"), "/")}
	cp.Normalize()
	if cp.ID == "" {
		writeError(w, r, http.StatusBadRequest, "ERR_INVALID_INPUT", "Preset id is required")
		return
	}

	if err := a.custom.Delete(r.Context(), cp.ID); err != nil {
		a.writeStoreError(w, r, err)
		return
	}

	log.Info("custom preset deleted", slog.String("id", cp.ID))
	a.customPresetsChanged(r.Context())

	w.WriteHeader(http.StatusNoContent)
}

// customPresetsChanged hands the reload to the syncer, or installs the
// stored set directly when running without one.
func (a *API) customPresetsChanged(ctx context.Context) {
	if a.notifier != nil {
		a.notifier.Notify(syncer.EventCustomPresets)
		return
	}

	if err := syncer.ReloadCustomPresets(ctx, logger.FromContext(ctx), a.engine, a.custom); err != nil {
		logger.FromContext(ctx).Error("failed to reload custom presets", slog.String("error", err.Error()))
	}
}

func (a *API) requireCustomStore(w http.ResponseWriter, r *http.Request) bool {
	if a.custom == nil {
		writeError(w, r, http.StatusServiceUnavailable, "ERR_UNAVAILABLE", "Custom preset storage is not configured")
		return false
	}
	return true
}

// writeStoreError maps repository errors to HTTP responses.
func (a *API) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, r, http.StatusNotFound, "ERR_NOT_FOUND", err.Error())
	case errors.Is(err, store.ErrDuplicate):
		writeError(w, r, http.StatusConflict, "ERR_CONFLICT", err.Error())
	case errors.Is(err, store.ErrReadOnly):
		writeError(w, r, http.StatusMethodNotAllowed, "ERR_READ_ONLY", err.Error())
	default:
		logger.FromContext(r.Context()).Error("custom preset storage failed", slog.String("error", err.Error()))
		writeError(w, r, http.StatusInternalServerError, "ERR_INTERNAL", "Internal server error")
	}
}
