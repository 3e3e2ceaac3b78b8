package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/render"

	"github.com/rafaeljc/mimir/internal/catalog"
	"github.com/rafaeljc/mimir/internal/locationset"
	"github.com/rafaeljc/mimir/internal/ruleengine"
)

// defaultSearchLimit applies when the client does not send a limit.
const defaultSearchLimit = 50

// maxSearchLimit bounds the search result size.
const maxSearchLimit = 200

// Location is where the user is looking. Country wins over a point; a point
// is resolved to its country and regions through the boundary atlas.
type Location struct {
	Country string   `json:"country,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
	Lat     *float64 `json:"lat,omitempty"`
}

// Context converts the request location for the engine.
func (l *Location) Context() (locationset.Context, *ErrorResponse) {
	if l == nil {
		return locationset.Context{}, nil
	}
	if c := strings.TrimSpace(l.Country); c != "" {
		return locationset.AtCountry(strings.ToUpper(c)), nil
	}
	if l.Lon == nil && l.Lat == nil {
		return locationset.Context{}, nil
	}
	if l.Lon == nil || l.Lat == nil {
		return locationset.Context{}, invalidInput("location", "lon and lat must be sent together")
	}
	if *l.Lon < -180 || *l.Lon > 180 || *l.Lat < -90 || *l.Lat > 90 {
		return locationset.Context{}, invalidInput("location", "coordinates out of range")
	}
	return locationset.AtPoint(*l.Lon, *l.Lat), nil
}

// MatchRequest is the payload of POST /match.
type MatchRequest struct {
	Tags     map[string]string `json:"tags"`
	Geometry string            `json:"geometry"`
	Location *Location         `json:"location,omitempty"`

	// Suggestions includes supplementary presets once they are installed.
	Suggestions bool `json:"suggestions"`
}

// Validate checks the request and returns the parsed geometry.
func (r *MatchRequest) Validate() (ruleengine.Geometry, *ErrorResponse) {
	if len(r.Tags) == 0 {
		return "", invalidInput("tags", "at least one tag is required")
	}
	return parseGeometry(r.Geometry)
}

// MatchResponse carries the best match, or a nil match when nothing scored.
type MatchResponse struct {
	Match       *PresetResponse `json:"match"`
	Score       float64         `json:"score"`
	Fingerprint string          `json:"fingerprint"`
	Location    LocationInfo    `json:"location"`
}

// LocationInfo echoes the resolved location context.
type LocationInfo struct {
	Country string   `json:"country,omitempty"`
	Regions []string `json:"regions,omitempty"`
}

// ApplyRequest is the payload of POST /apply.
type ApplyRequest struct {
	PresetID string            `json:"preset"`
	Tags     map[string]string `json:"tags"`
	Geometry string            `json:"geometry"`
	Location *Location         `json:"location,omitempty"`
}

// Validate checks the request and returns the parsed geometry.
func (r *ApplyRequest) Validate() (ruleengine.Geometry, *ErrorResponse) {
	r.PresetID = strings.TrimSpace(r.PresetID)
	if r.PresetID == "" {
		return "", invalidInput("preset", "preset id is required")
	}
	return parseGeometry(r.Geometry)
}

// ApplyResponse holds the feature tags after choosing the preset.
type ApplyResponse struct {
	Tags map[string]string `json:"tags"`
}

// PresetResponse is a preset together with its resolved presentation data.
type PresetResponse struct {
	*ruleengine.Preset

	// IconResolved is the icon after inheritance from parent presets.
	IconResolved string           `json:"iconResolved,omitempty"`
	FieldDetails []*catalog.Field `json:"fieldDetails"`
	MoreDetails  []*catalog.Field `json:"moreFieldDetails"`
}

func newPresetResponse(snap *catalog.Snapshot, p *ruleengine.Preset) *PresetResponse {
	if p == nil {
		return nil
	}
	resp := &PresetResponse{Preset: p, IconResolved: p.Icon}
	if snap != nil {
		if icon := snap.Icon(p.ID); icon != "" {
			resp.IconResolved = icon
		}
		resp.FieldDetails = snap.FieldsFor(p.ID, false)
		resp.MoreDetails = snap.FieldsFor(p.ID, true)
	}
	if resp.FieldDetails == nil {
		resp.FieldDetails = []*catalog.Field{}
	}
	if resp.MoreDetails == nil {
		resp.MoreDetails = []*catalog.Field{}
	}
	return resp
}

// SearchResult is a compact preset entry returned by search.
type SearchResult struct {
	ID     string            `json:"id"`
	Name   string            `json:"name"`
	Icon   string            `json:"icon,omitempty"`
	Origin ruleengine.Origin `json:"origin"`
}

// CategoryResponse lists a category with its member presets.
type CategoryResponse struct {
	*catalog.Category
	Presets []SearchResult `json:"presets"`
}

// LanguageRequest is the payload of PUT /language.
type LanguageRequest struct {
	Locale string `json:"locale"`
}

// TagInfoResponse lists popular keys or values.
type TagInfoResponse struct {
	Key     string   `json:"key"`
	Kind    string   `json:"kind"`
	Results []string `json:"results"`
}

// ListResponse is a standard wrapper for list endpoints.
type ListResponse struct {
	Data  interface{} `json:"data"`
	Total int         `json:"total"`
}

// ErrorResponse represents a standard structured API error.
type ErrorResponse struct {
	// Code is a machine-readable error code (e.g., "ERR_INVALID_INPUT").
	Code string `json:"code"`

	// Message is a human-readable description of the error.
	Message string `json:"message"`

	// Details provides optional granular validation errors.
	Details []ErrorDetail `json:"details,omitempty"`
}

// ErrorDetail provides context about specific field validation failures.
type ErrorDetail struct {
	Field string `json:"field"`
	Issue string `json:"issue"`
}

func invalidInput(field, issue string) *ErrorResponse {
	return &ErrorResponse{
		Code:    "ERR_INVALID_INPUT",
		Message: "Invalid " + field,
		Details: []ErrorDetail{{Field: field, Issue: issue}},
	}
}

func parseGeometry(s string) (ruleengine.Geometry, *ErrorResponse) {
	if strings.TrimSpace(s) == "" {
		return "", invalidInput("geometry", "geometry is required")
	}
	g, err := ruleengine.ParseGeometry(s)
	if err != nil {
		return "", invalidInput("geometry", err.Error())
	}
	return g, nil
}

// parseLimit reads the limit query parameter.
func parseLimit(raw string) (int, *ErrorResponse) {
	if raw == "" {
		return defaultSearchLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, invalidInput("limit", "limit must be a positive integer")
	}
	if n > maxSearchLimit {
		n = maxSearchLimit
	}
	return n, nil
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	render.Status(r, status)
	render.JSON(w, r, ErrorResponse{Code: code, Message: message})
}

func writeErrorResponse(w http.ResponseWriter, r *http.Request, status int, resp *ErrorResponse) {
	render.Status(r, status)
	render.JSON(w, r, resp)
}
