// Package ruleengine classifies map features by matching their tags against
// presets. It owns the typed preset model, the schema-checked conversion from
// catalog documents, the tag index and the deterministic scoring matcher.
// Everything here is pure and safe for concurrent readers.
package ruleengine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rafaeljc/mimir/internal/locationset"
)

// Geometry is the shape of a map feature.
type Geometry string

const (
	GeometryPoint    Geometry = "point"
	GeometryVertex   Geometry = "vertex"
	GeometryLine     Geometry = "line"
	GeometryArea     Geometry = "area"
	GeometryRelation Geometry = "relation"
)

// Geometries lists every known geometry in canonical order.
var Geometries = []Geometry{GeometryPoint, GeometryVertex, GeometryLine, GeometryArea, GeometryRelation}

// ParseGeometry validates a geometry name.
func ParseGeometry(s string) (Geometry, error) {
	g := Geometry(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(Geometries, g) {
		return "", fmt.Errorf("unknown geometry %q", s)
	}
	return g, nil
}

// Tags is a feature's key/value attribute set.
type Tags map[string]string

// Clone returns a shallow copy.
func (t Tags) Clone() Tags {
	out := make(Tags, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// Origin records which dataset a preset comes from.
type Origin uint8

const (
	OriginBase Origin = iota
	OriginSupplementary
	OriginCustom
)

func (o Origin) String() string {
	switch o {
	case OriginBase:
		return "base"
	case OriginSupplementary:
		return "supplementary"
	case OriginCustom:
		return "custom"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Origin) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Preset is a single catalog entry. Presets are immutable once compiled and
// shared between snapshots and indexes by pointer.
type Preset struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Tags        Tags              `json:"tags"`
	AddTags     Tags              `json:"addTags,omitempty"`
	RemoveTags  Tags              `json:"removeTags,omitempty"`
	Geometry    []Geometry        `json:"geometry"`
	LocationSet *locationset.Set  `json:"locationSet,omitempty"`
	MatchScore  float64           `json:"matchScore"`
	Searchable  bool              `json:"searchable"`
	Terms       []string          `json:"terms,omitempty"`
	Aliases     []string          `json:"aliases,omitempty"`
	Icon        string            `json:"icon,omitempty"`
	ImageURL    string            `json:"imageURL,omitempty"`
	Fields      []string          `json:"fields,omitempty"`
	MoreFields  []string          `json:"moreFields,omitempty"`
	Reference   map[string]string `json:"reference,omitempty"`
	Origin      Origin            `json:"origin"`

	predicates []predicate
	bonus      []predicate // addTags entries that are not predicates
	search     searchText
}

// predicate is one compiled entry of Preset.Tags.
type predicate struct {
	key      string
	value    string
	isPrefix bool // key ended in "*"; key holds the prefix
}

// HasGeometry reports whether g is one of the permitted geometries.
func (p *Preset) HasGeometry(g Geometry) bool {
	return slices.Contains(p.Geometry, g)
}

// Parent returns the parent preset id ("amenity/cafe" -> "amenity").
func (p *Preset) Parent() (string, bool) {
	return ParentID(p.ID)
}

// ParentID strips the last path segment of a preset id.
func ParentID(id string) (string, bool) {
	i := strings.LastIndexByte(id, '/')
	if i < 0 {
		return "", false
	}
	return id[:i], true
}

// TopLevelKey returns the first path segment of a preset id.
func TopLevelKey(id string) string {
	if i := strings.IndexByte(id, '/'); i >= 0 {
		return id[:i]
	}
	return id
}

// PredicateKeys returns the predicate keys in sorted order. Wildcard keys keep
// their trailing "*".
func (p *Preset) PredicateKeys() []string {
	keys := make([]string, 0, len(p.Tags))
	for k := range p.Tags {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
