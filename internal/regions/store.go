// Package regions loads country and region boundaries and answers
// point-in-region questions for location sets.
package regions

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dhconnelly/rtreego"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/rafaeljc/mimir/internal/locationset"
)

// ErrCorruptBoundaries is returned when a bundled boundary file cannot be parsed.
var ErrCorruptBoundaries = errors.New("regions: corrupt boundary data")

// minExtent keeps degenerate bounding boxes valid for the R-tree.
const minExtent = 1e-9

// Region is a named boundary with all of its code aliases.
type Region struct {
	// ID is the preferred identifier (alpha-2, M49 or Wikidata id).
	ID           string   `json:"id"`
	Country      string   `json:"country,omitempty"`
	ISO1A2       string   `json:"iso1A2,omitempty"`
	ISO1A3       string   `json:"iso1A3,omitempty"`
	ISO1N3       string   `json:"iso1N3,omitempty"`
	M49          string   `json:"m49,omitempty"`
	Wikidata     string   `json:"wikidata,omitempty"`
	Aliases      []string `json:"aliases"`
	Groups       []string `json:"groups,omitempty"`
	CallingCodes []string `json:"callingCodes,omitempty"`

	geometry orb.Geometry
	bound    orb.Bound
	rect     rtreego.Rect
}

// Bounds implements rtreego.Spatial.
func (r *Region) Bounds() rtreego.Rect {
	return r.rect
}

// HasGeometry reports whether the region carries its own polygon. Group
// regions (continents, unions) are defined by their members instead.
func (r *Region) HasGeometry() bool {
	return r.geometry != nil
}

// containsPoint runs the bounding-box check before the polygon test.
func (r *Region) containsPoint(pt orb.Point) bool {
	if r.geometry == nil || !r.bound.Contains(pt) {
		return false
	}
	return geometryContains(r.geometry, pt)
}

func geometryContains(g orb.Geometry, pt orb.Point) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, pt)
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, pt)
	case orb.Ring:
		return planar.RingContains(geom, pt)
	case orb.Bound:
		return geom.Contains(pt)
	default:
		return false
	}
}

// Store is an immutable, concurrency-safe collection of regions.
type Store struct {
	regions []*Region
	byCode  map[string]*Region
	tree    *rtreego.Rtree
}

// Load parses a GeoJSON FeatureCollection of boundaries. Each feature's
// properties may carry country, iso1A2, iso1A3, iso1N3, m49, wikidata,
// aliases, groups and callingCodes.
func Load(r io.Reader) (*Store, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read: %v", ErrCorruptBoundaries, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptBoundaries, err)
	}
	return FromFeatures(fc.Features)
}

// FromFeatures builds a store from already decoded features.
func FromFeatures(features []*geojson.Feature) (*Store, error) {
	s := &Store{
		byCode: make(map[string]*Region, len(features)*4),
		tree:   rtreego.NewTree(2, 25, 50),
	}

	for i, f := range features {
		region, err := regionFromFeature(f)
		if err != nil {
			return nil, fmt.Errorf("%w: feature %d: %v", ErrCorruptBoundaries, i, err)
		}
		for _, alias := range region.Aliases {
			if _, exists := s.byCode[alias]; !exists {
				s.byCode[alias] = region
			}
		}
		if region.geometry != nil {
			s.tree.Insert(region)
		}
		s.regions = append(s.regions, region)
	}

	sort.Slice(s.regions, func(i, j int) bool { return s.regions[i].ID < s.regions[j].ID })
	return s, nil
}

func regionFromFeature(f *geojson.Feature) (*Region, error) {
	if f == nil {
		return nil, fmt.Errorf("null feature")
	}
	props := f.Properties

	r := &Region{
		Country:      upper(stringProp(props, "country")),
		ISO1A2:       upper(stringProp(props, "iso1A2")),
		ISO1A3:       upper(stringProp(props, "iso1A3")),
		ISO1N3:       stringProp(props, "iso1N3"),
		M49:          stringProp(props, "m49"),
		Wikidata:     upper(stringProp(props, "wikidata")),
		Groups:       upperAll(stringsProp(props, "groups")),
		CallingCodes: stringsProp(props, "callingCodes"),
	}

	r.ID = firstNonEmpty(upper(stringProp(props, "id")), idString(f.ID), r.ISO1A2, r.M49, r.Wikidata)
	if r.ID == "" {
		return nil, fmt.Errorf("feature has no identifier")
	}

	seen := make(map[string]struct{})
	for _, code := range append([]string{r.ID, r.ISO1A2, r.ISO1A3, r.ISO1N3, r.M49, r.Wikidata}, upperAll(stringsProp(props, "aliases"))...) {
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		r.Aliases = append(r.Aliases, code)
	}

	if f.Geometry != nil {
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
		default:
			return nil, fmt.Errorf("region %s: unsupported geometry %s", r.ID, f.Geometry.GeoJSONType())
		}
		r.geometry = f.Geometry
		r.bound = f.Geometry.Bound()
		rect, err := rectFromBound(r.bound)
		if err != nil {
			return nil, fmt.Errorf("region %s: %v", r.ID, err)
		}
		r.rect = rect
	}

	return r, nil
}

func rectFromBound(b orb.Bound) (rtreego.Rect, error) {
	lengths := []float64{
		math.Max(b.Max.Lon()-b.Min.Lon(), minExtent),
		math.Max(b.Max.Lat()-b.Min.Lat(), minExtent),
	}
	return rtreego.NewRect(rtreego.Point{b.Min.Lon(), b.Min.Lat()}, lengths)
}

// Len returns the number of regions.
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.regions)
}

// Region looks up a region by any of its code aliases.
func (s *Store) Region(code string) *Region {
	if s == nil {
		return nil
	}
	return s.byCode[strings.ToUpper(code)]
}

// Contains reports whether the region identified by code contains pt. Group
// regions without their own geometry contain pt when one of their member
// regions does.
func (s *Store) Contains(code string, pt orb.Point) bool {
	target := s.Region(code)
	if target == nil {
		return false
	}
	if target.geometry != nil {
		return target.containsPoint(pt)
	}
	for _, r := range s.RegionsAt(pt) {
		if s.inGroup(r, target, map[*Region]struct{}{}) {
			return true
		}
	}
	return false
}

func (s *Store) inGroup(r, target *Region, visited map[*Region]struct{}) bool {
	if r == target {
		return true
	}
	if _, ok := visited[r]; ok {
		return false
	}
	visited[r] = struct{}{}
	for _, g := range r.Groups {
		if parent := s.byCode[g]; parent != nil && s.inGroup(parent, target, visited) {
			return true
		}
	}
	return false
}

// RegionsAt returns the regions whose polygon contains pt, smallest first.
func (s *Store) RegionsAt(pt orb.Point) []*Region {
	if s == nil {
		return nil
	}
	query, err := rtreego.NewRect(rtreego.Point{pt.Lon(), pt.Lat()}, []float64{minExtent, minExtent})
	if err != nil {
		return nil
	}

	var out []*Region
	for _, sp := range s.tree.SearchIntersect(query) {
		r := sp.(*Region)
		if r.containsPoint(pt) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ai, aj := boundArea(out[i].bound), boundArea(out[j].bound)
		if ai != aj {
			return ai < aj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ContextAt resolves a point into a location context listing the country and
// every code of every containing region and group.
func (s *Store) ContextAt(pt orb.Point) locationset.Context {
	ctx := locationset.Context{Point: &pt}

	seen := make(map[string]struct{})
	add := func(codes []string) {
		for _, c := range codes {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			ctx.Regions = append(ctx.Regions, c)
		}
	}

	var walk func(r *Region, visited map[*Region]struct{})
	walk = func(r *Region, visited map[*Region]struct{}) {
		if _, ok := visited[r]; ok {
			return
		}
		visited[r] = struct{}{}
		add(r.Aliases)
		for _, g := range r.Groups {
			if parent := s.byCode[g]; parent != nil {
				walk(parent, visited)
			}
		}
	}

	for _, r := range s.RegionsAt(pt) {
		if ctx.Country == "" {
			switch {
			case r.Country != "":
				ctx.Country = r.Country
			case r.ISO1A2 != "":
				ctx.Country = r.ISO1A2
			}
		}
		walk(r, map[*Region]struct{}{})
	}
	return ctx
}

func boundArea(b orb.Bound) float64 {
	return (b.Max.Lon() - b.Min.Lon()) * (b.Max.Lat() - b.Min.Lat())
}

func stringProp(props geojson.Properties, key string) string {
	switch v := props[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func stringsProp(props geojson.Properties, key string) []string {
	raw, ok := props[key].([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return out
}

func idString(id interface{}) string {
	switch v := id.(type) {
	case string:
		return strings.ToUpper(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

func upper(s string) string { return strings.ToUpper(strings.TrimSpace(s)) }

func upperAll(in []string) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = upper(s)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
