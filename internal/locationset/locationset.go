// Package locationset evaluates include/exclude geographic filters attached
// to presets and fields.
//
// A set is made of entries of four kinds: the world ("001"), a region code
// ("us", "150", "Q46"), a named polygon ("philly_metro.geojson") and a circle
// ([lon, lat] or [lon, lat, radiusMeters]). An empty include list means no
// restriction. Exclude entries are evaluated after include and always win.
package locationset

import (
	"fmt"
	"strings"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"

	"github.com/rafaeljc/mimir/internal/value"
)

const (
	// WorldCode is the M49 code matching every location.
	WorldCode = "001"

	// DefaultRadius is used for circle entries that omit a radius.
	DefaultRadius = 25000.0

	// earthRadiusMeters is the mean Earth radius used for great-circle distances.
	earthRadiusMeters = 6371008.8

	shapeSuffix = ".geojson"
)

// EntryKind identifies the variant of an Entry.
type EntryKind uint8

const (
	EntryWorld EntryKind = iota
	EntryRegion
	EntryShape
	EntryCircle
)

// Entry is a single include or exclude item.
type Entry struct {
	Kind EntryKind
	// Code is the region code for EntryRegion, or the shape name for EntryShape.
	Code   string
	Center orb.Point
	Radius float64
}

// Resolver answers geometric questions about named regions and shapes.
// Implementations must be safe for concurrent use.
type Resolver interface {
	// RegionContains reports whether the region identified by code contains pt.
	RegionContains(code string, pt orb.Point) bool
	// ShapeContains reports whether the named polygon contains pt.
	ShapeContains(name string, pt orb.Point) bool
}

// Context describes where the user is looking.
type Context struct {
	// Country is the ISO code of the country at the location, if known.
	Country string
	// Regions lists every code of every region containing the location.
	Regions []string
	// Point is the location of interest.
	Point *orb.Point
	// Viewport is used when Point is unset; its centre stands in for the point.
	Viewport *orb.Bound
}

// AtCountry returns a context that only knows the country code.
func AtCountry(code string) Context {
	return Context{Country: code}
}

// AtPoint returns a context located at lon/lat.
func AtPoint(lon, lat float64) Context {
	pt := orb.Point{lon, lat}
	return Context{Point: &pt}
}

// Location returns the point used for geometric tests.
func (c Context) Location() (orb.Point, bool) {
	if c.Point != nil {
		return *c.Point, true
	}
	if c.Viewport != nil {
		return c.Viewport.Center(), true
	}
	return orb.Point{}, false
}

// Set is an include/exclude filter. The nil *Set matches everything.
type Set struct {
	Include []Entry `json:"include,omitempty"`
	Exclude []Entry `json:"exclude,omitempty"`
}

// Parse converts {"include": [...], "exclude": [...]} into a Set. A null
// value yields a nil set.
func Parse(v value.Value) (*Set, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsMap() {
		return nil, fmt.Errorf("locationset: expected object, got %s", v.Kind())
	}

	include, err := parseEntries(v.Get("include"))
	if err != nil {
		return nil, fmt.Errorf("locationset: include: %w", err)
	}
	exclude, err := parseEntries(v.Get("exclude"))
	if err != nil {
		return nil, fmt.Errorf("locationset: exclude: %w", err)
	}
	if len(include) == 0 && len(exclude) == 0 {
		return nil, nil
	}
	return &Set{Include: include, Exclude: exclude}, nil
}

func parseEntries(v value.Value) ([]Entry, error) {
	if v.IsNull() {
		return nil, nil
	}
	if !v.IsList() {
		return nil, fmt.Errorf("expected list, got %s", v.Kind())
	}
	entries := make([]Entry, 0, v.Len())
	for i, item := range v.Items() {
		e, err := parseEntry(item)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func parseEntry(v value.Value) (Entry, error) {
	if s, ok := v.Str(); ok {
		switch {
		case s == WorldCode:
			return Entry{Kind: EntryWorld}, nil
		case strings.HasSuffix(strings.ToLower(s), shapeSuffix):
			return Entry{Kind: EntryShape, Code: s}, nil
		case s == "":
			return Entry{}, fmt.Errorf("empty region code")
		default:
			return Entry{Kind: EntryRegion, Code: s}, nil
		}
	}

	if !v.IsList() {
		return Entry{}, fmt.Errorf("unsupported entry of kind %s", v.Kind())
	}
	nums := make([]float64, 0, v.Len())
	for _, item := range v.Items() {
		n, ok := item.Num()
		if !ok {
			return Entry{}, fmt.Errorf("circle coordinates must be numbers")
		}
		nums = append(nums, n)
	}
	switch len(nums) {
	case 2:
		return Circle(nums[0], nums[1], DefaultRadius), nil
	case 3:
		if nums[2] <= 0 {
			return Entry{}, fmt.Errorf("circle radius must be positive, got %v", nums[2])
		}
		return Circle(nums[0], nums[1], nums[2]), nil
	default:
		return Entry{}, fmt.Errorf("circle needs 2 or 3 numbers, got %d", len(nums))
	}
}

// Region returns a region-code entry.
func Region(code string) Entry { return Entry{Kind: EntryRegion, Code: code} }

// World returns the world entry.
func World() Entry { return Entry{Kind: EntryWorld} }

// Shape returns a named-polygon entry.
func Shape(name string) Entry { return Entry{Kind: EntryShape, Code: name} }

// Circle returns a circular entry centred on lon/lat.
func Circle(lon, lat, radius float64) Entry {
	return Entry{Kind: EntryCircle, Center: orb.Point{lon, lat}, Radius: radius}
}

// IsEmpty reports whether the set imposes no restriction.
func (s *Set) IsEmpty() bool {
	return s == nil || (len(s.Include) == 0 && len(s.Exclude) == 0)
}

// Contains evaluates the set against a bare country or region code.
// Polygon and circle entries never match a code.
func (s *Set) Contains(code string) bool {
	if s.IsEmpty() {
		return true
	}
	match := func(e Entry) bool { return e.matchesCode(code) }
	return s.evaluate(match)
}

// Overlaps evaluates the set against a location context. A nil resolver
// makes polygon entries fail closed.
func (s *Set) Overlaps(ctx Context, r Resolver) bool {
	if s.IsEmpty() {
		return true
	}
	match := func(e Entry) bool { return e.matchesContext(ctx, r) }
	return s.evaluate(match)
}

func (s *Set) evaluate(match func(Entry) bool) bool {
	if len(s.Include) > 0 && !anyMatch(s.Include, match) {
		return false
	}
	if anyMatch(s.Exclude, match) {
		return false
	}
	return true
}

func anyMatch(entries []Entry, match func(Entry) bool) bool {
	for _, e := range entries {
		if match(e) {
			return true
		}
	}
	return false
}

func (e Entry) matchesCode(code string) bool {
	switch e.Kind {
	case EntryWorld:
		return true
	case EntryRegion:
		return strings.EqualFold(e.Code, code)
	default:
		return false
	}
}

func (e Entry) matchesContext(ctx Context, r Resolver) bool {
	switch e.Kind {
	case EntryWorld:
		return true

	case EntryRegion:
		if ctx.Country != "" && strings.EqualFold(e.Code, ctx.Country) {
			return true
		}
		for _, code := range ctx.Regions {
			if strings.EqualFold(e.Code, code) {
				return true
			}
		}
		pt, ok := ctx.Location()
		if !ok || r == nil {
			return false
		}
		return r.RegionContains(e.Code, pt)

	case EntryShape:
		pt, ok := ctx.Location()
		if !ok || r == nil {
			return false
		}
		return r.ShapeContains(e.Code, pt)

	case EntryCircle:
		pt, ok := ctx.Location()
		if !ok {
			return false
		}
		return Distance(e.Center, pt) <= e.Radius

	default:
		return false
	}
}

// Distance returns the great-circle distance in meters between two lon/lat points.
func Distance(a, b orb.Point) float64 {
	la := s2.LatLngFromDegrees(a.Lat(), a.Lon())
	lb := s2.LatLngFromDegrees(b.Lat(), b.Lon())
	return la.Distance(lb).Radians() * earthRadiusMeters
}

// String renders the entry the way it appears in catalog files.
func (e Entry) String() string {
	switch e.Kind {
	case EntryWorld:
		return WorldCode
	case EntryRegion, EntryShape:
		return e.Code
	case EntryCircle:
		return fmt.Sprintf("[%g,%g,%g]", e.Center.Lon(), e.Center.Lat(), e.Radius)
	default:
		return "?"
	}
}

// MarshalJSON renders the entry in its catalog form.
func (e Entry) MarshalJSON() ([]byte, error) {
	switch e.Kind {
	case EntryCircle:
		return value.List(value.Number(e.Center.Lon()), value.Number(e.Center.Lat()), value.Number(e.Radius)).MarshalJSON()
	default:
		return value.String(e.String()).MarshalJSON()
	}
}
