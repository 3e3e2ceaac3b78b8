package regions

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

type shape struct {
	geometry orb.Geometry
	bound    orb.Bound
}

// Shapes holds the custom polygons referenced by "<name>.geojson" location
// set entries, keyed by lowercase name.
type Shapes struct {
	byName map[string]shape
}

// LoadShapes parses a FeatureCollection whose features are identified by
// their "id" (feature id or property) such as "philly_metro.geojson".
func LoadShapes(r io.Reader) (*Shapes, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read shapes: %v", ErrCorruptBoundaries, err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: shapes: %v", ErrCorruptBoundaries, err)
	}

	s := &Shapes{byName: make(map[string]shape, len(fc.Features))}
	for i, f := range fc.Features {
		name := firstNonEmpty(stringProp(f.Properties, "id"), rawID(f.ID))
		if name == "" {
			return nil, fmt.Errorf("%w: shape %d has no id", ErrCorruptBoundaries, i)
		}
		if f.Geometry == nil {
			return nil, fmt.Errorf("%w: shape %s has no geometry", ErrCorruptBoundaries, name)
		}
		s.byName[strings.ToLower(name)] = shape{geometry: f.Geometry, bound: f.Geometry.Bound()}
	}
	return s, nil
}

func rawID(id interface{}) string {
	if s, ok := id.(string); ok {
		return s
	}
	return ""
}

// Contains reports whether the named shape contains pt. Unknown names never
// contain anything.
func (s *Shapes) Contains(name string, pt orb.Point) bool {
	if s == nil {
		return false
	}
	sh, ok := s.byName[strings.ToLower(name)]
	if !ok || !sh.bound.Contains(pt) {
		return false
	}
	if geometryContains(sh.geometry, pt) {
		return true
	}
	// Some shapes are published as a collection of polygons.
	if coll, ok := sh.geometry.(orb.Collection); ok {
		for _, g := range coll {
			if geometryContains(g, pt) {
				return true
			}
		}
	}
	return false
}

// Names returns the known shape names in sorted order.
func (s *Shapes) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.byName))
	for n := range s.byName {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
