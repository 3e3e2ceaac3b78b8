package regions

import (
	"github.com/paulmach/orb"

	"github.com/rafaeljc/mimir/internal/locationset"
)

var _ locationset.Resolver = (*Atlas)(nil)

// Atlas bundles the boundary store and the named shapes so location sets can
// be evaluated against both. Either part may be nil while it is loading, in
// which case lookups against it fail closed.
type Atlas struct {
	Regions *Store
	Shapes  *Shapes
}

// RegionContains implements locationset.Resolver.
func (a *Atlas) RegionContains(code string, pt orb.Point) bool {
	if a == nil {
		return false
	}
	return a.Regions.Contains(code, pt)
}

// ShapeContains implements locationset.Resolver.
func (a *Atlas) ShapeContains(name string, pt orb.Point) bool {
	if a == nil {
		return false
	}
	return a.Shapes.Contains(name, pt)
}

// ContextAt resolves a point into a location context. Without boundaries the
// context only carries the point.
func (a *Atlas) ContextAt(pt orb.Point) locationset.Context {
	if a == nil || a.Regions == nil {
		return locationset.Context{Point: &pt}
	}
	return a.Regions.ContextAt(pt)
}
