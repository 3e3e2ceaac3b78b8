package ruleengine

import (
	"github.com/rafaeljc/mimir/internal/locationset"
)

// Match is the outcome of a best-match query.
type Match struct {
	Preset *Preset
	Score  float64
}

// BestMatch returns the highest scoring preset for the feature, or a nil
// Preset when nothing scores above zero.
//
// Presets whose location set does not overlap loc are skipped before scoring.
// On exact score ties the preset with the lexicographically smaller id wins,
// so the result does not depend on index iteration order. A nil resolver
// makes polygon location entries fail closed.
func BestMatch(idx *TagIndex, tags Tags, g Geometry, loc locationset.Context, r locationset.Resolver) Match {
	var best Match
	if idx == nil {
		return best
	}

	idx.Candidates(tags, func(p *Preset) {
		if !p.HasGeometry(g) {
			return
		}
		if !p.LocationSet.Overlaps(loc, r) {
			return
		}
		score := p.Score(tags, g)
		if score <= 0 {
			return
		}
		if score < best.Score {
			return
		}
		if score == best.Score && best.Preset != nil && p.ID >= best.Preset.ID {
			return
		}
		best = Match{Preset: p, Score: score}
	})
	return best
}
