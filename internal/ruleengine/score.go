package ruleengine

import (
	"sort"
	"strings"
)

const (
	// areaBonus is added for a missing area=yes predicate on area geometry.
	areaBonus = 0.1

	// nonSearchableFactor slightly lowers hidden presets so that a searchable
	// preset with an identical score wins.
	nonSearchableFactor = 0.999

	wildcard = "*"
)

// Score rates how well the preset describes a feature with the given tags
// and geometry. Zero means no match.
func (p *Preset) Score(tags Tags, g Geometry) float64 {
	if !p.HasGeometry(g) {
		return 0
	}

	score := 1.0
	for _, pr := range p.predicates {
		found, equal := pr.resolve(tags)
		switch {
		case !found:
			if g == GeometryArea && !pr.isPrefix && pr.key == "area" && pr.value == "yes" {
				score += areaBonus
				continue
			}
			return 0
		case equal:
			score += p.MatchScore
		case pr.value == wildcard:
			score += p.MatchScore / 2
		default:
			return 0
		}
	}

	for _, b := range p.bonus {
		if v, ok := tags[b.key]; ok && v == b.value {
			score += p.MatchScore
		}
	}

	if !p.Searchable {
		score *= nonSearchableFactor
	}
	return score
}

// resolve finds the tag a predicate refers to. For wildcard keys every tag
// with the prefix is considered and any equal value counts as equal.
func (pr predicate) resolve(tags Tags) (found, equal bool) {
	if !pr.isPrefix {
		v, ok := tags[pr.key]
		return ok, ok && v == pr.value
	}

	keys := make([]string, 0, 2)
	for k := range tags {
		if strings.HasPrefix(k, pr.key) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		found = true
		if tags[k] == pr.value {
			return true, true
		}
	}
	return found, false
}
