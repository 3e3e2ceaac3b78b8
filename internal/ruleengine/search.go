package ruleengine

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/rafaeljc/mimir/internal/locationset"
)

// Search ranks, best first.
const (
	rankNamePrefix     = 10
	rankAliasPrefix    = 9
	rankTermPrefix     = 8
	rankIDPrefix       = 7
	rankNameInternal   = 6
	rankAliasInternal  = 5
	rankTermInternal   = 4
	rankIDInternal     = 3
	defaultSearchLimit = 50
)

// searchText caches folded copies of the searchable strings of a preset.
type searchText struct {
	name    string
	aliases []string
	terms   []string
	id      string
}

func newSearchText(p *Preset) searchText {
	st := searchText{
		name: Fold(p.Name),
		id:   Fold(p.ID),
	}
	for _, a := range p.Aliases {
		st.aliases = append(st.aliases, Fold(a))
	}
	for _, t := range p.Terms {
		st.terms = append(st.terms, Fold(t))
	}
	return st
}

// Fold lowercases s and strips diacritics so that "Café" matches "cafe".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, s)
	if err != nil {
		stripped = s
	}
	return cases.Fold().String(stripped)
}

// SearchRank rates how well query matches the preset's name, aliases, terms
// or id. Zero means no match. The query must already be folded.
func (p *Preset) SearchRank(folded string, g Geometry) int {
	if folded == "" || !p.HasGeometry(g) {
		return 0
	}
	if r := rankIn(p.search.name, folded, rankNamePrefix, rankNameInternal); r > 0 {
		return r
	}
	for _, a := range p.search.aliases {
		if r := rankIn(a, folded, rankAliasPrefix, rankAliasInternal); r > 0 {
			return r
		}
	}
	for _, t := range p.search.terms {
		if r := rankIn(t, folded, rankTermPrefix, rankTermInternal); r > 0 {
			return r
		}
	}
	return rankIn(p.search.id, folded, rankIDPrefix, rankIDInternal)
}

func rankIn(haystack, needle string, prefix, internal int) int {
	switch i := strings.Index(haystack, needle); {
	case i == 0:
		return prefix
	case i > 0:
		return internal
	default:
		return 0
	}
}

// SearchOptions narrows a text search.
type SearchOptions struct {
	Geometry Geometry
	Location locationset.Context
	Resolver locationset.Resolver
	// Limit caps the number of results; zero means the default of 50.
	Limit int
}

// Search returns the searchable presets matching query, best first. Ties are
// broken by origin (base before custom before supplementary), then by name
// and id.
func Search(presets []*Preset, query string, opts SearchOptions) []*Preset {
	folded := Fold(strings.TrimSpace(query))
	if folded == "" {
		return nil
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}

	type hit struct {
		p    *Preset
		rank int
	}
	var hits []hit
	for _, p := range presets {
		if !p.Searchable {
			continue
		}
		rank := p.SearchRank(folded, opts.Geometry)
		if rank == 0 {
			continue
		}
		if !p.LocationSet.Overlaps(opts.Location, opts.Resolver) {
			continue
		}
		hits = append(hits, hit{p: p, rank: rank})
	}

	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.rank != b.rank {
			return a.rank > b.rank
		}
		if oa, ob := originOrder(a.p.Origin), originOrder(b.p.Origin); oa != ob {
			return oa < ob
		}
		if a.p.Name != b.p.Name {
			return a.p.Name < b.p.Name
		}
		return a.p.ID < b.p.ID
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]*Preset, len(hits))
	for i, h := range hits {
		out[i] = h.p
	}
	return out
}

func originOrder(o Origin) int {
	switch o {
	case OriginBase:
		return 0
	case OriginCustom:
		return 1
	default:
		return 2
	}
}
