package ruleengine

import (
	"sort"
)

// catchAllKey holds presets none of whose predicate keys is a known key.
const catchAllKey = ""

// TagIndex maps tag keys to the presets that reference them. It is immutable
// once built; updates produce a new index.
type TagIndex struct {
	known   map[string]struct{}
	buckets map[string][]*Preset
	size    int
}

// KnownKeys returns the distinct top-level id segments of the base presets
// ("amenity", "shop", ...).
func KnownKeys(base []*Preset) map[string]struct{} {
	known := make(map[string]struct{})
	for _, p := range base {
		known[TopLevelKey(p.ID)] = struct{}{}
	}
	return known
}

// NewIndex builds an index whose known keys derive from base and which
// covers base plus every extra list (custom, supplementary).
func NewIndex(base []*Preset, extra ...[]*Preset) *TagIndex {
	idx := &TagIndex{
		known:   KnownKeys(base),
		buckets: make(map[string][]*Preset),
	}
	for _, list := range append([][]*Preset{base}, extra...) {
		for _, p := range list {
			idx.add(p)
		}
	}
	for k := range idx.buckets {
		sortBucket(idx.buckets[k])
	}
	return idx
}

func (idx *TagIndex) add(p *Preset) {
	for _, k := range idx.bucketKeys(p) {
		idx.buckets[k] = append(idx.buckets[k], p)
	}
	idx.size++
}

// bucketKeys lists the buckets p belongs in.
func (idx *TagIndex) bucketKeys(p *Preset) []string {
	var keys []string
	for _, k := range p.PredicateKeys() {
		if _, ok := idx.known[k]; ok {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		keys = []string{catchAllKey}
	}
	return keys
}

// Replace returns a copy of the index with the old presets removed and the
// new ones added. Only the affected buckets are copied, so swapping a handful
// of custom presets stays cheap even on very large indexes.
func (idx *TagIndex) Replace(old, added []*Preset) *TagIndex {
	next := &TagIndex{
		known:   idx.known,
		buckets: make(map[string][]*Preset, len(idx.buckets)),
		size:    idx.size,
	}
	for k, b := range idx.buckets {
		next.buckets[k] = b
	}

	touched := make(map[string]struct{})
	removed := make(map[*Preset]struct{}, len(old))
	for _, p := range old {
		removed[p] = struct{}{}
		for _, k := range idx.bucketKeys(p) {
			touched[k] = struct{}{}
		}
	}
	for _, p := range added {
		for _, k := range idx.bucketKeys(p) {
			touched[k] = struct{}{}
		}
	}

	for k := range touched {
		src := idx.buckets[k]
		dst := make([]*Preset, 0, len(src)+len(added))
		for _, p := range src {
			if _, drop := removed[p]; !drop {
				dst = append(dst, p)
			}
		}
		next.buckets[k] = dst
	}

	for _, p := range old {
		if idx.contains(p) {
			next.size--
		}
	}
	for _, p := range added {
		for _, k := range next.bucketKeys(p) {
			next.buckets[k] = append(next.buckets[k], p)
		}
		next.size++
	}

	for k := range touched {
		if len(next.buckets[k]) == 0 {
			delete(next.buckets, k)
			continue
		}
		sortBucket(next.buckets[k])
	}
	return next
}

func (idx *TagIndex) contains(p *Preset) bool {
	for _, k := range idx.bucketKeys(p) {
		for _, q := range idx.buckets[k] {
			if q == p {
				return true
			}
		}
	}
	return false
}

// Candidates calls fn for every preset in the buckets of the tag keys plus
// the catch-all bucket. A preset may be visited more than once.
func (idx *TagIndex) Candidates(tags Tags, fn func(*Preset)) {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		if k != catchAllKey {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		for _, p := range idx.buckets[k] {
			fn(p)
		}
	}
	for _, p := range idx.buckets[catchAllKey] {
		fn(p)
	}
}

// Bucket returns the presets indexed under key. Use "" for the catch-all.
func (idx *TagIndex) Bucket(key string) []*Preset {
	return idx.buckets[key]
}

// IsKnownKey reports whether key gets its own bucket.
func (idx *TagIndex) IsKnownKey(key string) bool {
	_, ok := idx.known[key]
	return ok
}

// Len returns the number of indexed presets.
func (idx *TagIndex) Len() int {
	if idx == nil {
		return 0
	}
	return idx.size
}

func sortBucket(b []*Preset) {
	sort.SliceStable(b, func(i, j int) bool { return b[i].ID < b[j].ID })
}
