package ruleengine

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rafaeljc/mimir/internal/locationset"
	"github.com/rafaeljc/mimir/internal/value"
)

// ErrInvalidPreset is returned when a preset document violates the schema.
var ErrInvalidPreset = errors.New("ruleengine: invalid preset")

// DefaultMatchScore is the weight of presets that do not declare one.
const DefaultMatchScore = 1.0

// CompilePresets converts a document mapping preset ids to preset objects
// into typed presets, sorted by id. It must be called on fully merged
// (base + translation) documents.
func CompilePresets(doc value.Value, origin Origin) ([]*Preset, error) {
	if doc.IsNull() {
		return nil, nil
	}
	if !doc.IsMap() {
		return nil, fmt.Errorf("%w: expected object of presets, got %s", ErrInvalidPreset, doc.Kind())
	}

	presets := make([]*Preset, 0, doc.Len())
	for _, id := range doc.Keys() {
		p, err := CompilePreset(id, doc.Get(id), origin)
		if err != nil {
			return nil, fmt.Errorf("failed to compile preset %s: %w", id, err)
		}
		presets = append(presets, p)
	}
	return presets, nil
}

// CompilePreset converts one preset object.
func CompilePreset(id string, doc value.Value, origin Origin) (*Preset, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidPreset)
	}
	if !doc.IsMap() {
		return nil, fmt.Errorf("%w: expected object, got %s", ErrInvalidPreset, doc.Kind())
	}

	tags, err := stringMap(doc.Get("tags"), "tags")
	if err != nil {
		return nil, err
	}

	geometry, err := geometryList(doc.Get("geometry"))
	if err != nil {
		return nil, err
	}

	p := &Preset{
		ID:         id,
		Name:       doc.Get("name").StrOr(""),
		Tags:       tags,
		Geometry:   geometry,
		MatchScore: DefaultMatchScore,
		Searchable: true,
		Icon:       doc.Get("icon").StrOr(""),
		ImageURL:   doc.Get("imageURL").StrOr(""),
		Fields:     doc.Get("fields").StringList(),
		MoreFields: doc.Get("moreFields").StringList(),
		Reference:  doc.Get("reference").StringMap(),
		Origin:     origin,
	}

	if v := doc.Get("matchScore"); !v.IsNull() {
		score, ok := v.Num()
		if !ok || score < 0 {
			return nil, fmt.Errorf("%w: matchScore must be a non-negative number", ErrInvalidPreset)
		}
		p.MatchScore = score
	}

	if v := doc.Get("searchable"); !v.IsNull() {
		searchable, ok := v.BoolVal()
		if !ok {
			return nil, fmt.Errorf("%w: searchable must be a boolean", ErrInvalidPreset)
		}
		p.Searchable = searchable
	}

	if v := doc.Get("addTags"); !v.IsNull() {
		if p.AddTags, err = stringMap(v, "addTags"); err != nil {
			return nil, err
		}
	}
	if v := doc.Get("removeTags"); !v.IsNull() {
		if p.RemoveTags, err = stringMap(v, "removeTags"); err != nil {
			return nil, err
		}
	}

	p.Terms = splitList(doc.Get("terms"), ",")
	p.Aliases = splitList(doc.Get("aliases"), "\n")

	if p.LocationSet, err = locationset.Parse(doc.Get("locationSet")); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPreset, err)
	}

	if err := finalize(p); err != nil {
		return nil, err
	}
	return p, nil
}

// NewPreset validates a programmatically built preset and prepares it for
// matching. A zero MatchScore is replaced by DefaultMatchScore; callers that
// need an explicit zero set it on the returned preset.
func NewPreset(p Preset) (*Preset, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("%w: empty id", ErrInvalidPreset)
	}
	if p.MatchScore == 0 {
		p.MatchScore = DefaultMatchScore
	}
	p.Tags = p.Tags.Clone()
	if p.AddTags != nil {
		p.AddTags = p.AddTags.Clone()
	}
	if p.RemoveTags != nil {
		p.RemoveTags = p.RemoveTags.Clone()
	}
	if err := finalize(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// MustPreset is NewPreset for tests and static tables.
func MustPreset(p Preset) *Preset {
	out, err := NewPreset(p)
	if err != nil {
		panic(err)
	}
	return out
}

// finalize enforces the schema invariants and compiles predicates.
func finalize(p *Preset) error {
	if len(p.Tags) == 0 {
		return fmt.Errorf("%w: %s has no tag predicates", ErrInvalidPreset, p.ID)
	}
	if len(p.Geometry) == 0 {
		return fmt.Errorf("%w: %s has no geometry", ErrInvalidPreset, p.ID)
	}
	for _, g := range p.Geometry {
		if _, err := ParseGeometry(string(g)); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidPreset, p.ID, err)
		}
	}
	for k := range p.Tags {
		if k == "" || k == "*" {
			return fmt.Errorf("%w: %s has an empty tag key", ErrInvalidPreset, p.ID)
		}
	}

	// addTags defaults to tags, removeTags defaults to addTags.
	if p.AddTags == nil {
		p.AddTags = p.Tags
	}
	if p.RemoveTags == nil {
		p.RemoveTags = p.AddTags
	}

	p.predicates = make([]predicate, 0, len(p.Tags))
	for _, k := range p.PredicateKeys() {
		pr := predicate{key: k, value: p.Tags[k]}
		if strings.HasSuffix(k, "*") {
			pr.key = strings.TrimSuffix(k, "*")
			pr.isPrefix = true
		}
		p.predicates = append(p.predicates, pr)
	}

	p.bonus = p.bonus[:0]
	bonusKeys := make([]string, 0, len(p.AddTags))
	for k := range p.AddTags {
		if _, isPredicate := p.Tags[k]; !isPredicate {
			bonusKeys = append(bonusKeys, k)
		}
	}
	sort.Strings(bonusKeys)
	for _, k := range bonusKeys {
		p.bonus = append(p.bonus, predicate{key: k, value: p.AddTags[k]})
	}

	p.search = newSearchText(p)
	return nil
}

func stringMap(v value.Value, field string) (Tags, error) {
	if v.IsNull() {
		return Tags{}, nil
	}
	if !v.IsMap() {
		return nil, fmt.Errorf("%w: %s must be an object", ErrInvalidPreset, field)
	}
	out := make(Tags, v.Len())
	for k, item := range v.Entries() {
		s, ok := item.Str()
		if !ok {
			return nil, fmt.Errorf("%w: %s.%s must be a string", ErrInvalidPreset, field, k)
		}
		out[k] = s
	}
	return out, nil
}

func geometryList(v value.Value) ([]Geometry, error) {
	if !v.IsList() {
		return nil, fmt.Errorf("%w: geometry must be a list", ErrInvalidPreset)
	}
	out := make([]Geometry, 0, v.Len())
	for _, item := range v.Items() {
		s, ok := item.Str()
		if !ok {
			return nil, fmt.Errorf("%w: geometry entries must be strings", ErrInvalidPreset)
		}
		g, err := ParseGeometry(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidPreset, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// splitList accepts either a list of strings or a single string joined by sep.
func splitList(v value.Value, sep string) []string {
	var raw []string
	if s, ok := v.Str(); ok {
		raw = strings.Split(s, sep)
	} else {
		raw = v.StringList()
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
