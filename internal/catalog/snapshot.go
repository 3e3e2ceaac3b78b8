package catalog

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/rafaeljc/mimir/internal/ruleengine"
)

// ErrCorruptCatalog is returned when the bundled base data is malformed.
// It indicates a broken build and callers must treat it as fatal.
var ErrCorruptCatalog = errors.New("catalog: corrupt base data")

// Category is a named group of presets shown together in the picker.
type Category struct {
	ID       string                `json:"id"`
	Name     string                `json:"name"`
	Icon     string                `json:"icon,omitempty"`
	Geometry []ruleengine.Geometry `json:"geometry,omitempty"`
	Members  []string              `json:"members"`
}

// AddressFormat lists address keys line by line for a set of countries.
// The format without country codes is the fallback.
type AddressFormat struct {
	CountryCodes []string   `json:"countryCodes,omitempty"`
	Format       [][]string `json:"format"`
}

// LocalizedStrings holds common words in the snapshot's language.
type LocalizedStrings struct {
	Yes     string `json:"yes"`
	No      string `json:"no"`
	Unknown string `json:"unknown"`
}

// Snapshot is one immutable, fully merged version of the catalog for a
// locale. All accessors are safe for concurrent use.
type Snapshot struct {
	locale         string
	presets        map[string]*ruleengine.Preset
	sorted         []*ruleengine.Preset
	categories     map[string]*Category
	fields         map[string]*Field
	universal      []*Field
	addressFormats []AddressFormat
	defaults       map[ruleengine.Geometry][]string
	strings        LocalizedStrings
	areaKeys       *ruleengine.AreaKeys
	fingerprint    string
}

// NewSnapshot builds a snapshot from already compiled presets with no
// categories, fields or address formats.
func NewSnapshot(locale string, presets []*ruleengine.Preset) (*Snapshot, error) {
	return newSnapshot(locale, presets, nil, nil, nil, nil)
}

func newSnapshot(
	locale string,
	presets []*ruleengine.Preset,
	categories map[string]*Category,
	fields map[string]*Field,
	formats []AddressFormat,
	defaults map[ruleengine.Geometry][]string,
) (*Snapshot, error) {
	s := &Snapshot{
		locale:         locale,
		presets:        make(map[string]*ruleengine.Preset, len(presets)),
		categories:     categories,
		fields:         fields,
		addressFormats: formats,
		defaults:       defaults,
	}
	if s.categories == nil {
		s.categories = map[string]*Category{}
	}
	if s.fields == nil {
		s.fields = map[string]*Field{}
	}

	for _, p := range presets {
		if _, dup := s.presets[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate preset id %s", ErrCorruptCatalog, p.ID)
		}
		s.presets[p.ID] = p
	}
	s.sorted = make([]*ruleengine.Preset, 0, len(s.presets))
	for _, p := range s.presets {
		s.sorted = append(s.sorted, p)
	}
	sort.Slice(s.sorted, func(i, j int) bool { return s.sorted[i].ID < s.sorted[j].ID })

	for _, c := range s.categories {
		for _, m := range c.Members {
			if _, ok := s.presets[m]; !ok {
				return nil, fmt.Errorf("%w: category %s references unknown preset %s", ErrCorruptCatalog, c.ID, m)
			}
		}
	}

	for _, id := range sortedKeys(s.fields) {
		if f := s.fields[id]; f.Universal {
			s.universal = append(s.universal, f)
		}
	}

	s.strings = LocalizedStrings{Yes: "Yes", No: "No", Unknown: "Unknown"}
	if f, ok := s.fields["internet_access"]; ok {
		if v := f.Strings["yes"]; v != "" {
			s.strings.Yes = v
		}
		if v := f.Strings["no"]; v != "" {
			s.strings.No = v
		}
	}
	if f, ok := s.fields["opening_hours"]; ok && f.Placeholder != "" {
		s.strings.Unknown = f.Placeholder
	}

	s.areaKeys = ruleengine.NewAreaKeys(s.sorted)
	s.fingerprint = fingerprint(locale, s.sorted)
	return s, nil
}

// fingerprint hashes the locale and the sorted preset ids and names so that
// clients can cache responses per snapshot.
func fingerprint(locale string, presets []*ruleengine.Preset) string {
	h := murmur3.New64()
	_, _ = h.Write([]byte(locale))
	var sep [1]byte
	for _, p := range presets {
		_, _ = h.Write(sep[:])
		_, _ = h.Write([]byte(p.ID))
		_, _ = h.Write(sep[:])
		_, _ = h.Write([]byte(p.Name))
	}
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(presets)))
	_, _ = h.Write(n[:])
	return strconv.FormatUint(h.Sum64(), 16)
}

// Locale returns the locale the snapshot was merged for.
func (s *Snapshot) Locale() string { return s.locale }

// Fingerprint identifies the snapshot's content.
func (s *Snapshot) Fingerprint() string { return s.fingerprint }

// Strings returns the localized common words.
func (s *Snapshot) Strings() LocalizedStrings { return s.strings }

// AreaKeys returns the area keys derived from this snapshot's presets.
func (s *Snapshot) AreaKeys() *ruleengine.AreaKeys { return s.areaKeys }

// Len returns the number of presets.
func (s *Snapshot) Len() int { return len(s.sorted) }

// Preset returns the preset with the given id.
func (s *Snapshot) Preset(id string) (*ruleengine.Preset, bool) {
	p, ok := s.presets[id]
	return p, ok
}

// Presets returns every preset sorted by id. The slice must not be modified.
func (s *Snapshot) Presets() []*ruleengine.Preset { return s.sorted }

// Category returns the category with the given id.
func (s *Snapshot) Category(id string) (*Category, bool) {
	c, ok := s.categories[id]
	return c, ok
}

// Categories returns every category sorted by id.
func (s *Snapshot) Categories() []*Category {
	out := make([]*Category, 0, len(s.categories))
	for _, id := range sortedKeys(s.categories) {
		out = append(out, s.categories[id])
	}
	return out
}

// PresetsInCategory resolves the members of a category in declaration order.
func (s *Snapshot) PresetsInCategory(id string) ([]*ruleengine.Preset, bool) {
	c, ok := s.categories[id]
	if !ok {
		return nil, false
	}
	out := make([]*ruleengine.Preset, 0, len(c.Members))
	for _, m := range c.Members {
		out = append(out, s.presets[m])
	}
	return out, true
}

// Field returns the field with the given name.
func (s *Snapshot) Field(name string) (*Field, bool) {
	f, ok := s.fields[name]
	return f, ok
}

// UniversalFields returns the fields offered for every preset.
func (s *Snapshot) UniversalFields() []*Field { return s.universal }

// AddressFormat returns the address layout for a country, falling back to
// the format that lists no countries.
func (s *Snapshot) AddressFormat(countryCode string) (AddressFormat, bool) {
	var fallback *AddressFormat
	for i := range s.addressFormats {
		f := &s.addressFormats[i]
		if len(f.CountryCodes) == 0 {
			if fallback == nil {
				fallback = f
			}
			continue
		}
		for _, cc := range f.CountryCodes {
			if strings.EqualFold(cc, countryCode) {
				return *f, true
			}
		}
	}
	if fallback != nil {
		return *fallback, true
	}
	return AddressFormat{}, false
}

// Defaults returns the preset and category ids offered for an untagged
// feature of geometry g.
func (s *Snapshot) Defaults(g ruleengine.Geometry) []string {
	return s.defaults[g]
}

// Inherited walks from id up the parent chain and returns the first value
// get accepts.
func Inherited[T any](s *Snapshot, id string, get func(*ruleengine.Preset) (T, bool)) (T, bool) {
	for cur, ok := id, true; ok; cur, ok = ruleengine.ParentID(cur) {
		if p, found := s.presets[cur]; found {
			if v, accepted := get(p); accepted {
				return v, true
			}
		}
	}
	var zero T
	return zero, false
}

// Icon returns the preset's icon, inherited from its ancestors if unset.
func (s *Snapshot) Icon(id string) string {
	icon, _ := Inherited(s, id, func(p *ruleengine.Preset) (string, bool) {
		return p.Icon, p.Icon != ""
	})
	return icon
}

// FieldsFor returns the fields of a preset, or its "more" fields when more is
// true. Presets without their own list inherit their parent's, and
// "{other/preset}" entries expand to that preset's list. More fields also
// include the universal fields. Unknown field names are skipped.
func (s *Snapshot) FieldsFor(id string, more bool) []*Field {
	list := func(p *ruleengine.Preset) []string {
		if more {
			return p.MoreFields
		}
		return p.Fields
	}

	seen := make(map[string]struct{})
	var out []*Field
	var expand func(presetID string, depth int)
	expand = func(presetID string, depth int) {
		if depth > maxRedirects {
			return
		}
		names, _ := Inherited(s, presetID, func(p *ruleengine.Preset) ([]string, bool) {
			l := list(p)
			return l, l != nil
		})
		for _, name := range names {
			if ref := crossRef(name); ref != "" {
				expand(ref, depth+1)
				continue
			}
			if _, dup := seen[name]; dup {
				continue
			}
			if f, ok := s.fields[name]; ok {
				seen[name] = struct{}{}
				out = append(out, f)
			}
		}
	}
	expand(id, 0)

	if more {
		for _, f := range s.universal {
			if _, dup := seen[f.ID]; !dup {
				seen[f.ID] = struct{}{}
				out = append(out, f)
			}
		}
	}
	return out
}

// DefaultValues collects the defaults of the preset's fields (including more
// fields) that apply to geometry g, keyed by tag key.
func (s *Snapshot) DefaultValues(id string, g ruleengine.Geometry) map[string]string {
	out := make(map[string]string)
	for _, f := range append(s.FieldsFor(id, false), s.FieldsFor(id, true)...) {
		if f.Default == "" || f.Key == "" || !f.AppliesTo(g) {
			continue
		}
		if _, exists := out[f.Key]; !exists {
			out[f.Key] = f.Default
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
