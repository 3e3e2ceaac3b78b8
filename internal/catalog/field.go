package catalog

import (
	"fmt"
	"strings"

	"github.com/rafaeljc/mimir/internal/locationset"
	"github.com/rafaeljc/mimir/internal/ruleengine"
	"github.com/rafaeljc/mimir/internal/value"
)

// Field describes one data-entry control referenced by presets.
type Field struct {
	ID          string                `json:"id"`
	Key         string                `json:"key,omitempty"`
	Keys        []string              `json:"keys,omitempty"`
	Type        string                `json:"type"`
	Label       string                `json:"label,omitempty"`
	Placeholder string                `json:"placeholder,omitempty"`
	Default     string                `json:"default,omitempty"`
	Options     []string              `json:"options,omitempty"`
	Strings     map[string]string     `json:"strings,omitempty"`
	Geometry    []ruleengine.Geometry `json:"geometry,omitempty"`
	Universal   bool                  `json:"universal,omitempty"`
	Terms       []string              `json:"terms,omitempty"`
	Reference   map[string]string     `json:"reference,omitempty"`
	LocationSet *locationset.Set      `json:"locationSet,omitempty"`

	stringsRef string
}

// AppliesTo reports whether the field is shown for geometry g.
func (f *Field) AppliesTo(g ruleengine.Geometry) bool {
	if len(f.Geometry) == 0 {
		return true
	}
	for _, fg := range f.Geometry {
		if fg == g {
			return true
		}
	}
	return false
}

// usageChangeset marks fields that only apply to changeset tags.
const usageChangeset = "changeset"

// parseField converts one merged field object. It returns nil, nil for
// fields that are not relevant to features.
func parseField(id string, v value.Value) (*Field, error) {
	if !v.IsMap() {
		return nil, fmt.Errorf("field %s: expected object, got %s", id, v.Kind())
	}
	typ, ok := v.Get("type").Str()
	if !ok || typ == "" {
		return nil, fmt.Errorf("field %s: missing type", id)
	}
	if v.Get("usage").StrOr("") == usageChangeset {
		return nil, nil
	}

	f := &Field{
		ID:          id,
		Key:         v.Get("key").StrOr(""),
		Keys:        v.Get("keys").StringList(),
		Type:        typ,
		Label:       v.Get("label").StrOr(""),
		Placeholder: v.Get("placeholder").StrOr(""),
		Default:     v.Get("default").StrOr(""),
		Reference:   v.Get("reference").StringMap(),
		stringsRef:  crossRef(v.Get("stringsCrossReference").StrOr("")),
	}
	if u, ok := v.Get("universal").BoolVal(); ok {
		f.Universal = u
	}

	if terms, ok := v.Get("terms").Str(); ok {
		for _, t := range strings.Split(terms, ",") {
			if t = strings.TrimSpace(t); t != "" {
				f.Terms = append(f.Terms, t)
			}
		}
	} else {
		f.Terms = v.Get("terms").StringList()
	}

	for _, g := range v.Get("geometry").StringList() {
		geom, err := ruleengine.ParseGeometry(g)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", id, err)
		}
		f.Geometry = append(f.Geometry, geom)
	}

	// Options arrive either as a plain list, or as {options, strings} after
	// a translation was merged over the list.
	opts := v.Get("options")
	switch {
	case opts.IsList():
		f.Options = opts.StringList()
	case opts.IsMap():
		f.Options = opts.Get("options").StringList()
		f.Strings = titles(opts.Get("strings"))
	}
	if s := titles(v.Path("strings", "options")); len(s) > 0 {
		if f.Strings == nil {
			f.Strings = s
		} else {
			for k, t := range s {
				if _, exists := f.Strings[k]; !exists {
					f.Strings[k] = t
				}
			}
		}
	}
	if len(f.Options) == 0 && len(f.Strings) > 0 {
		f.Options = sortedKeys(f.Strings)
	}

	ls, err := locationset.Parse(v.Get("locationSet"))
	if err != nil {
		return nil, fmt.Errorf("field %s: %w", id, err)
	}
	f.LocationSet = ls
	return f, nil
}

// titles flattens option strings, which may be plain strings or objects
// carrying a "title".
func titles(v value.Value) map[string]string {
	if !v.IsMap() {
		return nil
	}
	out := make(map[string]string, v.Len())
	for k, item := range v.Entries() {
		if s, ok := item.Str(); ok {
			out[k] = s
			continue
		}
		if s, ok := item.Get("title").Str(); ok {
			out[k] = s
		}
	}
	return out
}

// crossRef extracts "other" from "{other}".
func crossRef(s string) string {
	if len(s) > 2 && strings.HasPrefix(s, "{") && strings.HasSuffix(s, "}") {
		return s[1 : len(s)-1]
	}
	return ""
}

// maxRedirects bounds "{other}" chains so that a cycle cannot hang a load.
const maxRedirects = 8

// resolveFieldRefs replaces "{other}" labels, placeholders and strings with
// the values of the referenced field.
func resolveFieldRefs(fields map[string]*Field) {
	follow := func(start *Field, next func(*Field) string) *Field {
		f := start
		for i := 0; i < maxRedirects; i++ {
			ref := next(f)
			if ref == "" {
				return f
			}
			target, ok := fields[ref]
			if !ok || target == start {
				return f
			}
			f = target
		}
		return f
	}

	type resolved struct {
		label, placeholder string
		strings            map[string]string
		options            []string
	}
	out := make(map[string]resolved, len(fields))
	for id, f := range fields {
		r := resolved{label: f.Label, placeholder: f.Placeholder, strings: f.Strings, options: f.Options}
		if crossRef(f.Label) != "" {
			r.label = follow(f, func(x *Field) string { return crossRef(x.Label) }).Label
		}
		if crossRef(f.Placeholder) != "" {
			r.placeholder = follow(f, func(x *Field) string { return crossRef(x.Placeholder) }).Placeholder
		}
		if f.stringsRef != "" {
			src := follow(f, func(x *Field) string { return x.stringsRef })
			r.strings = src.Strings
			if len(r.options) == 0 {
				r.options = src.Options
			}
		}
		out[id] = r
	}
	for id, r := range out {
		f := fields[id]
		if crossRef(r.label) != "" {
			r.label = ""
		}
		if crossRef(r.placeholder) != "" {
			r.placeholder = ""
		}
		f.Label, f.Placeholder, f.Strings, f.Options = r.label, r.placeholder, r.strings, r.options
	}
}
