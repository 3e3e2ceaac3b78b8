package catalog

import (
	"strings"

	"github.com/rafaeljc/mimir/internal/value"
)

// Merge overlays a translation document onto a base document and returns the
// result. Neither input is modified.
//
//   - map + map: recurse key by key; keys only present in the overlay are added.
//   - option list + map: {"options": list, "strings": map}, where an option
//     translated as an object contributes its "title".
//   - list + string: the string is split into a list (comma separated, or
//     newline separated for "aliases").
//   - string + string: the overlay wins unless it is a "<...>" placeholder.
//   - anything else: the overlay wins when present.
func Merge(base, overlay value.Value) value.Value {
	return mergeAt("", base, overlay)
}

func mergeAt(key string, base, overlay value.Value) value.Value {
	switch {
	case overlay.IsNull():
		return base
	case base.IsNull():
		return overlay
	}

	switch {
	case base.IsMap() && overlay.IsMap():
		return mergeMaps(base, overlay)

	case base.IsList() && overlay.IsMap():
		return value.Map(map[string]value.Value{
			"options": base,
			"strings": optionTitles(overlay),
		})

	case base.IsList() && overlay.IsString():
		s, _ := overlay.Str()
		sep := ","
		if key == "aliases" {
			sep = "\n"
		}
		return splitToList(s, sep)

	case base.IsString() && overlay.IsString():
		s, _ := overlay.Str()
		if strings.HasPrefix(s, "<") {
			return base
		}
		return overlay

	default:
		return overlay
	}
}

func mergeMaps(base, overlay value.Value) value.Value {
	out := make(map[string]value.Value, base.Len()+overlay.Len())
	consumed := make(map[string]struct{})

	for k, b := range base.Entries() {
		if k == "strings" && b.IsMap() && !overlay.Has("strings") {
			// Translations describe option strings one level up, next to
			// "label"; fold the matching keys into the base "strings" object.
			sub := make(map[string]value.Value)
			for ok, ov := range overlay.Entries() {
				if b.Has(ok) {
					sub[ok] = ov
					consumed[ok] = struct{}{}
				}
			}
			out[k] = mergeAt(k, b, value.Map(sub))
			continue
		}
		out[k] = mergeAt(k, b, overlay.Get(k))
	}

	for k, o := range overlay.Entries() {
		if _, exists := out[k]; exists {
			continue
		}
		if _, skip := consumed[k]; skip {
			continue
		}
		out[k] = o
	}
	return value.Map(out)
}

// optionTitles flattens translated options to option -> display string.
func optionTitles(v value.Value) value.Value {
	out := make(map[string]value.Value, v.Len())
	for k, item := range v.Entries() {
		switch {
		case item.IsString():
			out[k] = item
		case item.IsMap():
			if title := item.Get("title"); title.IsString() {
				out[k] = title
			}
		}
	}
	return value.Map(out)
}

func splitToList(s, sep string) value.Value {
	parts := strings.Split(s, sep)
	items := make([]value.Value, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			items = append(items, value.String(p))
		}
	}
	return value.List(items...)
}
