package ruleengine

// lineKeys imply linear features and never make a key an area key.
var lineKeys = map[string]struct{}{
	"barrier":         {},
	"highway":         {},
	"footway":         {},
	"railway":         {},
	"junction":        {},
	"traffic_calming": {},
	"type":            {},
}

// areaExceptions are tags that are areas even though their key is not.
var areaExceptions = map[string]map[string]struct{}{
	"highway":          {"elevator": {}, "rest_area": {}, "services": {}},
	"public_transport": {"platform": {}},
	"railway":          {"platform": {}, "roundhouse": {}, "station": {}, "traverser": {}, "turntable": {}, "wash": {}},
	"traffic_calming":  {"island": {}},
	"waterway":         {"dam": {}},
}

// AreaKeys knows which tag keys imply a closed way is an area, with the values
// that make an exception because they are also valid on lines.
type AreaKeys struct {
	keys map[string]map[string]struct{}
}

// NewAreaKeys derives the area keys from the base presets: single-tag area
// presets nominate their key, and line presets' addTags contribute the
// values that exempt a way.
func NewAreaKeys(presets []*Preset) *AreaKeys {
	keys := make(map[string]map[string]struct{})

	for _, p := range presets {
		if len(p.Tags) != 1 {
			continue
		}
		for k := range p.Tags {
			if _, skip := lineKeys[k]; skip {
				continue
			}
			if p.HasGeometry(GeometryArea) {
				if keys[k] == nil {
					keys[k] = make(map[string]struct{})
				}
			}
		}
	}

	for _, p := range presets {
		if !p.HasGeometry(GeometryLine) {
			continue
		}
		for k, v := range p.AddTags {
			if exempt, ok := keys[k]; ok && v != wildcard {
				exempt[v] = struct{}{}
			}
		}
	}
	return &AreaKeys{keys: keys}
}

// IsAreaKey reports whether key is an area key.
func (a *AreaKeys) IsAreaKey(key string) bool {
	if a == nil {
		return false
	}
	_, ok := a.keys[key]
	return ok
}

// IsArea reports whether a way with these tags should be treated as an area.
func (a *AreaKeys) IsArea(tags Tags, closed bool) bool {
	if v, ok := tags["area"]; ok {
		switch v {
		case "yes", "true", "1":
			return true
		case "no", "false", "0":
			return false
		}
	}
	if !closed {
		return false
	}
	if len(tags) == 0 {
		return true
	}
	for k, v := range tags {
		if a != nil {
			if exempt, ok := a.keys[k]; ok {
				if _, isException := exempt[v]; !isException {
					return true
				}
			}
		}
		if _, ok := areaExceptions[k][v]; ok {
			return true
		}
	}
	return false
}

// NeedsAreaTag reports whether applying p to an area must add area=yes.
// That is the case when p could also be a line, or when none of p's tags
// imply an area on their own.
func (a *AreaKeys) NeedsAreaTag(g Geometry, p *Preset) bool {
	if g != GeometryArea {
		return false
	}
	if _, ok := p.AddTags["area"]; ok {
		return false
	}
	for k, v := range p.AddTags {
		if !p.HasGeometry(GeometryLine) && a.IsAreaKey(k) {
			return false
		}
		if _, ok := areaExceptions[k][v]; ok {
			return false
		}
	}
	return true
}
