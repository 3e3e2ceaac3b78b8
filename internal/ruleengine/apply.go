package ruleengine

// Apply returns a copy of tags updated for choosing preset p. previous is the
// preset that matched the feature before the change (may be nil); its
// removeTags are dropped unless p adds them back. defaults holds the default
// values of p's fields for the geometry.
func Apply(tags Tags, g Geometry, previous, p *Preset, defaults map[string]string, areaKeys *AreaKeys) Tags {
	out := tags.Clone()

	if previous != nil {
		for k := range previous.RemoveTags {
			if _, keep := p.AddTags[k]; keep {
				continue
			}
			delete(out, k)
		}
	}

	for k, v := range p.AddTags {
		if v == wildcard {
			if _, ok := out[k]; !ok {
				out[k] = "yes"
			}
			continue
		}
		out[k] = v
	}

	for k, v := range defaults {
		if _, ok := out[k]; !ok {
			out[k] = v
		}
	}

	if areaKeys.NeedsAreaTag(g, p) {
		out["area"] = "yes"
	}

	for k, v := range out {
		if v == "" {
			delete(out, k)
		}
	}
	return out
}

// Unapply removes the tags p would remove, for when a feature is reset to
// an untagged state.
func Unapply(tags Tags, p *Preset) Tags {
	out := tags.Clone()
	for k := range p.RemoveTags {
		delete(out, k)
	}
	return out
}
