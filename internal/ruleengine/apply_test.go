package ruleengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func testAreaKeys() (*AreaKeys, map[string]*Preset) {
	presets := map[string]*Preset{
		"building":    point("building", Tags{"building": "*"}, onlyGeometry(GeometryPoint, GeometryArea)),
		"leisure":     point("leisure", Tags{"leisure": "*"}, onlyGeometry(GeometryPoint, GeometryArea)),
		"leisure/trk": point("leisure/track", Tags{"leisure": "track"}, onlyGeometry(GeometryLine, GeometryArea)),
		"highway":     point("highway", Tags{"highway": "*"}, onlyGeometry(GeometryLine, GeometryArea)),
		"pier":        point("man_made/pier", Tags{"man_made": "pier"}, onlyGeometry(GeometryLine, GeometryArea)),
		"cafe":        point("amenity/cafe", Tags{"amenity": "cafe"}),
		"bakery": point("shop/bakery", Tags{"shop": "bakery"},
			withAddTags(Tags{"shop": "bakery", "bakery": "yes"})),
		"brewery": point("craft/brewery", Tags{"craft": "brewery"},
			withAddTags(Tags{"craft": "brewery", "brewery": "*"})),
		"rest_area": point("highway/rest_area", Tags{"highway": "rest_area"}, onlyGeometry(GeometryPoint, GeometryArea)),
	}
	list := make([]*Preset, 0, len(presets))
	for _, p := range presets {
		list = append(list, p)
	}
	return NewAreaKeys(list), presets
}

func TestAreaKeys(t *testing.T) {
	t.Parallel()

	keys, _ := testAreaKeys()

	assert.True(t, keys.IsAreaKey("building"))
	assert.True(t, keys.IsAreaKey("leisure"))
	assert.False(t, keys.IsAreaKey("highway"), "line keys are never area keys")
	assert.True(t, keys.IsAreaKey("man_made"))

	tests := []struct {
		name   string
		tags   Tags
		closed bool
		want   bool
	}{
		{name: "Should honour explicit area=yes", tags: Tags{"highway": "footway", "area": "yes"}, closed: false, want: true},
		{name: "Should honour explicit area=no", tags: Tags{"building": "yes", "area": "no"}, closed: true, want: false},
		{name: "Should never treat an open way as an area", tags: Tags{"building": "yes"}, closed: false, want: false},
		{name: "Should treat a closed way with an area key as an area", tags: Tags{"building": "yes"}, closed: true, want: true},
		{name: "Should exempt an area key with a line value", tags: Tags{"leisure": "track"}, closed: true, want: false},
		{name: "Should keep a closed line key as a line", tags: Tags{"highway": "residential"}, closed: true, want: false},
		{name: "Should apply the hard-coded exception", tags: Tags{"highway": "rest_area"}, closed: true, want: true},
		{name: "Should handle an untagged closed way", tags: Tags{}, closed: true, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, keys.IsArea(tt.tags, tt.closed))
		})
	}
}

func TestApply(t *testing.T) {
	t.Parallel()

	keys, presets := testAreaKeys()

	tests := []struct {
		name     string
		tags     Tags
		geometry Geometry
		previous *Preset
		preset   *Preset
		defaults map[string]string
		want     Tags
	}{
		{
			name:     "Should drop previous removeTags",
			tags:     Tags{"shop": "bakery", "bakery": "yes", "name": "Joe's"},
			geometry: GeometryPoint,
			previous: presets["bakery"],
			preset:   presets["cafe"],
			want:     Tags{"amenity": "cafe", "name": "Joe's"},
		},
		{
			name:     "Should keep keys re-added by the new preset",
			tags:     Tags{"shop": "bakery", "bakery": "yes"},
			geometry: GeometryPoint,
			previous: presets["bakery"],
			preset:   point("shop/bakery/artisan", Tags{"shop": "bakery"}, withAddTags(Tags{"shop": "bakery", "bakery": "artisan"})),
			want:     Tags{"shop": "bakery", "bakery": "artisan"},
		},
		{
			name:     "Should set wildcard addTags to yes only when absent",
			tags:     Tags{"brewery": "Acme Ale"},
			geometry: GeometryPoint,
			preset:   presets["brewery"],
			want:     Tags{"craft": "brewery", "brewery": "Acme Ale"},
		},
		{
			name:     "Should apply wildcard addTags on an empty feature",
			tags:     Tags{},
			geometry: GeometryPoint,
			preset:   presets["brewery"],
			want:     Tags{"craft": "brewery", "brewery": "yes"},
		},
		{
			name:     "Should fill only gaps with field defaults",
			tags:     Tags{"opening_hours": "24/7"},
			geometry: GeometryPoint,
			preset:   presets["cafe"],
			defaults: map[string]string{"opening_hours": "Mo-Fr 08:00-17:00", "outdoor_seating": "no"},
			want:     Tags{"amenity": "cafe", "opening_hours": "24/7", "outdoor_seating": "no"},
		},
		{
			name:     "Should add area=yes for a line-capable preset on an area",
			tags:     Tags{},
			geometry: GeometryArea,
			preset:   presets["pier"],
			want:     Tags{"man_made": "pier", "area": "yes"},
		},
		{
			name:     "Should add no area tag for an area key preset",
			tags:     Tags{},
			geometry: GeometryArea,
			preset:   presets["building"],
			want:     Tags{"building": "yes"},
		},
		{
			name:     "Should drop empty values",
			tags:     Tags{"note": "", "name": "X"},
			geometry: GeometryPoint,
			preset:   presets["cafe"],
			want:     Tags{"amenity": "cafe", "name": "X"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			before := tt.tags.Clone()

			// Act
			got := Apply(tt.tags, tt.geometry, tt.previous, tt.preset, tt.defaults, keys)

			// Assert
			assert.Equal(t, tt.want, got)
			assert.Equal(t, before, tt.tags, "input must not be mutated")
		})
	}
}

func TestUnapply(t *testing.T) {
	t.Parallel()

	_, presets := testAreaKeys()

	got := Unapply(Tags{"shop": "bakery", "bakery": "yes", "name": "Joe's"}, presets["bakery"])

	assert.Equal(t, Tags{"name": "Joe's"}, got)
}
