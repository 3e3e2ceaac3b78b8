package catalog

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/mimir/internal/ruleengine"
)

func loadFixture(t *testing.T, locale string) *Snapshot {
	t.Helper()
	loader, _ := newTestLoader(t)
	snap, err := loader.Load(context.Background(), locale)
	require.NoError(t, err, "test setup failed: fixture catalog did not load")
	return snap
}

func fieldIDs(fields []*Field) []string {
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		out = append(out, f.ID)
	}
	return out
}

func TestSnapshot_Accessors(t *testing.T) {
	t.Parallel()

	snap := loadFixture(t, "en")

	t.Run("Should sort presets by id", func(t *testing.T) {
		presets := snap.Presets()
		require.NotEmpty(t, presets)
		for i := 1; i < len(presets); i++ {
			assert.Less(t, presets[i-1].ID, presets[i].ID)
		}
	})

	t.Run("Should keep category members in declaration order", func(t *testing.T) {
		members, ok := snap.PresetsInCategory("category-food")
		require.True(t, ok)
		ids := make([]string, 0, len(members))
		for _, p := range members {
			ids = append(ids, p.ID)
		}
		assert.Equal(t, []string{"amenity/cafe", "amenity/restaurant", "shop/bakery"}, ids)

		_, ok = snap.PresetsInCategory("category-nope")
		assert.False(t, ok)
	})

	t.Run("Should take field option strings from the translation", func(t *testing.T) {
		f, ok := snap.Field("internet_access")
		require.True(t, ok)
		assert.Equal(t, "Internet Access", f.Label)
		assert.Equal(t, map[string]string{"yes": "Yes", "no": "No", "wlan": "Wi-Fi"}, f.Strings)
		assert.Equal(t, []string{"no", "wlan", "yes"}, f.Options)
	})

	t.Run("Should resolve field cross references", func(t *testing.T) {
		f, ok := snap.Field("wifi")
		require.True(t, ok)
		assert.Equal(t, "Internet Access", f.Label)
		assert.Equal(t, "Wi-Fi", f.Strings["wlan"])
	})

	t.Run("Should find address formats by country with fallback", func(t *testing.T) {
		us, ok := snap.AddressFormat("US")
		require.True(t, ok)
		assert.Equal(t, []string{"housenumber", "street", "unit"}, us.Format[0])

		de, ok := snap.AddressFormat("de")
		require.True(t, ok)
		assert.Empty(t, de.CountryCodes)
		assert.Equal(t, []string{"postcode", "city"}, de.Format[1])
	})

	t.Run("Should list defaults by geometry", func(t *testing.T) {
		assert.Equal(t, []string{"amenity/cafe", "shop", "category-food"}, snap.Defaults(ruleengine.GeometryPoint))
		assert.Empty(t, snap.Defaults(ruleengine.GeometryVertex))
	})

	t.Run("Should inherit the icon from the parent", func(t *testing.T) {
		assert.Equal(t, "maki-cafe", snap.Icon("amenity/cafe/coffee_shop"))
		assert.Equal(t, "", snap.Icon("leisure/park"))
	})

	t.Run("Should list universal fields", func(t *testing.T) {
		assert.Equal(t, []string{"email"}, fieldIDs(snap.UniversalFields()))
	})
}

func TestSnapshot_FieldsFor(t *testing.T) {
	t.Parallel()

	snap := loadFixture(t, "en")

	tests := []struct {
		name string
		id   string
		more bool
		want []string
	}{
		{name: "Should return own fields", id: "amenity/cafe", want: []string{"name", "cuisine", "internet_access"}},
		{name: "Should return inherited fields", id: "amenity/cafe/coffee_shop", want: []string{"name", "cuisine", "internet_access"}},
		{name: "Should return redirected more fields plus universal ones", id: "amenity/cafe", more: true, want: []string{"opening_hours", "outdoor_seating", "wifi", "email"}},
		{name: "Should list universal fields when more fields are absent", id: "shop/bakery", more: true, want: []string{"email"}},
		{name: "Should return nothing for an unknown preset", id: "nope", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := fieldIDs(snap.FieldsFor(tt.id, tt.more))

			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSnapshot_DefaultValues(t *testing.T) {
	t.Parallel()

	snap := loadFixture(t, "en")

	assert.Equal(t, map[string]string{"outdoor_seating": "no"}, snap.DefaultValues("amenity/cafe", ruleengine.GeometryPoint))
	assert.Equal(t, map[string]string{"building": "yes"}, snap.DefaultValues("building", ruleengine.GeometryArea))
	assert.Empty(t, snap.DefaultValues("building", ruleengine.GeometryPoint), "field geometry restricts defaults")
}

func TestSnapshot_Fingerprint(t *testing.T) {
	t.Parallel()

	en1 := loadFixture(t, "en")
	en2 := loadFixture(t, "en")
	de := loadFixture(t, "de")

	assert.NotEmpty(t, en1.Fingerprint())
	assert.Equal(t, en1.Fingerprint(), en2.Fingerprint())
	assert.NotEqual(t, en1.Fingerprint(), de.Fingerprint())
}

func TestNewSnapshot_RejectsDuplicateIDs(t *testing.T) {
	t.Parallel()

	p := ruleengine.MustPreset(ruleengine.Preset{ID: "a", Tags: ruleengine.Tags{"a": "b"}, Geometry: []ruleengine.Geometry{ruleengine.GeometryPoint}})

	_, err := NewSnapshot("en", []*ruleengine.Preset{p, p})

	assert.ErrorIs(t, err, ErrCorruptCatalog)
}
