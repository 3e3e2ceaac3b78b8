package catalog

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/mimir/internal/value"
)

func parse(t *testing.T, raw string) value.Value {
	t.Helper()
	v, err := value.Parse([]byte(raw))
	require.NoError(t, err, "test setup failed: invalid JSON")
	return v
}

func assertJSONEqual(t *testing.T, want string, got value.Value) {
	t.Helper()
	data, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, want, string(data))
}

func TestMerge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		base    string
		overlay string
		want    string
	}{
		{
			name:    "Should let the overlay string win",
			base:    `{"name": "Cafe", "icon": "maki-cafe"}`,
			overlay: `{"name": "Café"}`,
			want:    `{"name": "Café", "icon": "maki-cafe"}`,
		},
		{
			name:    "Should keep base text for a placeholder",
			base:    `{"name": "Shop"}`,
			overlay: `{"name": "<translate with synonyms>"}`,
			want:    `{"name": "Shop"}`,
		},
		{
			name:    "Should add overlay-only keys",
			base:    `{"name": "Cafe"}`,
			overlay: `{"label": "Name", "placeholder": "Common Name"}`,
			want:    `{"name": "Cafe", "label": "Name", "placeholder": "Common Name"}`,
		},
		{
			name:    "Should keep base for a null overlay",
			base:    `{"name": "Cafe"}`,
			overlay: `null`,
			want:    `{"name": "Cafe"}`,
		},
		{
			name:    "Should pair an option list with translated strings",
			base:    `{"options": ["yes", "no"]}`,
			overlay: `{"options": {"yes": "Ja", "no": {"title": "Nein", "description": "Kein Zugang"}}}`,
			want:    `{"options": {"options": ["yes", "no"], "strings": {"yes": "Ja", "no": "Nein"}}}`,
		},
		{
			name:    "Should split translated terms on commas",
			base:    `{"terms": ["coffee"]}`,
			overlay: `{"terms": "Kaffee, Espresso,"}`,
			want:    `{"terms": ["Kaffee", "Espresso"]}`,
		},
		{
			name:    "Should split translated aliases on newlines",
			base:    `{"aliases": ["Bakehouse"]}`,
			overlay: `{"aliases": "Backstube\nBrotladen, Konditorei"}`,
			want:    `{"aliases": ["Backstube", "Brotladen, Konditorei"]}`,
		},
		{
			name:    "Should fold option strings into the base strings object",
			base:    `{"key": "internet_access", "strings": {"options": {"yes": "Yes", "wlan": "Wifi"}}}`,
			overlay: `{"label": "Internetzugang", "options": {"yes": "Ja"}}`,
			want:    `{"key": "internet_access", "label": "Internetzugang", "strings": {"options": {"yes": "Ja", "wlan": "Wifi"}}}`,
		},
		{
			name:    "Should recurse into nested maps",
			base:    `{"a": {"b": {"c": "1", "d": "2"}}}`,
			overlay: `{"a": {"b": {"c": "x"}, "e": "3"}}`,
			want:    `{"a": {"b": {"c": "x", "d": "2"}, "e": "3"}}`,
		},
		{
			name:    "Should take the overlay on mismatched kinds",
			base:    `{"a": 1}`,
			overlay: `{"a": "one"}`,
			want:    `{"a": "one"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			base := parse(t, tt.base)
			overlay := parse(t, tt.overlay)

			// Act
			got := Merge(base, overlay)

			// Assert
			assertJSONEqual(t, tt.want, got)
		})
	}
}

func TestMerge_EmptyBaseYieldsOverlay(t *testing.T) {
	t.Parallel()

	overlays := []string{
		`{"presets": {"amenity/cafe": {"name": "Café", "terms": "coffee,espresso"}}}`,
		`{"fields": {"internet_access": {"options": {"yes": "Ja", "no": {"title": "Nein"}}}}}`,
		`{"a": [1, 2, {"b": null}], "c": true}`,
		`{}`,
	}

	for _, raw := range overlays {
		t.Run(raw, func(t *testing.T) {
			t.Parallel()

			overlay := parse(t, raw)

			assertJSONEqual(t, raw, Merge(value.Map(nil), overlay))
			assertJSONEqual(t, raw, Merge(value.Null(), overlay))
		})
	}
}

func TestMerge_DoesNotModifyInputs(t *testing.T) {
	t.Parallel()

	// Arrange
	baseRaw := `{"name": "Cafe", "terms": ["coffee"], "nested": {"x": "1"}}`
	overlayRaw := `{"name": "Café", "terms": "Kaffee", "nested": {"x": "2", "y": "3"}}`
	base := parse(t, baseRaw)
	overlay := parse(t, overlayRaw)

	// Act
	_ = Merge(base, overlay)

	// Assert
	assertJSONEqual(t, baseRaw, base)
	assertJSONEqual(t, overlayRaw, overlay)
}

func TestFallbackChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		locale string
		want   []string
	}{
		{locale: "en-US", want: []string{"en", "en-US"}},
		{locale: "de-AT", want: []string{"de", "de-AT"}},
		{locale: "pt-BR", want: []string{"pt", "pt-BR"}},
		{locale: "zh-Hant-TW", want: []string{"zh", "zh-Hant-TW"}},
		{locale: "en", want: []string{"en"}},
		{locale: "", want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.locale, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, FallbackChain(tt.locale))
		})
	}
}
