package locationset

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/mimir/internal/value"
)

// fakeResolver answers from fixed tables.
type fakeResolver struct {
	regions map[string]bool
	shapes  map[string]bool
}

func (f fakeResolver) RegionContains(code string, _ orb.Point) bool { return f.regions[code] }
func (f fakeResolver) ShapeContains(name string, _ orb.Point) bool  { return f.shapes[name] }

func mustParse(t *testing.T, raw string) *Set {
	t.Helper()
	v, err := value.Parse([]byte(raw))
	require.NoError(t, err)
	s, err := Parse(v)
	require.NoError(t, err)
	return s
}

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    *Set
		wantErr bool
	}{
		{
			name: "Should return nil for null",
			raw:  `null`,
			want: nil,
		},
		{
			name: "Should return nil when both lists are empty",
			raw:  `{"include": []}`,
			want: nil,
		},
		{
			name: "Should classify every entry kind",
			raw:  `{"include": ["001", "us", "philly.geojson", [-75.1, 39.9], [2.35, 48.85, 1000]], "exclude": ["pr"]}`,
			want: &Set{
				Include: []Entry{
					World(),
					Region("us"),
					Shape("philly.geojson"),
					Circle(-75.1, 39.9, DefaultRadius),
					Circle(2.35, 48.85, 1000),
				},
				Exclude: []Entry{Region("pr")},
			},
		},
		{name: "Should reject non-object", raw: `["us"]`, wantErr: true},
		{name: "Should reject circle with one coordinate", raw: `{"include": [[1]]}`, wantErr: true},
		{name: "Should reject non-numeric circle", raw: `{"include": [["a", "b"]]}`, wantErr: true},
		{name: "Should reject negative radius", raw: `{"include": [[1, 2, -5]]}`, wantErr: true},
		{name: "Should reject empty code", raw: `{"exclude": [""]}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			v, err := value.Parse([]byte(tt.raw))
			require.NoError(t, err)

			// Act
			got, err := Parse(v)

			// Assert
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSet_Contains(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		set  string
		code string
		want bool
	}{
		{name: "Should match when include is empty", set: `{"exclude": ["fr"]}`, code: "de", want: true},
		{name: "Should match case-insensitively", set: `{"include": ["us"]}`, code: "US", want: true},
		{name: "Should reject code outside include", set: `{"include": ["us"]}`, code: "de", want: false},
		{name: "Should let exclude win over include", set: `{"include": ["001"], "exclude": ["de"]}`, code: "DE", want: false},
		{name: "Should match world", set: `{"include": ["001"]}`, code: "jp", want: true},
		{name: "Should not match polygon against code", set: `{"include": ["x.geojson"]}`, code: "x", want: false},
		{name: "Should not match circle against code", set: `{"include": [[0, 0]]}`, code: "us", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			s := mustParse(t, tt.set)

			// Act & Assert
			assert.Equal(t, tt.want, s.Contains(tt.code))
		})
	}
}

func TestSet_Overlaps(t *testing.T) {
	t.Parallel()

	philly := orb.Point{-75.1652, 39.9526}
	resolver := fakeResolver{
		regions: map[string]bool{"150": false, "us": true},
		shapes:  map[string]bool{"philly.geojson": true},
	}

	tests := []struct {
		name     string
		set      string
		ctx      Context
		resolver Resolver
		want     bool
	}{
		{
			name: "Should match everything for nil set",
			set:  `null`,
			ctx:  Context{},
			want: true,
		},
		{
			name: "Should reject region when context country differs and no point",
			set:  `{"include": ["us"]}`,
			ctx:  AtCountry("de"),
			want: false,
		},
		{
			name: "Should match region listed in context regions",
			set:  `{"include": ["150"]}`,
			ctx:  Context{Country: "DE", Regions: []string{"DE", "EU", "150"}},
			want: true,
		},
		{
			name:     "Should ask resolver for region containment at point",
			set:      `{"include": ["us"]}`,
			ctx:      Context{Point: &philly},
			resolver: resolver,
			want:     true,
		},
		{
			name:     "Should resolve named polygon through resolver",
			set:      `{"include": ["philly.geojson"]}`,
			ctx:      Context{Point: &philly},
			resolver: resolver,
			want:     true,
		},
		{
			name:     "Should fail closed for unknown polygon",
			set:      `{"include": ["nowhere.geojson"]}`,
			ctx:      Context{Point: &philly},
			resolver: resolver,
			want:     false,
		},
		{
			name: "Should fail closed for polygon without resolver",
			set:  `{"include": ["philly.geojson"]}`,
			ctx:  Context{Point: &philly},
			want: false,
		},
		{
			name:     "Should exclude point inside excluded polygon",
			set:      `{"include": ["001"], "exclude": ["philly.geojson"]}`,
			ctx:      Context{Point: &philly},
			resolver: resolver,
			want:     false,
		},
		{
			name: "Should use viewport centre when point is missing",
			set:  `{"include": [[-75.1652, 39.9526, 1000]]}`,
			ctx: Context{Viewport: &orb.Bound{
				Min: orb.Point{-75.2, 39.9},
				Max: orb.Point{-75.1304, 40.0052},
			}},
			want: true,
		},
		{
			name: "Should not match circle without any location",
			set:  `{"include": [[0, 0]]}`,
			ctx:  AtCountry("us"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange
			s := mustParse(t, tt.set)

			// Act & Assert
			assert.Equal(t, tt.want, s.Overlaps(tt.ctx, tt.resolver))
		})
	}
}

func TestSet_Overlaps_CircleRadius(t *testing.T) {
	t.Parallel()

	// One degree of latitude is about 111.2 km, so 0.2698 degrees is about 30 km.
	center := Circle(0, 0, 25000)
	set := &Set{Include: []Entry{center}}

	tests := []struct {
		name string
		lat  float64
		want bool
	}{
		{name: "Should match point at the centre", lat: 0, want: true},
		{name: "Should match point 20km away", lat: 0.17986, want: true},
		{name: "Should reject point 30km away", lat: 0.26979, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Act
			got := set.Overlaps(AtPoint(0, tt.lat), nil)

			// Assert
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDistance(t *testing.T) {
	t.Parallel()

	// Arrange
	paris := orb.Point{2.3522, 48.8566}
	london := orb.Point{-0.1276, 51.5072}

	// Act
	d := Distance(paris, london)

	// Assert
	assert.InDelta(t, 343_500, d, 2_000)
	assert.InDelta(t, 0, Distance(paris, paris), 1e-6)
}
