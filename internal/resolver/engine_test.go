package resolver

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/mimir/internal/catalog"
	"github.com/rafaeljc/mimir/internal/locationset"
	"github.com/rafaeljc/mimir/internal/regions"
	"github.com/rafaeljc/mimir/internal/ruleengine"
)

const (
	catalogFixtures = "../catalog/testdata/presets"
	bordersFixture  = "../regions/testdata/borders.json"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func newLoader() *catalog.Loader {
	return catalog.NewLoader(os.DirFS(catalogFixtures), quietLogger())
}

func loadSnapshot(t *testing.T, locale string) *catalog.Snapshot {
	t.Helper()
	snap, err := newLoader().Load(context.Background(), locale)
	require.NoError(t, err, "test setup failed: fixture catalog did not load")
	return snap
}

func loadSupplementary(t *testing.T) []*ruleengine.Preset {
	t.Helper()
	presets, err := newLoader().LoadSupplementary(context.Background())
	require.NoError(t, err, "test setup failed: supplementary fixture did not load")
	return presets
}

func loadAtlas(t *testing.T) *regions.Atlas {
	t.Helper()
	f, err := os.Open(bordersFixture)
	require.NoError(t, err)
	defer f.Close()
	store, err := regions.Load(f)
	require.NoError(t, err)
	return &regions.Atlas{Regions: store}
}

func readyEngine(t *testing.T) *Engine {
	t.Helper()
	e := New(quietLogger())
	require.True(t, e.InstallSnapshot(e.BeginLoad(), loadSnapshot(t, "en")))
	return e
}

func customPreset(id string, tags ruleengine.Tags) *ruleengine.Preset {
	return ruleengine.MustPreset(ruleengine.Preset{
		ID:         id,
		Name:       id,
		Tags:       tags,
		Geometry:   []ruleengine.Geometry{ruleengine.GeometryPoint, ruleengine.GeometryArea},
		Searchable: true,
		Origin:     ruleengine.OriginCustom,
	})
}

func matchID(m ruleengine.Match) string {
	if m.Preset == nil {
		return ""
	}
	return m.Preset.ID
}

func TestEngine_EmptyBeforeFirstInstall(t *testing.T) {
	t.Parallel()

	e := New(nil)

	assert.Nil(t, e.BestMatch(ruleengine.Tags{"amenity": "cafe"}, ruleengine.GeometryPoint, locationset.Context{}, true).Preset)
	assert.Nil(t, e.Snapshot())
	assert.Empty(t, e.Search("cafe", ruleengine.GeometryPoint, locationset.Context{}, 0, true))
	_, ok := e.Preset("amenity/cafe")
	assert.False(t, ok)
	assert.ErrorIs(t, e.RebuildSupplementary(nil), ErrNoSnapshot)
	assert.ErrorIs(t, e.SetCustomPresets(nil), ErrNoSnapshot)
	_, err := e.ApplyPreset(ruleengine.Tags{}, ruleengine.GeometryPoint, locationset.Context{}, "amenity/cafe")
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestEngine_BestMatch(t *testing.T) {
	t.Parallel()

	e := readyEngine(t)

	tests := []struct {
		name      string
		tags      ruleengine.Tags
		geometry  ruleengine.Geometry
		wantID    string
		wantScore float64
	}{
		{name: "Should match specific preset over broader one", tags: ruleengine.Tags{"amenity": "cafe"}, geometry: ruleengine.GeometryPoint, wantID: "amenity/cafe", wantScore: 2.0},
		{name: "Should prefer more predicates", tags: ruleengine.Tags{"amenity": "cafe", "cuisine": "coffee_shop"}, geometry: ruleengine.GeometryPoint, wantID: "amenity/cafe/coffee_shop", wantScore: 3.0},
		{name: "Should fall back to parent for unknown values", tags: ruleengine.Tags{"shop": "kiosk"}, geometry: ruleengine.GeometryArea, wantID: "shop", wantScore: 1.5},
		{name: "Should reject unsupported geometry", tags: ruleengine.Tags{"highway": "residential"}, geometry: ruleengine.GeometryPoint, wantID: ""},
		{name: "Should reach catch-all presets", tags: ruleengine.Tags{"addr:street": "Main St"}, geometry: ruleengine.GeometryPoint, wantID: "address", wantScore: 1.075 * 0.999},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			m := e.BestMatch(tt.tags, tt.geometry, locationset.Context{}, false)

			assert.Equal(t, tt.wantID, matchID(m))
			if tt.wantID != "" {
				assert.InDelta(t, tt.wantScore, m.Score, 1e-9)
			}
		})
	}
}

func TestEngine_InstallSnapshot_DiscardsStaleGenerations(t *testing.T) {
	t.Parallel()

	t.Run("Should discard an older load finishing after a newer install", func(t *testing.T) {
		t.Parallel()

		// Arrange
		e := New(quietLogger())
		older := e.BeginLoad()
		newer := e.BeginLoad()

		// Act
		installedNewer := e.InstallSnapshot(newer, loadSnapshot(t, "de"))
		installedOlder := e.InstallSnapshot(older, loadSnapshot(t, "en"))

		// Assert
		assert.True(t, installedNewer)
		assert.False(t, installedOlder)
		assert.Equal(t, "de", e.Snapshot().Locale())
		assert.Equal(t, newer, e.Generation())
	})

	t.Run("Should discard an older load finishing before the newer one", func(t *testing.T) {
		t.Parallel()

		// Arrange
		e := New(quietLogger())
		older := e.BeginLoad()
		newer := e.BeginLoad()

		// Act
		installedOlder := e.InstallSnapshot(older, loadSnapshot(t, "en"))
		installedNewer := e.InstallSnapshot(newer, loadSnapshot(t, "de"))

		// Assert
		assert.False(t, installedOlder)
		assert.True(t, installedNewer)
		assert.Equal(t, "de", e.Snapshot().Locale())
	})

	t.Run("Should reject reinstalling the same generation", func(t *testing.T) {
		t.Parallel()

		e := New(quietLogger())
		gen := e.BeginLoad()

		assert.True(t, e.InstallSnapshot(gen, loadSnapshot(t, "en")))
		assert.False(t, e.InstallSnapshot(gen, loadSnapshot(t, "de")))
		assert.Equal(t, "en", e.Snapshot().Locale())
	})
}

func TestEngine_SetLanguage(t *testing.T) {
	t.Parallel()

	// Arrange
	e := readyEngine(t)

	// Act
	err := e.SetLanguage(context.Background(), newLoader(), "de-AT")

	// Assert
	require.NoError(t, err)
	p, ok := e.Preset("shop/bakery")
	require.True(t, ok)
	assert.Equal(t, "Bäckerei (AT)", p.Name)
}

func TestEngine_Supplementary(t *testing.T) {
	t.Parallel()

	// Arrange
	e := readyEngine(t)
	supp := loadSupplementary(t)
	tags := ruleengine.Tags{"amenity": "cafe", "brand:wikidata": "Q100"}
	inUS := locationset.AtCountry("us")

	// Act & Assert: before install the extended request falls back to base
	assert.False(t, e.HasSupplementary())
	assert.Equal(t, "amenity/cafe", matchID(e.BestMatch(tags, ruleengine.GeometryPoint, inUS, true)))

	require.NoError(t, e.RebuildSupplementary(supp))

	assert.True(t, e.HasSupplementary())
	m := e.BestMatch(tags, ruleengine.GeometryPoint, inUS, true)
	assert.Equal(t, "amenity/cafe/acme_coffee-1a2b3c", matchID(m))
	assert.InDelta(t, 5.0, m.Score, 1e-9)

	assert.Equal(t, "amenity/cafe", matchID(e.BestMatch(tags, ruleengine.GeometryPoint, inUS, false)),
		"base matching ignores supplementary presets")
	assert.Equal(t, "amenity/cafe", matchID(e.BestMatch(tags, ruleengine.GeometryPoint, locationset.AtCountry("de"), true)),
		"location set excludes the brand outside its region")

	bakery := ruleengine.Tags{"shop": "bakery", "brand:wikidata": "Q200"}
	assert.Equal(t, "shop/bakery/bread_co-4d5e6f", matchID(e.BestMatch(bakery, ruleengine.GeometryPoint, locationset.AtCountry("de"), true)))
	assert.Equal(t, "shop/bakery", matchID(e.BestMatch(bakery, ruleengine.GeometryPoint, locationset.AtCountry("fr"), true)),
		"exclude wins over world include")

	_, ok := e.Preset("shop/bakery/bread_co-4d5e6f")
	assert.True(t, ok)
}

func TestEngine_LanguageChangeDropsExtendedIndexUntilRebuilt(t *testing.T) {
	t.Parallel()

	// Arrange
	e := readyEngine(t)
	supp := loadSupplementary(t)
	require.NoError(t, e.RebuildSupplementary(supp))

	// Act
	require.NoError(t, e.SetLanguage(context.Background(), newLoader(), "de"))

	// Assert
	assert.False(t, e.HasSupplementary())
	tags := ruleengine.Tags{"amenity": "cafe", "brand:wikidata": "Q100"}
	assert.Equal(t, "amenity/cafe", matchID(e.BestMatch(tags, ruleengine.GeometryPoint, locationset.AtCountry("us"), true)))

	require.NoError(t, e.RebuildSupplementary(supp))
	assert.Equal(t, "amenity/cafe/acme_coffee-1a2b3c", matchID(e.BestMatch(tags, ruleengine.GeometryPoint, locationset.AtCountry("us"), true)))
}

func TestMergeSupplementary_UsesBaseKnownKeys(t *testing.T) {
	t.Parallel()

	// Arrange
	snap := loadSnapshot(t, "en")
	supp := []*ruleengine.Preset{customPreset("brand/acme", ruleengine.Tags{"brand": "Acme"})}
	custom := []*ruleengine.Preset{customPreset("custom/kiosk", ruleengine.Tags{"shop": "kiosk"})}

	// Act
	idx := MergeSupplementary(snap, supp, custom)

	// Assert
	assert.Equal(t, snap.Len()+2, idx.Len())
	assert.False(t, idx.IsKnownKey("brand"))
	assert.Contains(t, idx.Bucket(""), supp[0])
	assert.Contains(t, idx.Bucket("shop"), custom[0])
}

func TestEngine_SetCustomPresets(t *testing.T) {
	t.Parallel()

	// Arrange
	e := readyEngine(t)
	require.NoError(t, e.RebuildSupplementary(loadSupplementary(t)))
	kiosk := customPreset("custom/kiosk", ruleengine.Tags{"shop": "kiosk"})
	tags := ruleengine.Tags{"shop": "kiosk"}

	// Act
	require.NoError(t, e.SetCustomPresets([]*ruleengine.Preset{kiosk}))

	// Assert
	assert.Equal(t, "custom/kiosk", matchID(e.BestMatch(tags, ruleengine.GeometryPoint, locationset.Context{}, false)))
	assert.Equal(t, "custom/kiosk", matchID(e.BestMatch(tags, ruleengine.GeometryPoint, locationset.Context{}, true)))
	assert.True(t, e.HasSupplementary(), "incremental rebuild keeps the extended index")
	got, ok := e.Preset("custom/kiosk")
	require.True(t, ok)
	assert.Same(t, kiosk, got)

	// Act: removal
	require.NoError(t, e.SetCustomPresets(nil))

	// Assert
	assert.Equal(t, "shop", matchID(e.BestMatch(tags, ruleengine.GeometryPoint, locationset.Context{}, true)))
	_, ok = e.Preset("custom/kiosk")
	assert.False(t, ok)
}

func TestEngine_SetCustomPresets_SurviveLanguageChange(t *testing.T) {
	t.Parallel()

	e := readyEngine(t)
	kiosk := customPreset("custom/kiosk", ruleengine.Tags{"shop": "kiosk"})
	require.NoError(t, e.SetCustomPresets([]*ruleengine.Preset{kiosk}))

	require.NoError(t, e.SetLanguage(context.Background(), newLoader(), "de"))

	assert.Equal(t, "custom/kiosk", matchID(e.BestMatch(ruleengine.Tags{"shop": "kiosk"}, ruleengine.GeometryPoint, locationset.Context{}, false)))
	assert.Len(t, e.CustomPresets(), 1)
}

func TestEngine_SetCustomPresets_RejectsShadowing(t *testing.T) {
	t.Parallel()

	e := readyEngine(t)

	err := e.SetCustomPresets([]*ruleengine.Preset{customPreset("amenity/cafe", ruleengine.Tags{"amenity": "cafe"})})

	assert.ErrorIs(t, err, ErrShadowsCatalog)
	assert.Empty(t, e.CustomPresets())
}

func TestEngine_InstallCustomPresets_DropsShadowing(t *testing.T) {
	t.Parallel()

	// Arrange
	e := readyEngine(t)
	kiosk := customPreset("custom/kiosk", ruleengine.Tags{"shop": "kiosk"})
	cafe := customPreset("amenity/cafe", ruleengine.Tags{"amenity": "cafe"})

	// Act
	dropped, err := e.InstallCustomPresets([]*ruleengine.Preset{cafe, kiosk})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, []string{"amenity/cafe"}, dropped)
	assert.Equal(t, []*ruleengine.Preset{kiosk}, e.CustomPresets())
	assert.Equal(t, "custom/kiosk", matchID(e.BestMatch(ruleengine.Tags{"shop": "kiosk"}, ruleengine.GeometryPoint, locationset.Context{}, false)))
	got, ok := e.Preset("amenity/cafe")
	require.True(t, ok)
	assert.NotSame(t, cafe, got, "catalog preset keeps its id")

	_, err = New(quietLogger()).InstallCustomPresets(nil)
	assert.ErrorIs(t, err, ErrNoSnapshot)
}

func TestEngine_LocationByPoint(t *testing.T) {
	t.Parallel()

	// Arrange
	e := readyEngine(t)
	tags := ruleengine.Tags{"shop": "pastry", "pastry": "doughnut"}
	philadelphia := locationset.AtPoint(-75.1652, 39.9526)
	paris := locationset.AtPoint(2.35, 48.85)

	// Act & Assert: without boundaries region entries fail closed
	assert.Equal(t, "shop", matchID(e.BestMatch(tags, ruleengine.GeometryPoint, philadelphia, false)))

	e.SetAtlas(loadAtlas(t))

	assert.Equal(t, "shop/doughnut", matchID(e.BestMatch(tags, ruleengine.GeometryPoint, philadelphia, false)))
	assert.Equal(t, "shop", matchID(e.BestMatch(tags, ruleengine.GeometryPoint, paris, false)))

	located := e.Locate(philadelphia)
	assert.Equal(t, "US", located.Country)
	assert.NotNil(t, located.Point)
}

func TestEngine_Search(t *testing.T) {
	t.Parallel()

	e := readyEngine(t)
	require.NoError(t, e.RebuildSupplementary(loadSupplementary(t)))
	inUS := locationset.AtCountry("us")

	base := e.Search("cafe", ruleengine.GeometryPoint, inUS, 0, false)
	all := e.Search("acme", ruleengine.GeometryPoint, inUS, 0, true)
	none := e.Search("acme", ruleengine.GeometryPoint, inUS, 0, false)

	require.NotEmpty(t, base)
	assert.Equal(t, "amenity/cafe", base[0].ID)
	require.Len(t, all, 1)
	assert.Equal(t, "amenity/cafe/acme_coffee-1a2b3c", all[0].ID)
	assert.Empty(t, none)
}

func TestEngine_ApplyPreset(t *testing.T) {
	t.Parallel()

	e := readyEngine(t)

	tests := []struct {
		name    string
		tags    ruleengine.Tags
		g       ruleengine.Geometry
		id      string
		want    ruleengine.Tags
		wantErr error
	}{
		{
			name: "Should replace previous preset tags and add field defaults",
			tags: ruleengine.Tags{"shop": "bakery", "name": "Joe's"},
			g:    ruleengine.GeometryPoint,
			id:   "amenity/cafe",
			want: ruleengine.Tags{"amenity": "cafe", "name": "Joe's", "outdoor_seating": "no"},
		},
		{
			name: "Should tag a new building",
			tags: ruleengine.Tags{},
			g:    ruleengine.GeometryArea,
			id:   "building",
			want: ruleengine.Tags{"building": "yes"},
		},
		{name: "Should reject unknown preset", tags: ruleengine.Tags{}, g: ruleengine.GeometryPoint, id: "nope", wantErr: ErrUnknownPreset},
		{name: "Should reject unsupported geometry", tags: ruleengine.Tags{}, g: ruleengine.GeometryPoint, id: "building", wantErr: ErrUnsupportedGeometry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := e.ApplyPreset(tt.tags, tt.g, locationset.Context{}, tt.id)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEngine_ConcurrentReadersDuringInstalls(t *testing.T) {
	t.Parallel()

	// Arrange
	e := readyEngine(t)
	en := loadSnapshot(t, "en")
	de := loadSnapshot(t, "de")
	supp := loadSupplementary(t)
	kiosk := customPreset("custom/kiosk", ruleengine.Tags{"shop": "kiosk"})
	tags := ruleengine.Tags{"amenity": "cafe", "brand:wikidata": "Q100"}
	allowed := map[string]bool{"amenity/cafe": true, "amenity/cafe/acme_coffee-1a2b3c": true}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	errs := make(chan string, 64)

	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				m := e.BestMatch(tags, ruleengine.GeometryPoint, locationset.AtCountry("us"), true)
				if !allowed[matchID(m)] {
					select {
					case errs <- matchID(m):
					default:
					}
				}
			}
		}()
	}

	// Act
	for i := 0; i < 20; i++ {
		snap := en
		if i%2 == 1 {
			snap = de
		}
		require.True(t, e.InstallSnapshot(e.BeginLoad(), snap))
		require.NoError(t, e.RebuildSupplementary(supp))
		require.NoError(t, e.SetCustomPresets([]*ruleengine.Preset{kiosk}))
		require.NoError(t, e.SetCustomPresets(nil))
	}
	close(stop)
	wg.Wait()
	close(errs)

	// Assert
	for id := range errs {
		t.Errorf("reader observed unexpected match %q", id)
	}
	assert.True(t, e.HasSupplementary())
}
