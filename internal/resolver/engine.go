// Package resolver holds the engine that owns the current catalog snapshot
// and tag indexes. Readers capture the current state once per call; writers
// build a complete replacement and publish it with one atomic store.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rafaeljc/mimir/internal/catalog"
	"github.com/rafaeljc/mimir/internal/locationset"
	"github.com/rafaeljc/mimir/internal/observability"
	"github.com/rafaeljc/mimir/internal/regions"
	"github.com/rafaeljc/mimir/internal/ruleengine"
)

var (
	// ErrNoSnapshot is returned before the first catalog is installed.
	ErrNoSnapshot = errors.New("no catalog snapshot installed")
	// ErrUnknownPreset is returned for ids that no installed preset has.
	ErrUnknownPreset = errors.New("unknown preset")
	// ErrUnsupportedGeometry is returned when a preset cannot be applied to
	// a feature of the given geometry.
	ErrUnsupportedGeometry = errors.New("preset does not support geometry")
	// ErrSuperseded is returned when a newer catalog load won the race.
	ErrSuperseded = errors.New("superseded by a newer load")
	// ErrShadowsCatalog is returned for custom presets reusing a catalog id.
	ErrShadowsCatalog = errors.New("custom preset shadows a catalog preset")
)

// state is one published, immutable view of the engine.
type state struct {
	snapshot   *catalog.Snapshot
	generation uint64

	custom        []*ruleengine.Preset
	supplementary []*ruleengine.Preset

	// baseIndex covers base + custom presets; extIndex additionally covers the
	// supplementary presets and is nil until they have been merged.
	baseIndex *ruleengine.TagIndex
	extIndex  *ruleengine.TagIndex

	// extra maps custom and supplementary ids to presets.
	extra map[string]*ruleengine.Preset
}

// Engine resolves features against the current catalog. It is safe for
// concurrent use; all read methods are lock-free.
type Engine struct {
	logger *slog.Logger

	current atomic.Pointer[state]
	atlas   atomic.Pointer[regions.Atlas]

	// loadSeq is the generation of the most recently started load.
	loadSeq atomic.Uint64

	// installMu serialises writers. Readers never take it.
	installMu sync.Mutex
}

// New creates an engine with no catalog. Matching returns no result until a
// snapshot is installed.
func New(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{logger: logger}
}

// BeginLoad reserves the generation number for a new catalog load. Results of
// loads that began earlier are discarded if they finish later.
func (e *Engine) BeginLoad() uint64 {
	return e.loadSeq.Add(1)
}

// InstallSnapshot publishes snap built by the load that reserved gen. It
// reports false, leaving the current state untouched, when a newer load has
// started or been installed in the meantime. Custom presets carry over; the
// supplementary index must be rebuilt for the new snapshot.
func (e *Engine) InstallSnapshot(gen uint64, snap *catalog.Snapshot) bool {
	if snap == nil {
		panic("resolver: snapshot cannot be nil")
	}

	e.installMu.Lock()
	defer e.installMu.Unlock()

	cur := e.current.Load()
	if gen < e.loadSeq.Load() || (cur != nil && gen <= cur.generation) {
		observability.StaleInstallsDiscarded.WithLabelValues("snapshot").Inc()
		e.logger.Warn("discarding stale catalog snapshot",
			slog.Uint64("generation", gen),
			slog.Uint64("latest", e.loadSeq.Load()),
			slog.String("locale", snap.Locale()),
		)
		return false
	}

	next := &state{snapshot: snap, generation: gen}
	if cur != nil {
		next.custom = cur.custom
		next.supplementary = cur.supplementary
	}
	next.baseIndex = ruleengine.NewIndex(snap.Presets(), next.custom)
	next.extra = extraByID(next.custom, nil)

	e.current.Store(next)
	observability.IndexInstallsTotal.WithLabelValues("snapshot").Inc()
	e.reportSizes(next)

	e.logger.Info("catalog snapshot installed",
		slog.Uint64("generation", gen),
		slog.String("locale", snap.Locale()),
		slog.Int("presets", snap.Len()),
	)
	return true
}

// SetLanguage loads the catalog for locale and installs it. The call blocks
// until the load completes; a concurrent newer call wins.
func (e *Engine) SetLanguage(ctx context.Context, loader *catalog.Loader, locale string) error {
	gen := e.BeginLoad()
	snap, err := loader.Load(ctx, locale)
	if err != nil {
		return fmt.Errorf("failed to load catalog for %q: %w", locale, err)
	}
	if !e.InstallSnapshot(gen, snap) {
		return fmt.Errorf("catalog load for %q: %w", locale, ErrSuperseded)
	}
	return nil
}

// MergeSupplementary builds an index over base, custom and supplementary
// presets whose known keys derive from the base presets only.
func MergeSupplementary(snap *catalog.Snapshot, supplementary, custom []*ruleengine.Preset) *ruleengine.TagIndex {
	return ruleengine.NewIndex(snap.Presets(), custom, supplementary)
}

// RebuildSupplementary builds the extended index for the current snapshot
// outside of any lock and installs it, unless the state changed while it was
// being built, in which case it retries against the newer state.
func (e *Engine) RebuildSupplementary(supplementary []*ruleengine.Preset) error {
	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		base := e.current.Load()
		if base == nil {
			return ErrNoSnapshot
		}

		start := time.Now()
		idx := MergeSupplementary(base.snapshot, supplementary, base.custom)
		observability.SupplementaryBuildDuration.Observe(time.Since(start).Seconds())

		if e.installExtended(base, supplementary, idx) {
			e.logger.Info("supplementary index installed",
				slog.Uint64("generation", base.generation),
				slog.Int("supplementary", len(supplementary)),
				slog.Int("indexed", idx.Len()),
				slog.String("duration", time.Since(start).String()),
			)
			return nil
		}

		observability.StaleInstallsDiscarded.WithLabelValues("supplementary").Inc()
		e.logger.Info("state changed during supplementary build, retrying", slog.Int("attempt", attempt))
	}
	return fmt.Errorf("supplementary index %w %d times", ErrSuperseded, maxAttempts)
}

// installExtended publishes idx only if base is still the current state.
func (e *Engine) installExtended(base *state, supplementary []*ruleengine.Preset, idx *ruleengine.TagIndex) bool {
	e.installMu.Lock()
	defer e.installMu.Unlock()

	if e.current.Load() != base {
		return false
	}
	next := *base
	next.supplementary = supplementary
	next.extIndex = idx
	next.extra = extraByID(next.custom, supplementary)

	e.current.Store(&next)
	observability.IndexInstallsTotal.WithLabelValues("supplementary").Inc()
	e.reportSizes(&next)
	return true
}

// SetCustomPresets replaces the user-authored presets. Both indexes are
// updated incrementally; the catalog is not reloaded.
func (e *Engine) SetCustomPresets(custom []*ruleengine.Preset) error {
	e.installMu.Lock()
	defer e.installMu.Unlock()

	cur := e.current.Load()
	if cur == nil {
		return ErrNoSnapshot
	}
	for _, p := range custom {
		if _, clash := cur.snapshot.Preset(p.ID); clash {
			return fmt.Errorf("%w: %s", ErrShadowsCatalog, p.ID)
		}
	}
	e.installCustom(cur, custom)
	return nil
}

// InstallCustomPresets is SetCustomPresets for stored sets: presets whose id
// the installed catalog already uses are dropped instead of failing the whole
// install. It returns the dropped ids.
func (e *Engine) InstallCustomPresets(custom []*ruleengine.Preset) ([]string, error) {
	e.installMu.Lock()
	defer e.installMu.Unlock()

	cur := e.current.Load()
	if cur == nil {
		return nil, ErrNoSnapshot
	}
	kept := make([]*ruleengine.Preset, 0, len(custom))
	var dropped []string
	for _, p := range custom {
		if _, clash := cur.snapshot.Preset(p.ID); clash {
			dropped = append(dropped, p.ID)
			continue
		}
		kept = append(kept, p)
	}
	e.installCustom(cur, kept)
	return dropped, nil
}

// installCustom publishes custom on top of cur. Callers hold installMu.
func (e *Engine) installCustom(cur *state, custom []*ruleengine.Preset) {
	next := *cur
	next.custom = custom
	next.baseIndex = cur.baseIndex.Replace(cur.custom, custom)
	if cur.extIndex != nil {
		next.extIndex = cur.extIndex.Replace(cur.custom, custom)
	}
	var supplementary []*ruleengine.Preset
	if cur.extIndex != nil {
		supplementary = cur.supplementary
	}
	next.extra = extraByID(custom, supplementary)

	e.current.Store(&next)
	observability.IndexInstallsTotal.WithLabelValues("custom").Inc()
	e.reportSizes(&next)

	e.logger.Info("custom presets installed", slog.Int("count", len(custom)))
}

// SetAtlas publishes the region boundaries and named shapes used for
// geographic filtering. Until then polygon entries fail closed.
func (e *Engine) SetAtlas(a *regions.Atlas) {
	e.atlas.Store(a)
}

// Atlas returns the current atlas, or nil.
func (e *Engine) Atlas() *regions.Atlas {
	return e.atlas.Load()
}

// Snapshot returns the current snapshot, or nil before the first install.
func (e *Engine) Snapshot() *catalog.Snapshot {
	if s := e.current.Load(); s != nil {
		return s.snapshot
	}
	return nil
}

// Generation returns the generation of the installed snapshot.
func (e *Engine) Generation() uint64 {
	if s := e.current.Load(); s != nil {
		return s.generation
	}
	return 0
}

// HasSupplementary reports whether the extended index is installed.
func (e *Engine) HasSupplementary() bool {
	s := e.current.Load()
	return s != nil && s.extIndex != nil
}

// CustomPresets returns the installed custom presets.
func (e *Engine) CustomPresets() []*ruleengine.Preset {
	if s := e.current.Load(); s != nil {
		return s.custom
	}
	return nil
}

// resolver returns the atlas as a location-set resolver, or nil when no
// boundaries are loaded.
func (e *Engine) resolver() locationset.Resolver {
	if a := e.atlas.Load(); a != nil {
		return a
	}
	return nil
}

// Locate enriches a context that only carries a point with the country and
// regions at that point.
func (e *Engine) Locate(loc locationset.Context) locationset.Context {
	if loc.Country != "" || len(loc.Regions) > 0 {
		return loc
	}
	pt, ok := loc.Location()
	if !ok {
		return loc
	}
	a := e.atlas.Load()
	if a == nil {
		return loc
	}
	enriched := a.ContextAt(pt)
	enriched.Point = loc.Point
	enriched.Viewport = loc.Viewport
	return enriched
}

// BestMatch returns the preset that best describes the feature. With
// includeSupplementary it also considers the supplementary presets once
// their index is installed, and falls back to the base index before that.
func (e *Engine) BestMatch(tags ruleengine.Tags, g ruleengine.Geometry, loc locationset.Context, includeSupplementary bool) ruleengine.Match {
	s := e.current.Load()
	if s == nil {
		return ruleengine.Match{}
	}

	idx, label := s.baseIndex, "base"
	if includeSupplementary && s.extIndex != nil {
		idx, label = s.extIndex, "extended"
	}

	start := time.Now()
	m := ruleengine.BestMatch(idx, tags, g, loc, e.resolver())
	observability.MatchDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())

	outcome := "none"
	if m.Preset != nil {
		outcome = "matched"
	}
	observability.MatchTotal.WithLabelValues(label, outcome).Inc()
	return m
}

// Preset looks up a preset by id across the base catalog, custom and
// installed supplementary presets.
func (e *Engine) Preset(id string) (*ruleengine.Preset, bool) {
	s := e.current.Load()
	if s == nil {
		return nil, false
	}
	if p, ok := s.snapshot.Preset(id); ok {
		return p, true
	}
	p, ok := s.extra[id]
	return p, ok
}

// Search ranks searchable presets by text. Supplementary presets are only
// searched when includeSupplementary is set.
func (e *Engine) Search(query string, g ruleengine.Geometry, loc locationset.Context, limit int, includeSupplementary bool) []*ruleengine.Preset {
	s := e.current.Load()
	if s == nil {
		return nil
	}
	presets := make([]*ruleengine.Preset, 0, s.snapshot.Len()+len(s.custom)+len(s.supplementary))
	presets = append(presets, s.snapshot.Presets()...)
	presets = append(presets, s.custom...)
	if includeSupplementary && s.extIndex != nil {
		presets = append(presets, s.supplementary...)
	}
	return ruleengine.Search(presets, query, ruleengine.SearchOptions{
		Geometry: g,
		Location: loc,
		Resolver: e.resolver(),
		Limit:    limit,
	})
}

// ApplyPreset returns tags updated for choosing preset id on a feature. The
// feature's current best match is treated as the previous preset.
func (e *Engine) ApplyPreset(tags ruleengine.Tags, g ruleengine.Geometry, loc locationset.Context, id string) (ruleengine.Tags, error) {
	s := e.current.Load()
	if s == nil {
		return nil, ErrNoSnapshot
	}
	p, ok := e.Preset(id)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPreset, id)
	}
	if !p.HasGeometry(g) {
		return nil, fmt.Errorf("%w: %q on %s", ErrUnsupportedGeometry, id, g)
	}

	previous := e.BestMatch(tags, g, loc, true).Preset
	defaults := s.snapshot.DefaultValues(id, g)
	return ruleengine.Apply(tags, g, previous, p, defaults, s.snapshot.AreaKeys()), nil
}

func (e *Engine) reportSizes(s *state) {
	observability.CatalogPresets.WithLabelValues(ruleengine.OriginBase.String()).Set(float64(s.snapshot.Len()))
	observability.CatalogPresets.WithLabelValues(ruleengine.OriginCustom.String()).Set(float64(len(s.custom)))
	supp := 0
	if s.extIndex != nil {
		supp = len(s.supplementary)
	}
	observability.CatalogPresets.WithLabelValues(ruleengine.OriginSupplementary.String()).Set(float64(supp))
}

func extraByID(lists ...[]*ruleengine.Preset) map[string]*ruleengine.Preset {
	n := 0
	for _, l := range lists {
		n += len(l)
	}
	out := make(map[string]*ruleengine.Preset, n)
	for _, l := range lists {
		for _, p := range l {
			out[p.ID] = p
		}
	}
	return out
}
