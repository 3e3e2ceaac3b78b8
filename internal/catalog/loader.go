// Package catalog loads the bundled preset data, merges locale translations
// over it and produces immutable snapshots.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rafaeljc/mimir/internal/observability"
	"github.com/rafaeljc/mimir/internal/ruleengine"
	"github.com/rafaeljc/mimir/internal/value"
)

// Bundled data files, relative to the data directory.
const (
	FilePresets        = "presets.json"
	FileCategories     = "preset_categories.json"
	FileFields         = "fields.json"
	FileDefaults       = "preset_defaults.json"
	FileAddressFormats = "address_formats.json"
	FileSupplementary  = "nsi_presets.json"
	TranslationsDir    = "translations"
)

// Loader reads catalog files from a file system. It holds no state between
// loads, so one Loader may serve concurrent loads for different locales.
type Loader struct {
	fsys   fs.FS
	logger *slog.Logger
}

// NewLoader creates a loader over fsys, typically os.DirFS(dataDir).
func NewLoader(fsys fs.FS, logger *slog.Logger) *Loader {
	if fsys == nil {
		panic("catalog: file system cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{fsys: fsys, logger: logger}
}

// baseDocs are the parsed base files of one load.
type baseDocs struct {
	presets, categories, fields, defaults, formats value.Value
}

// Load reads the base files, merges the translations for locale and returns
// a new snapshot. Errors in base data wrap ErrCorruptCatalog. Missing or
// malformed translations are logged and skipped.
func (l *Loader) Load(ctx context.Context, locale string) (*Snapshot, error) {
	start := time.Now()

	snap, err := l.load(ctx, locale)

	observability.CatalogLoadDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		observability.CatalogLoadsTotal.WithLabelValues("fail").Inc()
		return nil, err
	}
	observability.CatalogLoadsTotal.WithLabelValues("success").Inc()

	l.logger.Info("catalog loaded",
		slog.String("locale", locale),
		slog.Int("presets", snap.Len()),
		slog.String("fingerprint", snap.Fingerprint()),
		slog.String("duration", time.Since(start).String()),
	)
	return snap, nil
}

func (l *Loader) load(ctx context.Context, locale string) (*Snapshot, error) {
	var docs baseDocs
	targets := []struct {
		name string
		dst  *value.Value
	}{
		{FilePresets, &docs.presets},
		{FileCategories, &docs.categories},
		{FileFields, &docs.fields},
		{FileDefaults, &docs.defaults},
		{FileAddressFormats, &docs.formats},
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range targets {
		g.Go(func() error {
			v, err := l.readJSON(gctx, t.name)
			if err != nil {
				return err
			}
			*t.dst = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("catalog load cancelled: %w", ctxErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrCorruptCatalog, err)
	}

	overlay := l.translations(ctx, locale)

	presets, err := ruleengine.CompilePresets(mergeDocument(docs.presets, overlay.Get("presets")), ruleengine.OriginBase)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCatalog, err)
	}

	fields, err := parseFields(mergeDocument(docs.fields, overlay.Get("fields")))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCatalog, err)
	}

	categories, err := parseCategories(mergeDocument(docs.categories, overlay.Get("categories")))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCatalog, err)
	}

	defaults, err := parseDefaults(docs.defaults)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCatalog, err)
	}

	formats, err := parseAddressFormats(docs.formats)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptCatalog, err)
	}

	return newSnapshot(locale, presets, categories, fields, formats, defaults)
}

// translations merges the overlays of the locale's fallback chain, nearest
// last. The result has "presets", "fields" and "categories" keys.
func (l *Loader) translations(ctx context.Context, locale string) value.Value {
	merged := value.Null()
	for _, code := range FallbackChain(locale) {
		name := path.Join(TranslationsDir, code+".json")
		doc, err := l.readJSON(ctx, name)
		if err != nil {
			reason := "malformed"
			if errors.Is(err, fs.ErrNotExist) {
				reason = "missing"
			}
			observability.CatalogTranslationsSkipped.WithLabelValues(reason).Inc()
			l.logger.Warn("skipping translation",
				slog.String("locale", code),
				slog.String("reason", reason),
				slog.String("error", err.Error()),
			)
			continue
		}

		part := doc.Path(code, "presets")
		if !part.IsMap() {
			observability.CatalogTranslationsSkipped.WithLabelValues("malformed").Inc()
			l.logger.Warn("skipping translation without presets section", slog.String("locale", code))
			continue
		}
		merged = Merge(merged, part)
	}
	return merged
}

// mergeDocument merges the overlay entry of each base id. Overlay ids that
// have no base entry are ignored.
func mergeDocument(base, overlay value.Value) value.Value {
	if overlay.IsNull() || !base.IsMap() {
		return base
	}
	out := make(map[string]value.Value, base.Len())
	for id, b := range base.Entries() {
		out[id] = Merge(b, overlay.Get(id))
	}
	return value.Map(out)
}

// LoadSupplementary reads the name-suggestion presets. The file holds either
// {"presets": {...}} or the preset map itself.
func (l *Loader) LoadSupplementary(ctx context.Context) ([]*ruleengine.Preset, error) {
	doc, err := l.readJSON(ctx, FileSupplementary)
	if err != nil {
		return nil, fmt.Errorf("failed to read supplementary presets: %w", err)
	}
	if inner := doc.Get("presets"); inner.IsMap() {
		doc = inner
	}
	presets, err := ruleengine.CompilePresets(doc, ruleengine.OriginSupplementary)
	if err != nil {
		return nil, fmt.Errorf("failed to compile supplementary presets: %w", err)
	}
	return presets, nil
}

// Open opens an auxiliary data file such as the region boundaries.
func (l *Loader) Open(name string) (fs.File, error) {
	return l.fsys.Open(name)
}

// Locales lists the locales that have a translation file.
func (l *Loader) Locales() ([]string, error) {
	entries, err := fs.ReadDir(l.fsys, TranslationsDir)
	if err != nil {
		return nil, fmt.Errorf("failed to list translations: %w", err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		out = append(out, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(out)
	return out, nil
}

func (l *Loader) readJSON(ctx context.Context, name string) (value.Value, error) {
	if err := ctx.Err(); err != nil {
		return value.Null(), err
	}
	data, err := fs.ReadFile(l.fsys, name)
	if err != nil {
		return value.Null(), fmt.Errorf("failed to read %s: %w", name, err)
	}
	v, err := value.Parse(data)
	if err != nil {
		return value.Null(), fmt.Errorf("failed to parse %s: %w", name, err)
	}
	return v, nil
}

func parseFields(doc value.Value) (map[string]*Field, error) {
	if !doc.IsMap() {
		return nil, fmt.Errorf("%s: expected object, got %s", FileFields, doc.Kind())
	}
	fields := make(map[string]*Field, doc.Len())
	for id, v := range doc.Entries() {
		f, err := parseField(id, v)
		if err != nil {
			return nil, err
		}
		if f != nil {
			fields[id] = f
		}
	}
	resolveFieldRefs(fields)
	return fields, nil
}

func parseCategories(doc value.Value) (map[string]*Category, error) {
	if !doc.IsMap() {
		return nil, fmt.Errorf("%s: expected object, got %s", FileCategories, doc.Kind())
	}
	out := make(map[string]*Category, doc.Len())
	for id, v := range doc.Entries() {
		if !v.IsMap() {
			return nil, fmt.Errorf("category %s: expected object", id)
		}
		members := v.Get("members")
		if !members.IsList() {
			return nil, fmt.Errorf("category %s: members must be a list", id)
		}
		c := &Category{
			ID:      id,
			Name:    v.Get("name").StrOr(""),
			Icon:    v.Get("icon").StrOr(""),
			Members: members.StringList(),
		}
		for _, g := range v.Get("geometry").StringList() {
			geom, err := ruleengine.ParseGeometry(g)
			if err != nil {
				return nil, fmt.Errorf("category %s: %w", id, err)
			}
			c.Geometry = append(c.Geometry, geom)
		}
		out[id] = c
	}
	return out, nil
}

func parseDefaults(doc value.Value) (map[ruleengine.Geometry][]string, error) {
	if !doc.IsMap() {
		return nil, fmt.Errorf("%s: expected object, got %s", FileDefaults, doc.Kind())
	}
	out := make(map[ruleengine.Geometry][]string, doc.Len())
	for k, v := range doc.Entries() {
		g, err := ruleengine.ParseGeometry(k)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", FileDefaults, err)
		}
		if !v.IsList() {
			return nil, fmt.Errorf("%s: %s must be a list", FileDefaults, k)
		}
		out[g] = v.StringList()
	}
	return out, nil
}

func parseAddressFormats(doc value.Value) ([]AddressFormat, error) {
	if !doc.IsList() {
		return nil, fmt.Errorf("%s: expected list, got %s", FileAddressFormats, doc.Kind())
	}
	out := make([]AddressFormat, 0, doc.Len())
	for i, item := range doc.Items() {
		lines := item.Get("format")
		if !lines.IsList() {
			return nil, fmt.Errorf("%s: entry %d has no format", FileAddressFormats, i)
		}
		af := AddressFormat{CountryCodes: item.Get("countryCodes").StringList()}
		for _, line := range lines.Items() {
			af.Format = append(af.Format, line.StringList())
		}
		out = append(out, af)
	}
	return out, nil
}
