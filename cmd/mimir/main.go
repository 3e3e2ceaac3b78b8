// Package main is the mimir command-line tool. It resolves presets against a
// local catalog without running the API server.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/rafaeljc/mimir/internal/catalog"
	"github.com/rafaeljc/mimir/internal/locationset"
	"github.com/rafaeljc/mimir/internal/logger"
	"github.com/rafaeljc/mimir/internal/regions"
	"github.com/rafaeljc/mimir/internal/resolver"
	"github.com/rafaeljc/mimir/internal/ruleengine"
	"github.com/rafaeljc/mimir/internal/store"
)

// options are the persistent flags shared by every subcommand.
type options struct {
	DataDir    string
	Locale     string
	CustomFile string
	Boundaries string
	YAML       bool
	Verbose    bool
}

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:          "mimir",
		Short:        "Resolve OpenStreetMap tags to presets",
		SilenceUsage: true,
	}
	root.SetOut(out)

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.DataDir, "data-dir", "d", "./data/presets", "Directory holding the preset catalog")
	flags.StringVarP(&opts.Locale, "locale", "l", "en", "Catalog locale")
	flags.StringVar(&opts.CustomFile, "custom", "", "YAML file with custom presets")
	flags.StringVar(&opts.Boundaries, "boundaries", "borders.json", "Region boundaries file inside the data dir")
	flags.BoolVarP(&opts.YAML, "yaml", "y", false, "Output as YAML instead of JSON")
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		newMatchCmd(opts),
		newApplyCmd(opts),
		newPresetCmd(opts),
		newSearchCmd(opts),
		newLocalesCmd(opts),
	)
	return root
}

// locationFlags adds the flags that describe where the feature is.
type locationFlags struct {
	Country     string
	Lon, Lat    float64
	HasPoint    bool
	Geometry    string
	Suggestions bool
}

func (l *locationFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&l.Geometry, "geometry", "g", "point", "Feature geometry (point, vertex, line, area, relation)")
	cmd.Flags().StringVarP(&l.Country, "country", "c", "", "ISO country code of the feature")
	cmd.Flags().Float64Var(&l.Lon, "lon", 0, "Feature longitude")
	cmd.Flags().Float64Var(&l.Lat, "lat", 0, "Feature latitude")
	cmd.Flags().BoolVarP(&l.Suggestions, "suggestions", "s", false, "Include brand and operator presets")
}

func (l *locationFlags) context(cmd *cobra.Command) locationset.Context {
	if l.Country != "" {
		return locationset.AtCountry(strings.ToUpper(l.Country))
	}
	if cmd.Flags().Changed("lon") || cmd.Flags().Changed("lat") {
		return locationset.AtPoint(l.Lon, l.Lat)
	}
	return locationset.Context{}
}

func newMatchCmd(opts *options) *cobra.Command {
	var loc locationFlags
	cmd := &cobra.Command{
		Use:     "match key=value...",
		Short:   "Find the preset that best describes a feature",
		Example: "  mimir match amenity=cafe cuisine=coffee_shop --geometry area",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, err := parseTags(args)
			if err != nil {
				return err
			}
			g, err := ruleengine.ParseGeometry(loc.Geometry)
			if err != nil {
				return err
			}

			engine, err := setup(cmd.Context(), opts, loc.Suggestions)
			if err != nil {
				return err
			}

			m := engine.BestMatch(tags, g, engine.Locate(loc.context(cmd)), loc.Suggestions)
			if m.Preset == nil {
				return write(cmd.OutOrStdout(), opts, map[string]interface{}{"match": nil})
			}
			return write(cmd.OutOrStdout(), opts, map[string]interface{}{
				"match": m.Preset,
				"score": m.Score,
			})
		},
	}
	loc.register(cmd)
	return cmd
}

func newApplyCmd(opts *options) *cobra.Command {
	var loc locationFlags
	cmd := &cobra.Command{
		Use:     "apply preset-id [key=value...]",
		Short:   "Print the tags of a feature after choosing a preset",
		Example: "  mimir apply shop/bakery amenity=cafe name=Joe",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tags, err := parseTags(args[1:])
			if err != nil {
				return err
			}
			g, err := ruleengine.ParseGeometry(loc.Geometry)
			if err != nil {
				return err
			}

			engine, err := setup(cmd.Context(), opts, loc.Suggestions)
			if err != nil {
				return err
			}

			out, err := engine.ApplyPreset(tags, g, engine.Locate(loc.context(cmd)), args[0])
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), opts, out)
		},
	}
	loc.register(cmd)
	return cmd
}

func newPresetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "preset id",
		Short: "Show a preset with its fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			engine, err := setup(cmd.Context(), opts, false)
			if err != nil {
				return err
			}

			p, ok := engine.Preset(args[0])
			if !ok {
				return fmt.Errorf("%w: %q", resolver.ErrUnknownPreset, args[0])
			}
			snap := engine.Snapshot()
			return write(cmd.OutOrStdout(), opts, map[string]interface{}{
				"preset":     p,
				"icon":       snap.Icon(p.ID),
				"fields":     snap.FieldsFor(p.ID, false),
				"moreFields": snap.FieldsFor(p.ID, true),
			})
		},
	}
}

func newSearchCmd(opts *options) *cobra.Command {
	var (
		loc   locationFlags
		limit int
	)
	cmd := &cobra.Command{
		Use:   "search query",
		Short: "Search presets by name and terms",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := ruleengine.ParseGeometry(loc.Geometry)
			if err != nil {
				return err
			}

			engine, err := setup(cmd.Context(), opts, loc.Suggestions)
			if err != nil {
				return err
			}

			results := engine.Search(strings.Join(args, " "), g, engine.Locate(loc.context(cmd)), limit, loc.Suggestions)
			rows := make([]map[string]string, 0, len(results))
			for _, p := range results {
				rows = append(rows, map[string]string{"id": p.ID, "name": p.Name, "origin": p.Origin.String()})
			}
			return write(cmd.OutOrStdout(), opts, rows)
		},
	}
	loc.register(cmd)
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	return cmd
}

func newLocalesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "locales",
		Short: "List the locales the catalog has translations for",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := logger.NewCLI("warn", opts.Verbose)
			locales, err := catalog.NewLoader(os.DirFS(opts.DataDir), log).Locales()
			if err != nil {
				return err
			}
			return write(cmd.OutOrStdout(), opts, locales)
		},
	}
}

// setup loads the catalog and the optional overlays into a new engine.
func setup(ctx context.Context, opts *options, suggestions bool) (*resolver.Engine, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logger.NewCLI("warn", opts.Verbose)

	loader := catalog.NewLoader(os.DirFS(opts.DataDir), log)
	engine := resolver.New(log)
	if err := engine.SetLanguage(ctx, loader, opts.Locale); err != nil {
		return nil, err
	}

	if opts.Boundaries != "" {
		if err := loadAtlas(engine, loader, opts.Boundaries); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, err
			}
			log.Debug("no region boundaries, polygon location entries stay closed", slog.String("file", opts.Boundaries))
		}
	}

	if opts.CustomFile != "" {
		stored, err := store.NewFileStore(opts.CustomFile).List(ctx)
		if err != nil {
			return nil, err
		}
		presets, errs := store.CompileAll(stored)
		for _, err := range errs {
			log.Warn("skipping invalid custom preset", slog.String("error", err.Error()))
		}
		if err := engine.SetCustomPresets(presets); err != nil {
			return nil, err
		}
	}

	if suggestions {
		presets, err := loader.LoadSupplementary(ctx)
		if err != nil {
			return nil, err
		}
		if err := engine.RebuildSupplementary(presets); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

func loadAtlas(engine *resolver.Engine, loader *catalog.Loader, name string) error {
	f, err := loader.Open(name)
	if err != nil {
		return err
	}
	defer f.Close()

	boundaries, err := regions.Load(f)
	if err != nil {
		return fmt.Errorf("failed to load boundaries: %w", err)
	}
	engine.SetAtlas(&regions.Atlas{Regions: boundaries})
	return nil
}

// parseTags reads key=value arguments.
func parseTags(args []string) (ruleengine.Tags, error) {
	tags := make(ruleengine.Tags, len(args))
	for _, arg := range args {
		k, v, ok := strings.Cut(arg, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("invalid tag %q, expected key=value", arg)
		}
		tags[strings.TrimSpace(k)] = v
	}
	return tags, nil
}

// write prints v as indented JSON, or as YAML when requested. YAML output
// goes through JSON first so both formats share field names.
func write(w io.Writer, opts *options, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	if !opts.YAML {
		_, err = fmt.Fprintln(w, string(data))
		return err
	}

	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = w.Write(out)
	return err
}
