package config

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// CatalogConfig locates the preset catalog and its companion data files.
type CatalogConfig struct {
	// DataDir holds presets.json, fields.json, translations/ and the
	// optional supplementary, boundary and shape files.
	DataDir       string `envconfig:"DATA_DIR" default:"./data/presets"`
	DefaultLocale string `envconfig:"DEFAULT_LOCALE" default:"en"`

	// Supplementary enables the brand/operator overlay (nsi_presets.json).
	Supplementary bool `envconfig:"SUPPLEMENTARY" default:"true"`

	BoundariesFile string `envconfig:"BOUNDARIES_FILE" default:"borders.json"`
	ShapesFile     string `envconfig:"SHAPES_FILE" default:"featureCollection.json"`

	// CustomPresetsFile is read when no database is configured.
	CustomPresetsFile string `envconfig:"CUSTOM_PRESETS_FILE"`

	LoadTimeout time.Duration `envconfig:"LOAD_TIMEOUT" default:"30s" validate:"gt=0"`
}

// Validate checks CatalogConfig fields for correctness.
func (c *CatalogConfig) Validate() error {
	if err := validateNoWhitespace(c.DataDir, "catalog data dir"); err != nil {
		return err
	}
	if _, err := language.Parse(c.DefaultLocale); err != nil {
		return fmt.Errorf("invalid default locale %q: %w", c.DefaultLocale, err)
	}
	if strings.ContainsAny(c.BoundariesFile, `/\`) || strings.ContainsAny(c.ShapesFile, `/\`) {
		return fmt.Errorf("boundary and shape files must be names inside the catalog data dir")
	}
	return nil
}
