// Package store persists user-authored custom presets. PostgreSQL backs the
// API server; a read-only YAML file serves the CLI and single-node setups.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rafaeljc/mimir/internal/locationset"
	"github.com/rafaeljc/mimir/internal/ruleengine"
	"github.com/rafaeljc/mimir/internal/value"
)

// IDPrefix namespaces custom presets so they can never shadow catalog ids.
const IDPrefix = "custom/"

var (
	ErrNotFound  = errors.New("custom preset not found")
	ErrDuplicate = errors.New("custom preset already exists")
	ErrReadOnly  = errors.New("custom preset store is read-only")
)

// CustomPreset is the persisted form of a user-authored preset.
type CustomPreset struct {
	ID       string            `json:"id" yaml:"id"`
	Name     string            `json:"name" yaml:"name"`
	Tags     map[string]string `json:"tags" yaml:"tags"`
	Geometry []string          `json:"geometry" yaml:"geometry"`
	AddTags  map[string]string `json:"addTags,omitempty" yaml:"addTags,omitempty"`
	Icon     string            `json:"icon,omitempty" yaml:"icon,omitempty"`
	Terms    []string          `json:"terms,omitempty" yaml:"terms,omitempty"`

	// MatchScore weighs each matched tag. Nil means ruleengine.DefaultMatchScore;
	// an explicit zero is kept.
	MatchScore *float64 `json:"matchScore,omitempty" yaml:"matchScore,omitempty"`

	// Include and Exclude are location set entries (region codes, "001").
	Include []string `json:"include,omitempty" yaml:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`

	CreatedAt time.Time `json:"createdAt" yaml:"-"`
	UpdatedAt time.Time `json:"updatedAt" yaml:"-"`
}

// CustomPresetRepository defines the persistence operations for custom presets.
type CustomPresetRepository interface {
	// List returns every custom preset ordered by id.
	List(ctx context.Context) ([]*CustomPreset, error)

	Get(ctx context.Context, id string) (*CustomPreset, error)

	// Create inserts p and fills in its timestamps. An existing id yields ErrDuplicate.
	Create(ctx context.Context, p *CustomPreset) error

	Delete(ctx context.Context, id string) error

	// Version changes whenever the stored set changes. Pollers compare it to
	// decide whether to reload.
	Version(ctx context.Context) (int64, error)
}

// Normalize fills in the id prefix and trims whitespace.
func (c *CustomPreset) Normalize() {
	c.ID = strings.TrimSpace(c.ID)
	if c.ID != "" && !strings.HasPrefix(c.ID, IDPrefix) {
		c.ID = IDPrefix + c.ID
	}
	c.Name = strings.TrimSpace(c.Name)
}

// Validate checks the preset can be compiled.
func (c *CustomPreset) Validate() error {
	if c.ID == "" || c.ID == IDPrefix {
		return fmt.Errorf("custom preset id is required")
	}
	if !strings.HasPrefix(c.ID, IDPrefix) {
		return fmt.Errorf("custom preset id %q must start with %q", c.ID, IDPrefix)
	}
	if c.Name == "" {
		return fmt.Errorf("custom preset %s: name is required", c.ID)
	}
	_, err := c.ToPreset()
	return err
}

// ToPreset compiles the custom preset into a matchable preset.
func (c *CustomPreset) ToPreset() (*ruleengine.Preset, error) {
	if c.MatchScore != nil && *c.MatchScore < 0 {
		return nil, fmt.Errorf("custom preset %s: matchScore must be non-negative", c.ID)
	}

	geoms := make([]ruleengine.Geometry, 0, len(c.Geometry))
	for _, g := range c.Geometry {
		geom, err := ruleengine.ParseGeometry(g)
		if err != nil {
			return nil, fmt.Errorf("custom preset %s: %w", c.ID, err)
		}
		geoms = append(geoms, geom)
	}

	var ls *locationset.Set
	if len(c.Include) > 0 || len(c.Exclude) > 0 {
		var err error
		ls, err = locationset.Parse(value.Map(map[string]value.Value{
			"include": value.Strings(c.Include...),
			"exclude": value.Strings(c.Exclude...),
		}))
		if err != nil {
			return nil, fmt.Errorf("custom preset %s: %w", c.ID, err)
		}
	}

	var addTags ruleengine.Tags
	if len(c.AddTags) > 0 {
		addTags = c.AddTags
	}

	p, err := ruleengine.NewPreset(ruleengine.Preset{
		ID:          c.ID,
		Name:        c.Name,
		Tags:        c.Tags,
		AddTags:     addTags,
		Geometry:    geoms,
		LocationSet: ls,
		Searchable:  true,
		Terms:       c.Terms,
		Icon:        c.Icon,
		Origin:      ruleengine.OriginCustom,
	})
	if err != nil {
		return nil, err
	}
	if c.MatchScore != nil {
		p.MatchScore = *c.MatchScore
	}
	return p, nil
}

// CompileAll converts stored presets for the engine, skipping (and
// reporting) the ones that no longer compile.
func CompileAll(custom []*CustomPreset) ([]*ruleengine.Preset, []error) {
	out := make([]*ruleengine.Preset, 0, len(custom))
	var errs []error
	for _, c := range custom {
		p, err := c.ToPreset()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, p)
	}
	return out, errs
}
