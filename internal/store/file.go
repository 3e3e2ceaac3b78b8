package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

var _ CustomPresetRepository = (*FileStore)(nil)

// fileDocument is the YAML layout of a custom preset file.
type fileDocument struct {
	Presets []*CustomPreset `yaml:"presets"`
}

// FileStore reads custom presets from a YAML file. It is read-only; the file
// is re-read on every List so edits are picked up by pollers.
type FileStore struct {
	path string
}

// NewFileStore creates a store over the YAML file at path.
func NewFileStore(path string) *FileStore {
	if path == "" {
		panic("store: file path cannot be empty")
	}
	return &FileStore{path: path}
}

// List parses the file and returns its presets ordered by id.
func (s *FileStore) List(_ context.Context) ([]*CustomPreset, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("failed to open custom preset file: %w", err)
	}
	defer f.Close()
	return DecodeYAML(f)
}

// Get returns one preset from the file.
func (s *FileStore) Get(ctx context.Context, id string) (*CustomPreset, error) {
	presets, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, p := range presets {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Create always fails.
func (s *FileStore) Create(_ context.Context, _ *CustomPreset) error {
	return ErrReadOnly
}

// Delete always fails.
func (s *FileStore) Delete(_ context.Context, _ string) error {
	return ErrReadOnly
}

// Version is the file's modification time.
func (s *FileStore) Version(_ context.Context) (int64, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, fmt.Errorf("failed to stat custom preset file: %w", err)
	}
	return info.ModTime().UnixNano(), nil
}

// DecodeYAML reads a custom preset document, normalizing and validating each
// entry. Duplicate ids are rejected.
func DecodeYAML(r io.Reader) ([]*CustomPreset, error) {
	var doc fileDocument
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to decode custom presets: %w", err)
	}

	seen := make(map[string]struct{}, len(doc.Presets))
	for i, p := range doc.Presets {
		if p == nil {
			return nil, fmt.Errorf("custom preset #%d is empty", i+1)
		}
		p.Normalize()
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicate, p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	sort.Slice(doc.Presets, func(i, j int) bool { return doc.Presets[i].ID < doc.Presets[j].ID })
	if doc.Presets == nil {
		doc.Presets = []*CustomPreset{}
	}
	return doc.Presets, nil
}
