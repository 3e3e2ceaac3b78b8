package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Compile-time check to verify that PostgresStore implements CustomPresetRepository.
var _ CustomPresetRepository = (*PostgresStore)(nil)

// PostgresStore is the implementation of CustomPresetRepository backed by PostgreSQL.
// Tag maps are stored as jsonb; every mutation bumps the revision row in the
// same transaction.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore creates a new repository instance with the given connection pool.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	if db == nil {
		panic("store: database pool cannot be nil")
	}
	return &PostgresStore{db: db}
}

const selectColumns = `id, name, tags, geometry, add_tags, icon, terms, include_regions, exclude_regions, match_score, created_at, updated_at`

// List returns all custom presets ordered by id.
func (s *PostgresStore) List(ctx context.Context) ([]*CustomPreset, error) {
	rows, err := s.db.Query(ctx, `SELECT `+selectColumns+` FROM custom_presets ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list custom presets: %w", err)
	}
	defer rows.Close()

	presets := make([]*CustomPreset, 0)
	for rows.Next() {
		p, err := scanPreset(rows)
		if err != nil {
			return nil, err
		}
		presets = append(presets, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return presets, nil
}

// Get fetches one custom preset.
func (s *PostgresStore) Get(ctx context.Context, id string) (*CustomPreset, error) {
	row := s.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM custom_presets WHERE id = $1`, id)
	p, err := scanPreset(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return p, err
}

// Create inserts a new custom preset. The RETURNING clause fills the
// server-generated timestamps.
func (s *PostgresStore) Create(ctx context.Context, p *CustomPreset) error {
	tags, err := json.Marshal(p.Tags)
	if err != nil {
		return fmt.Errorf("failed to encode tags: %w", err)
	}
	addTags, err := json.Marshal(p.AddTags)
	if err != nil {
		return fmt.Errorf("failed to encode addTags: %w", err)
	}

	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO custom_presets (id, name, tags, geometry, add_tags, icon, terms, include_regions, exclude_regions, match_score)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			RETURNING created_at, updated_at
		`,
			p.ID, p.Name, tags, nonNil(p.Geometry), addTags, p.Icon,
			nonNil(p.Terms), nonNil(p.Include), nonNil(p.Exclude), p.MatchScore,
		).Scan(&p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			var pgErr *pgconn.PgError
			// 23505: unique_violation
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return fmt.Errorf("%w: %s", ErrDuplicate, p.ID)
			}
			return fmt.Errorf("failed to insert custom preset: %w", err)
		}
		return bumpRevision(ctx, tx)
	})
}

// Delete removes a custom preset.
func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM custom_presets WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("failed to delete custom preset: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return bumpRevision(ctx, tx)
	})
}

// Version returns the revision counter.
func (s *PostgresStore) Version(ctx context.Context) (int64, error) {
	var rev int64
	if err := s.db.QueryRow(ctx, `SELECT revision FROM custom_preset_revision WHERE singleton`).Scan(&rev); err != nil {
		return 0, fmt.Errorf("failed to read custom preset revision: %w", err)
	}
	return rev, nil
}

func bumpRevision(ctx context.Context, tx pgx.Tx) error {
	if _, err := tx.Exec(ctx, `UPDATE custom_preset_revision SET revision = revision + 1 WHERE singleton`); err != nil {
		return fmt.Errorf("failed to bump custom preset revision: %w", err)
	}
	return nil
}

func scanPreset(row pgx.Row) (*CustomPreset, error) {
	var p CustomPreset
	var tags, addTags []byte
	if err := row.Scan(
		&p.ID,
		&p.Name,
		&tags,
		&p.Geometry,
		&addTags,
		&p.Icon,
		&p.Terms,
		&p.Include,
		&p.Exclude,
		&p.MatchScore,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan custom preset row: %w", err)
	}
	if err := json.Unmarshal(tags, &p.Tags); err != nil {
		return nil, fmt.Errorf("custom preset %s: malformed tags: %w", p.ID, err)
	}
	if len(addTags) > 0 {
		if err := json.Unmarshal(addTags, &p.AddTags); err != nil {
			return nil, fmt.Errorf("custom preset %s: malformed addTags: %w", p.ID, err)
		}
	}
	return &p, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
