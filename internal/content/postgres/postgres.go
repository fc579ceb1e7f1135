// Package postgres provides a PostgreSQL-backed study-set store.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/42Seoul/Speak-King-Korean-LMS/internal/content"
)

// Schema is the SQL DDL for the study_sets and study_items tables. Execute it
// via [Store.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS study_sets (
    id                  TEXT PRIMARY KEY,
    title               TEXT NOT NULL,
    target_repeat_count INT NOT NULL DEFAULT 1 CHECK (target_repeat_count >= 1),
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS study_items (
    id           TEXT PRIMARY KEY,
    study_set_id TEXT NOT NULL REFERENCES study_sets(id) ON DELETE CASCADE,
    position     INT NOT NULL,
    text         TEXT NOT NULL,
    translation  TEXT NOT NULL DEFAULT '',
    audio_url    TEXT NOT NULL,
    UNIQUE (study_set_id, position)
);
CREATE INDEX IF NOT EXISTS idx_study_items_set ON study_items(study_set_id);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Store is a [content.Store] backed by a PostgreSQL database.
type Store struct {
	db DB
}

// Compile-time interface check.
var _ content.Store = (*Store)(nil)

// NewStore creates a new [Store] that uses the given database connection or
// pool. The caller is responsible for calling [Store.Migrate] to ensure the
// schema exists before issuing queries.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating the
// study_sets and study_items tables if they do not already exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("content: migrate: %w", err)
	}
	return nil
}

// LoadStudySet loads the set row and its items ordered by position.
func (s *Store) LoadStudySet(ctx context.Context, id string) (*content.StudySet, error) {
	const setQuery = `
		SELECT id, title, target_repeat_count
		FROM study_sets
		WHERE id = $1`

	var set content.StudySet
	err := s.db.QueryRow(ctx, setQuery, id).Scan(&set.ID, &set.Title, &set.TargetRepeatCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("content: load study set %q: %w", id, content.ErrNotFound)
		}
		return nil, fmt.Errorf("content: load study set %q: %w", id, err)
	}

	const itemQuery = `
		SELECT id, text, translation, audio_url
		FROM study_items
		WHERE study_set_id = $1
		ORDER BY position`

	rows, err := s.db.Query(ctx, itemQuery, id)
	if err != nil {
		return nil, fmt.Errorf("content: load items for %q: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var item content.StudyItem
		if err := rows.Scan(&item.ID, &item.Text, &item.Translation, &item.AudioURL); err != nil {
			return nil, fmt.Errorf("content: scan item for %q: %w", id, err)
		}
		set.Items = append(set.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("content: load items for %q: %w", id, err)
	}

	if err := set.Validate(); err != nil {
		return nil, err
	}
	return &set, nil
}

// Ping verifies the database is reachable. Used by readiness checks.
func (s *Store) Ping(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("content: ping: %w", err)
	}
	return nil
}
