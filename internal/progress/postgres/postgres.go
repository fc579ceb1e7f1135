// Package postgres provides a PostgreSQL-backed progress sink.
//
// One finished practice session becomes one upsert into the learner's
// cumulative user_study_progress row, and the updated cumulative repeat count
// is then used to mark any now-satisfied assignments complete in the same
// call. The session engine never computes assignment completion itself; it
// only supplies raw session stats.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/42Seoul/Speak-King-Korean-LMS/internal/progress"
)

// Schema is the SQL DDL for the user_study_progress and assignments tables.
// Execute it via [Sink.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS user_study_progress (
    user_id              TEXT NOT NULL,
    study_set_id         TEXT NOT NULL,
    total_repeat_count   INT NOT NULL DEFAULT 0,
    total_speaking_count INT NOT NULL DEFAULT 0,
    total_skip_count     INT NOT NULL DEFAULT 0,
    last_studied_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (user_id, study_set_id)
);
CREATE TABLE IF NOT EXISTS assignments (
    id           TEXT PRIMARY KEY,
    student_id   TEXT NOT NULL,
    study_set_id TEXT NOT NULL,
    target_count INT NOT NULL DEFAULT 1,
    due_at       TIMESTAMPTZ,
    completed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_assignments_student_set ON assignments(student_id, study_set_id);
`

// DB is the database interface used by [Sink]. Both *pgxpool.Pool and
// *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Sink persists per-learner cumulative practice progress.
type Sink struct {
	db DB
}

// NewSink creates a new [Sink] that uses the given database connection or
// pool. The caller is responsible for calling [Sink.Migrate] to ensure the
// schema exists before issuing queries.
func NewSink(db DB) *Sink {
	return &Sink{db: db}
}

// Migrate executes the [Schema] DDL against the database, creating the
// progress and assignment tables if they do not already exist.
func (s *Sink) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("progress: migrate: %w", err)
	}
	return nil
}

// ReportSessionComplete records one finished session for a learner: the
// cumulative progress row is upserted (repeat count incremented by one,
// speaking and skip counts accumulated) and any open assignment for the same
// learner and study set whose target is now met is marked complete.
//
// Returns the learner's updated cumulative repeat count.
func (s *Sink) ReportSessionComplete(ctx context.Context, userID, studySetID string, stats progress.Stats) (int, error) {
	const upsert = `
		INSERT INTO user_study_progress (
			user_id, study_set_id,
			total_repeat_count, total_speaking_count, total_skip_count,
			last_studied_at
		) VALUES ($1, $2, 1, $3, $4, now())
		ON CONFLICT (user_id, study_set_id) DO UPDATE SET
			total_repeat_count   = user_study_progress.total_repeat_count + 1,
			total_speaking_count = user_study_progress.total_speaking_count + EXCLUDED.total_speaking_count,
			total_skip_count     = user_study_progress.total_skip_count + EXCLUDED.total_skip_count,
			last_studied_at      = now()
		RETURNING total_repeat_count`

	var totalRepeats int
	err := s.db.QueryRow(ctx, upsert, userID, studySetID, stats.Spoken, stats.Skipped).Scan(&totalRepeats)
	if err != nil {
		return 0, fmt.Errorf("progress: upsert for user %q set %q: %w", userID, studySetID, err)
	}

	const complete = `
		UPDATE assignments
		SET completed_at = now()
		WHERE student_id = $1
		  AND study_set_id = $2
		  AND completed_at IS NULL
		  AND target_count <= $3`

	if _, err := s.db.Exec(ctx, complete, userID, studySetID, totalRepeats); err != nil {
		return totalRepeats, fmt.Errorf("progress: complete assignments for user %q set %q: %w", userID, studySetID, err)
	}
	return totalRepeats, nil
}

// ForUser binds the sink to one learner, yielding the narrow [progress.Reporter]
// the session engine consumes.
func (s *Sink) ForUser(userID string) progress.Reporter {
	return progress.ReporterFunc(func(ctx context.Context, studySetID string, stats progress.Stats) error {
		_, err := s.ReportSessionComplete(ctx, userID, studySetID, stats)
		return err
	})
}

// Ping verifies the database is reachable. Used by readiness checks.
func (s *Sink) Ping(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("progress: ping: %w", err)
	}
	return nil
}
