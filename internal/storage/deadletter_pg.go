package storage

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	// Registers the postgres driver.
	_ "github.com/lib/pq"

	"github.com/jonesrussell/newsflow/internal/domain"
)

// deadLetterSchema creates the table when absent, so a fresh database
// needs no separate migration step for the DLQ.
const deadLetterSchema = `
CREATE TABLE IF NOT EXISTS dead_letters (
	id         TEXT PRIMARY KEY,
	kind       TEXT NOT NULL,
	source_id  TEXT NOT NULL,
	ref        TEXT NOT NULL,
	reason     TEXT NOT NULL,
	attempts   INT  NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS dead_letters_source_idx ON dead_letters (source_id, created_at);`

// DeadLetterRepository persists abandoned work to PostgreSQL for
// operator inspection. It implements fetch.DeadLetterSink.
type DeadLetterRepository struct {
	db *sqlx.DB
}

// NewDeadLetterRepository connects to Postgres and ensures the schema.
func NewDeadLetterRepository(dsn string) (*DeadLetterRepository, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if _, err := db.Exec(deadLetterSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure dead letter schema: %w", err)
	}

	return &DeadLetterRepository{db: db}, nil
}

// Record inserts a dead letter. Re-recording the same ID is a no-op so
// replay after a restart cannot duplicate rows.
func (r *DeadLetterRepository) Record(ctx context.Context, dl *domain.DeadLetter) error {
	const query = `
		INSERT INTO dead_letters (id, kind, source_id, ref, reason, attempts, created_at)
		VALUES (:id, :kind, :source_id, :ref, :reason, :attempts, :created_at)
		ON CONFLICT (id) DO NOTHING`

	if _, err := r.db.NamedExecContext(ctx, query, dl); err != nil {
		return fmt.Errorf("record dead letter: %w", err)
	}
	return nil
}

// BySource returns the most recent dead letters for a source.
func (r *DeadLetterRepository) BySource(ctx context.Context, sourceID string, limit int) ([]domain.DeadLetter, error) {
	const query = `
		SELECT id, kind, source_id, ref, reason, attempts, created_at
		FROM dead_letters
		WHERE source_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	letters := make([]domain.DeadLetter, 0, limit)
	if err := r.db.SelectContext(ctx, &letters, query, sourceID, limit); err != nil {
		return nil, fmt.Errorf("query dead letters: %w", err)
	}
	return letters, nil
}

// Purge removes dead letters older than the given interval expressed
// in days.
func (r *DeadLetterRepository) Purge(ctx context.Context, olderThanDays int) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM dead_letters WHERE created_at < NOW() - ($1 || ' days')::interval`,
		olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("purge dead letters: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge dead letters: %w", err)
	}
	return n, nil
}

// Close releases the database pool.
func (r *DeadLetterRepository) Close() error {
	return r.db.Close()
}
