// Package sqlite persists polar buckets in a local SQLite database, the
// natural fit for a single-process onboard service with no network storage.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/saltline/polar-engine/internal/polar"
)

const schema = `
CREATE TABLE IF NOT EXISTS polar_buckets (
	speed_idx    INTEGER NOT NULL,
	angle_idx    INTEGER NOT NULL,
	sample_count INTEGER NOT NULL,
	mean_stw     REAL NOT NULL,
	m2           REAL NOT NULL,
	updated_at   TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (speed_idx, angle_idx)
);`

// Repo implements polar.Repository on a SQLite file.
type Repo struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and bootstraps the schema.
func Open(path string) (*Repo, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// The store's single writer goroutine is the only concurrent writer;
	// one connection avoids SQLITE_BUSY on overlapping upserts.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Repo{db: db}, nil
}

// LoadAll reads every persisted bucket.
func (r *Repo) LoadAll(ctx context.Context) (map[polar.Key]polar.Bucket, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT speed_idx, angle_idx, sample_count, mean_stw, m2 FROM polar_buckets`)
	if err != nil {
		return nil, fmt.Errorf("query buckets: %w", err)
	}
	defer rows.Close()

	buckets := make(map[polar.Key]polar.Bucket)
	for rows.Next() {
		var k polar.Key
		var b polar.Bucket
		if err := rows.Scan(&k.Speed, &k.Angle, &b.Count, &b.Mean, &b.M2); err != nil {
			return nil, fmt.Errorf("scan bucket: %w", err)
		}
		buckets[k] = b
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate buckets: %w", err)
	}
	return buckets, nil
}

// Upsert writes one bucket, replacing any previous state for its key.
func (r *Repo) Upsert(ctx context.Context, key polar.Key, b polar.Bucket) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO polar_buckets (speed_idx, angle_idx, sample_count, mean_stw, m2)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (speed_idx, angle_idx) DO UPDATE SET
			sample_count = excluded.sample_count,
			mean_stw     = excluded.mean_stw,
			m2           = excluded.m2,
			updated_at   = CURRENT_TIMESTAMP`,
		key.Speed, key.Angle, b.Count, b.Mean, b.M2)
	if err != nil {
		return fmt.Errorf("upsert bucket (%d,%d): %w", key.Speed, key.Angle, err)
	}
	return nil
}

// Clear deletes all persisted buckets.
func (r *Repo) Clear(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM polar_buckets`); err != nil {
		return fmt.Errorf("clear buckets: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (r *Repo) Close() error {
	return r.db.Close()
}
