package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"listing-scraper/models"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS listings (
	url TEXT PRIMARY KEY,
	site TEXT NOT NULL,
	run_id TEXT NOT NULL,
	fields TEXT NOT NULL,
	partial INTEGER NOT NULL DEFAULT 0,
	scraped_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_listings_site ON listings(site);
`

// SQLiteWriter stores listings in a local SQLite file with the same layout
// as the Postgres table; fields are kept as JSON text.
type SQLiteWriter struct {
	db *sql.DB
}

func NewSQLiteWriter(ctx context.Context, path string) (*SQLiteWriter, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("could not create output dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// a single connection keeps writes serialized and :memory: databases shared
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}
	return &SQLiteWriter{db: db}, nil
}

func (w *SQLiteWriter) Write(ctx context.Context, l models.Listing) error {
	fields, err := json.Marshal(l.Fields)
	if err != nil {
		return fmt.Errorf("encode fields for %s: %w", l.URL, err)
	}

	_, err = w.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO listings (url, site, run_id, fields, partial, scraped_at) VALUES (?, ?, ?, ?, ?, ?)`,
		l.URL, l.Site, l.RunID, string(fields), l.Partial, l.ScrapedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("sqlite insert %s: %w", l.URL, err)
	}
	return nil
}

// Count returns the number of stored listings for site, or all sites when
// site is empty.
func (w *SQLiteWriter) Count(ctx context.Context, site string) (int, error) {
	var n int
	var err error
	if site == "" {
		err = w.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings`).Scan(&n)
	} else {
		err = w.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM listings WHERE site = ?`, site).Scan(&n)
	}
	return n, err
}

func (w *SQLiteWriter) Close() error {
	return w.db.Close()
}
