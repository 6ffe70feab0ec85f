package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"listing-scraper/config"
	"listing-scraper/models"
)

const listingsSchema = `
CREATE TABLE IF NOT EXISTS listings (
	id BIGSERIAL PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	site TEXT NOT NULL,
	run_id TEXT NOT NULL,
	fields JSONB NOT NULL,
	partial BOOLEAN NOT NULL DEFAULT FALSE,
	scraped_at TIMESTAMPTZ NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_listings_site ON listings(site);
CREATE INDEX IF NOT EXISTS idx_listings_run ON listings(run_id);
`

const insertListingSQL = `
INSERT INTO listings (url, site, run_id, fields, partial, scraped_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (url) DO NOTHING;
`

// PostgresWriter buffers listings and inserts them in batches. Rows whose
// URL is already stored are skipped by the unique constraint.
type PostgresWriter struct {
	pool      *pgxpool.Pool
	batchSize int

	mu      sync.Mutex
	pending []models.Listing
	written int
}

func NewPostgresWriter(ctx context.Context, cfg config.PostgresConfig) (*PostgresWriter, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect postgres: %w", err)
	}

	batch := cfg.BatchSize
	if batch < 1 {
		batch = 50
	}
	return &PostgresWriter{pool: pool, batchSize: batch}, nil
}

func (w *PostgresWriter) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	if _, err := w.pool.Exec(ctx, listingsSchema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// Write queues l and flushes once a full batch is pending.
func (w *PostgresWriter) Write(ctx context.Context, l models.Listing) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending = append(w.pending, l)
	if len(w.pending) < w.batchSize {
		return nil
	}
	return w.flushLocked(ctx)
}

func (w *PostgresWriter) Written() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}

// Close flushes what is pending and closes the pool.
func (w *PostgresWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pool == nil {
		return nil
	}

	err := w.flushLocked(context.Background())
	w.pool.Close()
	w.pool = nil
	return err
}

func (w *PostgresWriter) flushLocked(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	enqueued := 0
	for _, l := range w.pending {
		url := strings.TrimSpace(l.URL)
		if url == "" {
			continue
		}
		fields, err := json.Marshal(l.Fields)
		if err != nil {
			return fmt.Errorf("encode fields for %s: %w", url, err)
		}
		batch.Queue(insertListingSQL, url, l.Site, l.RunID, fields, l.Partial, l.ScrapedAt.UTC())
		enqueued++
	}
	if enqueued == 0 {
		w.pending = nil
		return nil
	}

	// Rows stay pending until the whole batch is accepted.
	results := w.pool.SendBatch(ctx, batch)
	for i := 0; i < enqueued; i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("batch insert failed at row %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("batch insert: %w", err)
	}
	w.pending = nil
	w.written += enqueued
	return nil
}
