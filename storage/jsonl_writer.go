package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"listing-scraper/models"
)

// jsonRecord is the line format: the record's fields plus metadata.
type jsonRecord struct {
	URL       string         `json:"url"`
	Site      string         `json:"site"`
	RunID     string         `json:"run_id"`
	ScrapedAt time.Time      `json:"scraped_at"`
	Partial   bool           `json:"partial"`
	Missing   []string       `json:"missing,omitempty"`
	Fields    map[string]any `json:"fields"`
}

func newJSONRecord(l models.Listing) jsonRecord {
	return jsonRecord{
		URL:       l.URL,
		Site:      l.Site,
		RunID:     l.RunID,
		ScrapedAt: l.ScrapedAt.UTC(),
		Partial:   l.Partial,
		Missing:   l.Missing,
		Fields:    l.Fields,
	}
}

// JSONLWriter appends one JSON object per listing. Nil fields are kept as
// null so every line carries the full column set.
type JSONLWriter struct {
	mu   sync.Mutex
	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

func NewJSONLWriter(path string) (*JSONLWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("could not create output dir: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("could not open file: %w", err)
	}
	buf := bufio.NewWriter(file)
	return &JSONLWriter{file: file, buf: buf, enc: json.NewEncoder(buf)}, nil
}

func (w *JSONLWriter) Write(_ context.Context, l models.Listing) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.enc.Encode(newJSONRecord(l)); err != nil {
		return fmt.Errorf("jsonl encode: %w", err)
	}
	return w.buf.Flush()
}

func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.buf.Flush()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	w.file = nil
	return err
}
