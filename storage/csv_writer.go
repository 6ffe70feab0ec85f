package storage

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"listing-scraper/models"
)

// metaColumns follow the site's own columns in every flat output.
var metaColumns = []string{"site", "run_id", "scraped_at", "partial"}

// CSVWriter streams listings to a CSV file, one row per Write.
// The header is the site's columns followed by metaColumns.
type CSVWriter struct {
	path    string
	columns []string

	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
	rows   int
}

// NewCSVWriter creates the output directory if needed, truncates path and
// writes the header row.
func NewCSVWriter(path string, columns []string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("could not create output dir: %w", err)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("could not create file: %w", err)
	}

	w := &CSVWriter{
		path:    path,
		columns: columns,
		file:    file,
		writer:  csv.NewWriter(file),
	}

	header := append(append([]string(nil), columns...), metaColumns...)
	if err := w.writer.Write(header); err != nil {
		file.Close()
		return nil, fmt.Errorf("csv header: %w", err)
	}
	return w, nil
}

func (w *CSVWriter) Write(_ context.Context, l models.Listing) error {
	row := make([]string, 0, len(w.columns)+len(metaColumns))
	for _, c := range w.columns {
		row = append(row, l.Value(c))
	}
	row = append(row,
		l.Site,
		l.RunID,
		l.ScrapedAt.UTC().Format(time.RFC3339),
		strconv.FormatBool(l.Partial),
	)

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.writer.Write(row); err != nil {
		return fmt.Errorf("csv write error: %w", err)
	}
	// flush per row so an interrupted crawl keeps what it already emitted
	w.writer.Flush()
	if err := w.writer.Error(); err != nil {
		return fmt.Errorf("csv write error: %w", err)
	}
	w.rows++
	return nil
}

func (w *CSVWriter) Rows() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rows
}

func (w *CSVWriter) Path() string { return w.path }

func (w *CSVWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	w.writer.Flush()
	err := w.writer.Error()
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	w.file = nil
	return err
}
