package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"listing-scraper/extract"
	"listing-scraper/fetch"
)

const defaultDetailAttempts = 3

// MissingFieldsError reports required fields still nil after extraction.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "required fields missing: " + strings.Join(e.Fields, ", ")
}

// DetailResult is the outcome of one detail URL. Partial is set when the
// attempts ran out with required fields still nil; Fields then holds the
// best values seen, with nil for the rest.
type DetailResult struct {
	Fields   map[string]any
	Attempts int
	Partial  bool
	Missing  []string
	// Reason is the last structural problem when Partial is set.
	Reason error
}

type DetailFetcher struct {
	spec DetailSpec
	req  *Requester
	log  *zap.Logger
}

func NewDetailFetcher(spec DetailSpec, req *Requester, log *zap.Logger) *DetailFetcher {
	if spec.Attempts < 1 {
		spec.Attempts = defaultDetailAttempts
	}
	return &DetailFetcher{spec: spec, req: req, log: log}
}

// FetchDetail loads url and extracts its fields, re-fetching the whole
// page while required fields are missing or the marker never shows, up
// to the attempt ceiling. A page that renders with every required field
// costs exactly one fetch.
//
// Transport and render failures are retried inside the Requester; once
// those are exhausted the error is returned and the URL is skipped.
func (d *DetailFetcher) FetchDetail(ctx context.Context, url string) (DetailResult, error) {
	var (
		best    map[string]any
		lastErr error
	)

	for attempt := 1; attempt <= d.spec.Attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return DetailResult{Attempts: attempt - 1}, err
		}

		resp, err := d.req.Do(ctx, fetch.Request{
			URL:     url,
			Marker:  d.spec.Marker,
			Scrolls: d.spec.Scrolls,
		})
		if errors.Is(err, fetch.ErrMarkerMissing) {
			lastErr = err
			d.log.Warn("detail marker not found",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", d.spec.Attempts),
			)
			continue
		}
		if err != nil {
			return DetailResult{Attempts: attempt}, err
		}

		page, err := resp.HTML()
		if err != nil {
			return DetailResult{Attempts: attempt}, err
		}

		best = mergeFields(best, extract.Extract(page, d.spec.Rules))
		missing := extract.Missing(best, d.spec.Rules)
		if len(missing) == 0 {
			return DetailResult{Fields: best, Attempts: attempt}, nil
		}

		lastErr = &MissingFieldsError{Fields: missing}
		d.log.Warn("detail missing required fields",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", d.spec.Attempts),
			zap.Strings("missing", missing),
		)
	}

	if best == nil {
		best = extract.Empty(d.spec.Rules)
	}
	return DetailResult{
		Fields:   best,
		Attempts: d.spec.Attempts,
		Partial:  true,
		Missing:  extract.Missing(best, d.spec.Rules),
		Reason:   fmt.Errorf("after %d attempts: %w", d.spec.Attempts, lastErr),
	}, nil
}

// mergeFields overlays next onto prev. A non-nil value replaces nil but a
// nil never erases an earlier hit.
func mergeFields(prev, next map[string]any) map[string]any {
	if prev == nil {
		return next
	}
	for k, v := range next {
		if v != nil || prev[k] == nil {
			prev[k] = v
		}
	}
	return prev
}
