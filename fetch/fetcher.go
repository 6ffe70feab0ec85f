package fetch

import (
	"context"
	"fmt"

	"listing-scraper/extract"
)

// Request is one page load.
type Request struct {
	URL string
	// Marker is a CSS selector that must be present before the page counts
	// as loaded. Empty means no check.
	Marker string
	// Scrolls is how many times a rendered page is scrolled to the bottom
	// to trigger lazy-loaded content. Ignored by plain HTTP fetchers.
	Scrolls int
	Referer string
}

type Response struct {
	URL        string
	StatusCode int
	Body       []byte
	// Page is set when the fetcher already parsed the body as HTML.
	Page     *extract.Page
	Rendered bool
}

// HTML returns the parsed page, parsing the body on first use.
func (r *Response) HTML() (*extract.Page, error) {
	if r.Page != nil {
		return r.Page, nil
	}
	p, err := extract.ParseHTML(r.URL, r.Body)
	if err != nil {
		return nil, err
	}
	r.Page = p
	return p, nil
}

// Fetcher loads pages. Implementations must be safe for concurrent use;
// a fetcher that cannot navigate concurrently serializes internally.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (*Response, error)
	Close() error
}

// Opener is implemented by fetchers that hold a resource which must be
// acquired before the first Fetch.
type Opener interface {
	Open(ctx context.Context) error
}

// checkMarker parses resp and fails with ErrMarkerMissing when the marker
// is set but absent.
func checkMarker(resp *Response, marker string) error {
	if marker == "" {
		return nil
	}
	page, err := resp.HTML()
	if err != nil {
		return err
	}
	if !page.Has(marker) {
		return fmt.Errorf("%w: %q on %s", ErrMarkerMissing, marker, resp.URL)
	}
	return nil
}
