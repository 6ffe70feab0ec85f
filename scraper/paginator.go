package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"listing-scraper/fetch"
	"listing-scraper/models"
)

// ListPage is one list page's detail items and the cursor after it.
// Next is nil when the crawl should stop after this page.
type ListPage struct {
	Items []models.ListItem
	Next  *models.PageCursor
}

type Paginator interface {
	FetchListPage(ctx context.Context, cursor models.PageCursor) (ListPage, error)
}

// NewPaginator picks the paginator for spec.Format.
func NewPaginator(spec ListSpec, req *Requester, log *zap.Logger) (Paginator, error) {
	switch spec.Format {
	case ListHTML:
		if spec.LinkSelector == "" {
			return nil, errors.New("html list needs a link selector")
		}
		return &HTMLPaginator{spec: spec, req: req, log: log}, nil
	case ListJSON:
		if spec.Decode == nil {
			return nil, errors.New("json list needs a decoder")
		}
		return &JSONPaginator{spec: spec, req: req, log: log}, nil
	}
	return nil, fmt.Errorf("unknown list format %d", spec.Format)
}

// HTMLPaginator collects detail links from an HTML list page and moves to
// the next page by incrementing the page query parameter.
type HTMLPaginator struct {
	spec ListSpec
	req  *Requester
	log  *zap.Logger
}

func (p *HTMLPaginator) FetchListPage(ctx context.Context, cursor models.PageCursor) (ListPage, error) {
	resp, err := p.req.Do(ctx, fetch.Request{
		URL:     cursor.URL,
		Marker:  p.spec.marker(),
		Scrolls: p.spec.Scrolls,
	})
	if errors.Is(err, fetch.ErrMarkerMissing) {
		p.log.Info("list marker absent, no more listings",
			zap.String("url", cursor.URL),
			zap.String("marker", p.spec.marker()),
		)
		return ListPage{}, nil
	}
	if err != nil {
		return ListPage{}, fmt.Errorf("list page %d: %w", cursor.Page, err)
	}

	page, err := resp.HTML()
	if err != nil {
		return ListPage{}, fmt.Errorf("list page %d: %w", cursor.Page, err)
	}

	links := page.Links(p.spec.LinkSelector)
	if len(links) == 0 {
		return ListPage{}, nil
	}

	items := make([]models.ListItem, len(links))
	for i, l := range links {
		items[i] = models.ListItem{URL: l}
	}

	next, err := NextPageCursor(cursor, p.spec.pageParam())
	if err != nil {
		return ListPage{}, fmt.Errorf("list page %d: %w", cursor.Page, err)
	}
	return ListPage{Items: items, Next: &next}, nil
}

// JSONPaginator decodes list API responses. Items may carry seed fields
// that later merge with the detail page.
type JSONPaginator struct {
	spec ListSpec
	req  *Requester
	log  *zap.Logger
}

func (p *JSONPaginator) FetchListPage(ctx context.Context, cursor models.PageCursor) (ListPage, error) {
	resp, err := p.req.Do(ctx, fetch.Request{URL: cursor.URL, Scrolls: p.spec.Scrolls})
	if err != nil {
		return ListPage{}, fmt.Errorf("list page %d: %w", cursor.Page, err)
	}

	decoded, err := p.spec.Decode(resp.Body)
	if err != nil {
		return ListPage{}, fmt.Errorf("list page %d: %w", cursor.Page, err)
	}

	p.log.Debug("decoded list page",
		zap.String("url", cursor.URL),
		zap.Int("page", cursor.Page),
		zap.Int("items", len(decoded.Items)),
		zap.Int("total_pages", decoded.TotalPages),
	)

	if len(decoded.Items) == 0 {
		return ListPage{}, nil
	}

	out := ListPage{Items: decoded.Items}
	withinTotal := decoded.TotalPages == 0 || cursor.Page < decoded.TotalPages

	switch {
	case decoded.NextURL != "" && (withinTotal || !p.spec.NextWithinTotal):
		out.Next = &models.PageCursor{URL: resolve(cursor.URL, decoded.NextURL), Page: cursor.Page + 1}
	case decoded.NextURL == "" && decoded.TotalPages > 0 && cursor.Page < decoded.TotalPages:
		next, err := NextPageCursor(cursor, p.spec.pageParam())
		if err != nil {
			return ListPage{}, fmt.Errorf("list page %d: %w", cursor.Page, err)
		}
		out.Next = &next
	}
	return out, nil
}

// NextPageCursor increments the page query parameter of cursor.URL. A URL
// without the parameter counts as page 1.
func NextPageCursor(cursor models.PageCursor, param string) (models.PageCursor, error) {
	u, err := url.Parse(cursor.URL)
	if err != nil {
		return models.PageCursor{}, fmt.Errorf("parse cursor url: %w", err)
	}

	q := u.Query()
	current := 1
	if raw := q.Get(param); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return models.PageCursor{}, fmt.Errorf("page parameter %q=%q is not a number", param, raw)
		}
		current = n
	}
	q.Set(param, strconv.Itoa(current+1))
	u.RawQuery = q.Encode()

	return models.PageCursor{URL: u.String(), Page: current + 1}, nil
}

func resolve(base, ref string) string {
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// StartCursor reads the page number of a crawl's first URL. A URL without
// the parameter is page 1.
func StartCursor(rawURL, param string) models.PageCursor {
	page := 1
	if u, err := url.Parse(rawURL); err == nil {
		if n, err := strconv.Atoi(u.Query().Get(param)); err == nil && n > 0 {
			page = n
		}
	}
	return models.PageCursor{URL: rawURL, Page: page}
}
