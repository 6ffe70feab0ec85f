package fetch

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/gocolly/colly/v2/extensions"
	"go.uber.org/zap"

	"listing-scraper/utils"
)

// HTTPOptions configures the plain HTTP fetchers.
type HTTPOptions struct {
	Timeout     time.Duration
	Parallelism int
	Delay       time.Duration
	RandomDelay time.Duration
	// UserAgents is the rotation pool. Empty uses colly's random UA generator.
	UserAgents []string
	Headers    map[string]string
	ProxyURL   string
}

var defaultHeaders = map[string]string{
	"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
	"Accept-Language": "en-US,en;q=0.9",
}

// HTTPFetcher loads pages over plain HTTP with colly. All fetches share one
// backend, so the limit rule (parallelism, delay) holds across goroutines.
type HTTPFetcher struct {
	base *colly.Collector
	opts HTTPOptions
	log  *zap.Logger

	statsMu sync.Mutex
	stats   map[int]int
}

func NewHTTPFetcher(opts HTTPOptions, log *zap.Logger) (*HTTPFetcher, error) {
	c := colly.NewCollector(colly.AllowURLRevisit())

	if opts.Timeout > 0 {
		c.SetRequestTimeout(opts.Timeout)
	}

	parallelism := opts.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: parallelism,
		Delay:       opts.Delay,
		RandomDelay: opts.RandomDelay,
	}); err != nil {
		return nil, fmt.Errorf("colly limit rule: %w", err)
	}

	if opts.ProxyURL != "" {
		if err := c.SetProxy(opts.ProxyURL); err != nil {
			return nil, fmt.Errorf("set proxy: %w", err)
		}
	}

	return &HTTPFetcher{
		base:  c,
		opts:  opts,
		log:   log,
		stats: make(map[int]int),
	}, nil
}

// Fetch issues one GET. Each call runs on a clone bound to ctx so that a
// cancelled crawl aborts the in-flight request.
func (f *HTTPFetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	c := f.base.Clone()
	c.Context = ctx

	if len(f.opts.UserAgents) > 0 {
		c.OnRequest(func(r *colly.Request) {
			r.Headers.Set("User-Agent", utils.RandomUserAgent(f.opts.UserAgents))
		})
	} else {
		extensions.RandomUserAgent(c)
	}

	var (
		resp   *Response
		status int
	)
	c.OnResponse(func(r *colly.Response) {
		resp = &Response{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       r.Body,
		}
	})
	c.OnError(func(r *colly.Response, _ error) {
		if r != nil {
			status = r.StatusCode
		}
	})

	hdr := http.Header{}
	for k, v := range defaultHeaders {
		hdr.Set(k, v)
	}
	for k, v := range f.opts.Headers {
		hdr.Set(k, v)
	}
	if req.Referer != "" {
		hdr.Set("Referer", req.Referer)
	}

	err := c.Request(http.MethodGet, req.URL, nil, nil, hdr)
	f.record(status, resp)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if status != 0 {
			return nil, &StatusError{URL: req.URL, StatusCode: status}
		}
		return nil, fmt.Errorf("get %s: %w", req.URL, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("get %s: no response", req.URL)
	}

	if err := checkMarker(resp, req.Marker); err != nil {
		return nil, err
	}
	return resp, nil
}

func (f *HTTPFetcher) record(status int, resp *Response) {
	if resp != nil {
		status = resp.StatusCode
	}
	if status == 0 {
		return
	}
	f.statsMu.Lock()
	f.stats[status]++
	f.statsMu.Unlock()
}

// StatusCounts returns how many responses were seen per HTTP status.
func (f *HTTPFetcher) StatusCounts() map[int]int {
	f.statsMu.Lock()
	defer f.statsMu.Unlock()
	out := make(map[int]int, len(f.stats))
	for k, v := range f.stats {
		out[k] = v
	}
	return out
}

func (f *HTTPFetcher) Close() error {
	if counts := f.StatusCounts(); len(counts) > 0 {
		f.log.Info("http status statistics", zap.Any("statuses", counts))
	}
	return nil
}
