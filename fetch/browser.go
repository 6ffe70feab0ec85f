package fetch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"listing-scraper/utils"
)

type BrowserOptions struct {
	Headless          bool
	NavigationTimeout time.Duration
	ScrollPause       time.Duration
	Delay             time.Duration
	RandomDelay       time.Duration
	UserAgents        []string
	ProxyURL          string
}

// BrowserSession owns one headless Chrome for the lifetime of a crawl.
// A single browser has no safe concurrent-navigation contract, so Fetch
// holds a lock for the whole page load: one page at a time, each in a
// fresh tab.
//
// If the browser dies, the failing fetch reports ErrBrowserCrashed and the
// next fetch launches a new browser.
type BrowserSession struct {
	opts     BrowserOptions
	log      *zap.Logger
	throttle *throttle

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	launches      int
	closed        bool
}

func NewBrowserSession(opts BrowserOptions, log *zap.Logger) *BrowserSession {
	if opts.NavigationTimeout <= 0 {
		opts.NavigationTimeout = 120 * time.Second
	}
	return &BrowserSession{
		opts:     opts,
		log:      log,
		throttle: newThrottle(opts.Delay, opts.RandomDelay),
	}
}

// Open launches the browser. Calling it on an open session is a no-op.
func (s *BrowserSession) Open(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrBrowserClosed
	}
	if s.browserCtx != nil && s.browserCtx.Err() == nil {
		return nil
	}
	return s.launch(ctx)
}

// launch starts a new browser, tearing down any previous one. Callers hold mu.
func (s *BrowserSession) launch(ctx context.Context) error {
	s.teardown()

	s.log.Info("launching chrome", zap.Bool("headless", s.opts.Headless), zap.Int("launch", s.launches+1))

	// The browser outlives any single request, so it hangs off Background
	// rather than the caller's ctx. Close releases it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(
		context.Background(),
		utils.StealthOpts(s.opts.Headless, utils.RandomUserAgent(s.opts.UserAgents), s.opts.ProxyURL)...,
	)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run allocates the browser and ties its lifetime to the
	// context it is given, so it must be browserCtx itself and not a
	// derived timeout context.
	stop := context.AfterFunc(ctx, browserCancel)
	defer stop()

	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: launch chrome: %v", ErrRender, err)
	}

	s.allocCancel = allocCancel
	s.browserCtx = browserCtx
	s.browserCancel = browserCancel
	s.launches++
	return nil
}

func (s *BrowserSession) teardown() {
	if s.browserCancel != nil {
		s.browserCancel()
	}
	if s.allocCancel != nil {
		s.allocCancel()
	}
	s.browserCtx, s.browserCancel, s.allocCancel = nil, nil, nil
}

// Fetch renders req.URL: navigate, wait for the marker, scroll, then
// return the document's outer HTML.
func (s *BrowserSession) Fetch(ctx context.Context, req Request) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrBrowserClosed
	}
	if s.browserCtx == nil || s.browserCtx.Err() != nil {
		if s.browserCtx != nil {
			s.log.Warn("browser session lost, relaunching")
		}
		if err := s.launch(ctx); err != nil {
			return nil, err
		}
	}

	if err := s.throttle.wait(ctx); err != nil {
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(s.browserCtx)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()

	pageCtx, cancel := context.WithTimeout(tabCtx, s.opts.NavigationTimeout)
	defer cancel()

	nav, err := chromedp.RunResponse(pageCtx, chromedp.Navigate(req.URL))
	if err != nil {
		return nil, s.renderError(ctx, pageCtx, req.URL, err)
	}
	status := 0
	if nav != nil {
		status = int(nav.Status)
		if status >= 300 {
			return nil, &StatusError{URL: req.URL, StatusCode: status}
		}
	}
	if err := chromedp.Run(pageCtx, utils.HideWebDriver()); err != nil {
		return nil, s.renderError(ctx, pageCtx, req.URL, err)
	}

	if req.Marker != "" {
		if err := chromedp.Run(pageCtx, chromedp.WaitReady(req.Marker, chromedp.ByQuery)); err != nil {
			if ctx.Err() == nil && errors.Is(pageCtx.Err(), context.DeadlineExceeded) && s.browserCtx.Err() == nil {
				return nil, fmt.Errorf("%w: %q on %s after %v", ErrMarkerMissing, req.Marker, req.URL, s.opts.NavigationTimeout)
			}
			return nil, s.renderError(ctx, pageCtx, req.URL, err)
		}
	}

	for i := 0; i < req.Scrolls; i++ {
		if err := chromedp.Run(pageCtx, utils.ScrollToBottom(), chromedp.Sleep(s.opts.ScrollPause)); err != nil {
			return nil, s.renderError(ctx, pageCtx, req.URL, err)
		}
	}

	var html string
	if err := chromedp.Run(pageCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, s.renderError(ctx, pageCtx, req.URL, err)
	}

	return &Response{
		URL:        req.URL,
		StatusCode: status,
		Body:       []byte(html),
		Rendered:   true,
	}, nil
}

// renderError maps a chromedp failure onto the fetch error taxonomy.
func (s *BrowserSession) renderError(ctx, pageCtx context.Context, url string, err error) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case s.browserCtx.Err() != nil:
		s.teardown()
		return fmt.Errorf("%w: %s: %v", ErrBrowserCrashed, url, err)
	case errors.Is(pageCtx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s after %v", ErrRenderTimeout, url, s.opts.NavigationTimeout)
	default:
		return fmt.Errorf("%w: %s: %v", ErrRender, url, err)
	}
}

// Launches reports how many browsers this session has started.
func (s *BrowserSession) Launches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.launches
}

// Close shuts the browser down. It is safe to call more than once.
func (s *BrowserSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.browserCtx != nil {
		s.log.Info("closing browser")
	}
	s.teardown()
	return nil
}
