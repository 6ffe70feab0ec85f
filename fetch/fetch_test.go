package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"listing-scraper/extract"
)

var retryable = []int{429, 500, 502, 503, 504, 408, 522, 524}

func newTestServer(t *testing.T) (*httptest.Server, *sync.Map) {
	t.Helper()
	seen := &sync.Map{}

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, r *http.Request) {
		seen.Store("ua", r.Header.Get("User-Agent"))
		seen.Store("referer", r.Header.Get("Referer"))
		fmt.Fprint(w, `<html><body><h3 class="add-title"><a href="/ad/1">Ad</a></h3></body></html>`)
	})
	mux.HandleFunc("/busy", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	mux.HandleFunc("/gone", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("/json", func(w http.ResponseWriter, r *http.Request) {
		seen.Store("ua", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"adverts_list":{"adverts":[]},"next_url":null}`)
	})
	mux.HandleFunc("/slow", func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, seen
}

func TestHTTPFetcher_OK(t *testing.T) {
	srv, seen := newTestServer(t)
	f, err := NewHTTPFetcher(HTTPOptions{Timeout: 5 * time.Second, UserAgents: []string{"test-agent/1.0"}}, zap.NewNop())
	require.NoError(t, err)
	defer f.Close()

	resp, err := f.Fetch(context.Background(), Request{
		URL:     srv.URL + "/ok",
		Marker:  "h3.add-title a",
		Referer: srv.URL + "/",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotNil(t, resp.Page, "marker check should leave the parsed page behind")
	assert.Equal(t, []string{srv.URL + "/ad/1"}, resp.Page.Links("h3.add-title a"))

	ua, _ := seen.Load("ua")
	assert.Equal(t, "test-agent/1.0", ua)
	ref, _ := seen.Load("referer")
	assert.Equal(t, srv.URL+"/", ref)
	assert.Equal(t, map[int]int{200: 1}, f.StatusCounts())
}

func TestHTTPFetcher_MarkerMissing(t *testing.T) {
	srv, _ := newTestServer(t)
	f, err := NewHTTPFetcher(HTTPOptions{Timeout: 5 * time.Second}, zap.NewNop())
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), Request{URL: srv.URL + "/ok", Marker: "div.slider-left h1"})
	assert.ErrorIs(t, err, ErrMarkerMissing)
	assert.Equal(t, Structural, Classify(err, retryable))
}

func TestHTTPFetcher_StatusErrors(t *testing.T) {
	srv, _ := newTestServer(t)
	f, err := NewHTTPFetcher(HTTPOptions{Timeout: 5 * time.Second}, zap.NewNop())
	require.NoError(t, err)

	_, err = f.Fetch(context.Background(), Request{URL: srv.URL + "/busy"})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, Transient, Classify(err, retryable))

	_, err = f.Fetch(context.Background(), Request{URL: srv.URL + "/gone"})
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)
	assert.Equal(t, Fatal, Classify(err, retryable))
}

func TestHTTPFetcher_Cancelled(t *testing.T) {
	srv, _ := newTestServer(t)
	f, err := NewHTTPFetcher(HTTPOptions{Timeout: 10 * time.Second}, zap.NewNop())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = f.Fetch(ctx, Request{URL: srv.URL + "/slow"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAPIFetcher(t *testing.T) {
	srv, seen := newTestServer(t)
	f := NewAPIFetcher(HTTPOptions{Timeout: 5 * time.Second, UserAgents: []string{"api-agent"}}, zap.NewNop())
	defer f.Close()

	resp, err := f.Fetch(context.Background(), Request{URL: srv.URL + "/json"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"adverts_list":{"adverts":[]},"next_url":null}`, string(resp.Body))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	_, hit := seen.Load("ua")
	assert.True(t, hit)

	_, err = f.Fetch(context.Background(), Request{URL: srv.URL + "/busy"})
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 503, statusErr.StatusCode)
}

func TestResponseHTML(t *testing.T) {
	resp := &Response{URL: "https://example.com", Body: []byte("")}
	_, err := resp.HTML()
	assert.ErrorIs(t, err, extract.ErrMalformedPage)

	resp = &Response{URL: "https://example.com", Body: []byte("<p>x</p>")}
	p, err := resp.HTML()
	require.NoError(t, err)
	assert.Same(t, p, resp.Page)
}

func TestClassify(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want Class
	}{
		{"retryable status", &StatusError{StatusCode: 429}, Transient},
		{"cloudflare timeout", fmt.Errorf("wrapped: %w", &StatusError{StatusCode: 524}), Transient},
		{"not found", &StatusError{StatusCode: 404}, Fatal},
		{"marker", fmt.Errorf("x: %w", ErrMarkerMissing), Structural},
		{"render timeout", ErrRenderTimeout, Render},
		{"crash", fmt.Errorf("%w: boom", ErrBrowserCrashed), Render},
		{"closed", ErrBrowserClosed, Fatal},
		{"malformed", fmt.Errorf("%w: empty", extract.ErrMalformedPage), Fatal},
		{"deadline", context.DeadlineExceeded, Transient},
		{"cancelled", context.Canceled, Fatal},
		{"network", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("connection reset")}, Transient},
		{"unknown", errors.New("something odd"), Fatal},
		{"nil", nil, Fatal},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Classify(tc.err, retryable))
		})
	}
}

func TestBrowserSession_ClosedRejectsFetch(t *testing.T) {
	s := NewBrowserSession(BrowserOptions{}, zap.NewNop())
	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "close must be idempotent")

	_, err := s.Fetch(context.Background(), Request{URL: "https://example.com"})
	assert.ErrorIs(t, err, ErrBrowserClosed)
	assert.ErrorIs(t, s.Open(context.Background()), ErrBrowserClosed)
	assert.Equal(t, 0, s.Launches())
}

func TestBrowserSession_RenderErrors(t *testing.T) {
	expired, cancelPage := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancelPage()
	cause := errors.New("cdp: target closed")

	t.Run("dead browser is torn down", func(t *testing.T) {
		s := NewBrowserSession(BrowserOptions{}, zap.NewNop())
		bctx, bcancel := context.WithCancel(context.Background())
		allocReleased := false
		s.browserCtx, s.browserCancel = bctx, bcancel
		s.allocCancel = func() { allocReleased = true }
		bcancel()

		err := s.renderError(context.Background(), expired, "https://jiji.co.ke/a", cause)
		assert.ErrorIs(t, err, ErrBrowserCrashed)
		assert.Equal(t, Render, Classify(err, retryable))
		assert.Nil(t, s.browserCtx, "next fetch relaunches")
		assert.True(t, allocReleased)
	})

	t.Run("page timeout keeps the browser", func(t *testing.T) {
		s := NewBrowserSession(BrowserOptions{}, zap.NewNop())
		bctx, bcancel := context.WithCancel(context.Background())
		defer bcancel()
		s.browserCtx, s.browserCancel = bctx, bcancel

		err := s.renderError(context.Background(), expired, "https://jiji.co.ke/a", cause)
		assert.ErrorIs(t, err, ErrRenderTimeout)
		assert.Equal(t, Render, Classify(err, retryable))
		assert.NotNil(t, s.browserCtx)
	})

	t.Run("caller cancellation wins", func(t *testing.T) {
		s := NewBrowserSession(BrowserOptions{}, zap.NewNop())
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := s.renderError(ctx, expired, "https://jiji.co.ke/a", cause)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestBrowserSession_RelaunchesAfterCrash(t *testing.T) {
	if !chromeInstalled() {
		t.Skip("no chrome binary on PATH")
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body><div class="b-advert-attributes-wrapper">ok</div></body></html>`)
	}))
	defer srv.Close()

	s := NewBrowserSession(BrowserOptions{Headless: true, NavigationTimeout: 30 * time.Second}, zap.NewNop())
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.Open(ctx))

	// kill the browser out from under the session
	s.mu.Lock()
	s.browserCancel()
	s.mu.Unlock()

	resp, err := s.Fetch(ctx, Request{URL: srv.URL, Marker: "div.b-advert-attributes-wrapper"})
	require.NoError(t, err)
	assert.Contains(t, string(resp.Body), "b-advert-attributes-wrapper")
	assert.True(t, resp.Rendered)
	assert.Equal(t, 2, s.Launches())
}

func chromeInstalled() bool {
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if _, err := exec.LookPath(name); err == nil {
			return true
		}
	}
	return false
}
