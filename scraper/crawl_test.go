package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"listing-scraper/config"
	"listing-scraper/metrics"
)

func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.DownloadDelay = 0
	cfg.RandomDelay = 0
	cfg.BackoffBase = time.Millisecond
	cfg.BackoffMax = 2 * time.Millisecond
	cfg.RequestTimeout = 5 * time.Second
	cfg.MaxConcurrency = 2
	return cfg
}

func TestNewCrawl_HTTPSite(t *testing.T) {
	var listHits, busyHits atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		listHits.Add(1)
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprint(w, listHTML("/ad/1", "/ad/2"))
			return
		}
		fmt.Fprint(w, emptyList)
	})
	mux.HandleFunc("/ad/1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, detailHTML("Account: First", "KSh 1,000"))
	})
	mux.HandleFunc("/ad/2", func(w http.ResponseWriter, r *http.Request) {
		// one transient failure before the page is served
		if busyHits.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		fmt.Fprint(w, detailHTML("Account: Second", "KSh 2,000"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	sink := &memSink{}
	m := metrics.New()
	d, err := NewCrawl(htmlSite(srv.URL+"/list?page=1"), Deps{
		Config:  testConfig(),
		Logger:  zap.NewNop(),
		Metrics: m,
		Sink:    sink,
		RunID:   "run-http",
	})
	require.NoError(t, err)

	stats, err := d.Run(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{srv.URL + "/ad/1", srv.URL + "/ad/2"}, sink.URLs())
	assert.Equal(t, int32(2), listHits.Load(), "page 3 is never requested")
	assert.Equal(t, int32(2), busyHits.Load())
	assert.Equal(t, 2, stats.Emitted)
	assert.Equal(t, 2, stats.FieldHits["price"])
}

func TestNewCrawl_StartURLOverride(t *testing.T) {
	cfg := testConfig()
	cfg.Sites = map[string]config.SiteConfig{"test-html": {StartURL: "https://example.test/list?page=3", MaxPages: 2}}

	d, err := NewCrawl(htmlSite("https://example.test/list?page=1"), Deps{Config: cfg, Sink: &memSink{}})
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, "https://example.test/list?page=3", d.Site().StartURL)
	assert.Equal(t, 2, d.deps.MaxPages)
	assert.Equal(t, 2, d.deps.Details.Size())
}

func TestNewCrawl_BrowserDetailsUseOneWorker(t *testing.T) {
	site := htmlSite("https://example.test/list?page=1")
	site.ListMode = ModeBrowser
	site.DetailMode = ModeBrowser

	d, err := NewCrawl(site, Deps{Config: testConfig(), Sink: &memSink{}})
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, 1, d.deps.Details.Size())
	assert.Len(t, d.deps.Resources, 1, "list and detail share one browser session")
}
