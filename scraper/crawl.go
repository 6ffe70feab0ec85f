package scraper

import (
	"fmt"

	"go.uber.org/zap"

	"listing-scraper/config"
	"listing-scraper/fetch"
	"listing-scraper/metrics"
	"listing-scraper/utils"
)

// Deps carries the run-wide pieces shared by every site's crawl.
type Deps struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *metrics.Metrics
	Dedup   DedupStore
	Sink    Sink
	RunID   string
}

// NewCrawl wires a Driver for site from real fetchers. When either side of
// the site renders in the browser, list and detail share one session.
func NewCrawl(site Site, deps Deps) (*Driver, error) {
	cfg, startURL := deps.Config.ForSite(site.Name)
	if startURL != "" {
		site.StartURL = startURL
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Dedup == nil {
		deps.Dedup = NewMemoryDedup()
	}

	fetchers := &fetcherSet{cfg: cfg, log: log}
	listFetcher, err := fetchers.get(site.ListMode)
	if err != nil {
		return nil, fmt.Errorf("%s list fetcher: %w", site.Name, err)
	}

	policy := RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		RenderRetries: cfg.RenderRetries,
		Statuses:      cfg.RetryStatuses,
		Backoff:       utils.Backoff{Base: cfg.BackoffBase, Max: cfg.BackoffMax},
	}

	listReq := NewRequester(site.Name, "list", listFetcher, policy, log, deps.Metrics)
	lister, err := NewPaginator(site.List, listReq, log)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", site.Name, err)
	}

	var pool *WorkerPool
	if site.Detail != nil {
		detailFetcher, err := fetchers.get(site.DetailMode)
		if err != nil {
			return nil, fmt.Errorf("%s detail fetcher: %w", site.Name, err)
		}
		spec := *site.Detail
		if spec.Attempts == 0 {
			spec.Attempts = cfg.DetailAttempts
		}
		if spec.Scrolls == 0 && site.DetailMode == ModeBrowser {
			spec.Scrolls = cfg.ScrollIterations
		}
		detailReq := NewRequester(site.Name, "detail", detailFetcher, policy, log, deps.Metrics)

		workers := cfg.MaxConcurrency
		if site.DetailMode == ModeBrowser {
			workers = 1
		}
		pool = NewWorkerPool(NewDetailFetcher(spec, detailReq, log), workers)
	}

	return NewDriver(site, DriverDeps{
		Lister:    lister,
		Details:   pool,
		Emitter:   NewEmitter(deps.Dedup, deps.Sink, deps.Metrics),
		MaxPages:  cfg.MaxPages,
		RunID:     deps.RunID,
		Log:       log,
		Metrics:   deps.Metrics,
		Resources: fetchers.all,
	}), nil
}

// fetcherSet builds at most one fetcher per mode.
type fetcherSet struct {
	cfg    *config.Config
	log    *zap.Logger
	byMode map[Mode]fetch.Fetcher
	all    []fetch.Fetcher
}

func (s *fetcherSet) get(mode Mode) (fetch.Fetcher, error) {
	if f, ok := s.byMode[mode]; ok {
		return f, nil
	}
	if s.byMode == nil {
		s.byMode = make(map[Mode]fetch.Fetcher)
	}

	httpOpts := fetch.HTTPOptions{
		Timeout:     s.cfg.RequestTimeout,
		Parallelism: s.cfg.MaxConcurrency,
		Delay:       s.cfg.DownloadDelay,
		RandomDelay: s.cfg.RandomDelay,
		UserAgents:  s.cfg.UserAgents,
		ProxyURL:    s.cfg.ProxyURL,
	}

	var (
		f   fetch.Fetcher
		err error
	)
	switch mode {
	case ModeHTTP:
		f, err = fetch.NewHTTPFetcher(httpOpts, s.log)
	case ModeAPI:
		f = fetch.NewAPIFetcher(httpOpts, s.log)
	case ModeBrowser:
		uas := s.cfg.UserAgents
		if len(uas) == 0 {
			uas = utils.DefaultUserAgents
		}
		f = fetch.NewBrowserSession(fetch.BrowserOptions{
			Headless:          s.cfg.Headless,
			NavigationTimeout: s.cfg.NavigationTimeout,
			ScrollPause:       s.cfg.ScrollPause,
			Delay:             s.cfg.DownloadDelay,
			RandomDelay:       s.cfg.RandomDelay,
			UserAgents:        uas,
			ProxyURL:          s.cfg.ProxyURL,
		}, s.log)
	default:
		return nil, fmt.Errorf("unknown mode %d", mode)
	}
	if err != nil {
		return nil, err
	}

	s.byMode[mode] = f
	s.all = append(s.all, f)
	return f, nil
}
