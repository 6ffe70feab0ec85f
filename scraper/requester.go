package scraper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"listing-scraper/fetch"
	"listing-scraper/metrics"
	"listing-scraper/utils"
)

// RetryPolicy sets how many retries each error class gets.
type RetryPolicy struct {
	MaxRetries    int
	RenderRetries int
	Statuses      []int
	Backoff       utils.Backoff
}

func (p RetryPolicy) budget(err error) int {
	switch fetch.Classify(err, p.Statuses) {
	case fetch.Transient:
		return p.MaxRetries
	case fetch.Render:
		return p.RenderRetries
	default:
		return 0
	}
}

// Requester wraps a Fetcher with classified retries. Retry state lives on
// the stack of each Do call; nothing is shared between requests.
type Requester struct {
	site    string
	kind    string
	fetcher fetch.Fetcher
	policy  RetryPolicy
	log     *zap.Logger
	metrics *metrics.Metrics
}

func NewRequester(site, kind string, f fetch.Fetcher, policy RetryPolicy, log *zap.Logger, m *metrics.Metrics) *Requester {
	return &Requester{
		site:    site,
		kind:    kind,
		fetcher: f,
		policy:  policy,
		log:     log,
		metrics: m,
	}
}

func (r *Requester) Do(ctx context.Context, req fetch.Request) (*fetch.Response, error) {
	start := time.Now()
	var resp *fetch.Response

	err := utils.Retry(ctx, r.policy.Backoff, r.policy.budget,
		func(s utils.RetryState) {
			r.metrics.IncRetries(r.site)
			r.log.Warn("retrying request",
				zap.String("url", req.URL),
				zap.Int("attempt", s.Attempt),
				zap.Duration("delay", s.Delay),
				zap.String("class", fetch.Classify(s.Err, r.policy.Statuses).String()),
				zap.String("reason", s.Err.Error()),
			)
		},
		func(int) error {
			var err error
			resp, err = r.fetcher.Fetch(ctx, req)
			return err
		})

	r.metrics.ObserveFetch(r.site, r.kind, time.Since(start))
	if err != nil {
		if ctx.Err() == nil {
			r.metrics.IncErrors(r.site, fetch.Classify(err, r.policy.Statuses).String())
		}
		return nil, err
	}
	return resp, nil
}
