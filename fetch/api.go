package fetch

import (
	"context"
	"fmt"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"listing-scraper/utils"
)

// APIFetcher calls JSON list endpoints. The transport carries a browser-like
// TLS fingerprint so Cloudflare-fronted APIs answer like they would to a
// browser.
type APIFetcher struct {
	client   *resty.Client
	throttle *throttle
	agents   []string
	log      *zap.Logger
}

func NewAPIFetcher(opts HTTPOptions, log *zap.Logger) *APIFetcher {
	client := resty.New()
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	// Proxy has to be set before the transport is wrapped; resty only knows
	// how to configure a bare *http.Transport.
	if opts.ProxyURL != "" {
		client.SetProxy(opts.ProxyURL)
	}
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("Accept", "application/json, text/plain, */*")
	client.SetHeader("Accept-Language", "en-US,en;q=0.9")
	for k, v := range opts.Headers {
		client.SetHeader(k, v)
	}

	return &APIFetcher{
		client:   client,
		throttle: newThrottle(opts.Delay, opts.RandomDelay),
		agents:   opts.UserAgents,
		log:      log,
	}
}

func (f *APIFetcher) Fetch(ctx context.Context, req Request) (*Response, error) {
	if err := f.throttle.wait(ctx); err != nil {
		return nil, err
	}

	r := f.client.R().
		SetContext(ctx).
		SetHeader("User-Agent", utils.RandomUserAgent(f.agents))
	if req.Referer != "" {
		r.SetHeader("Referer", req.Referer)
	}

	res, err := r.Get(req.URL)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("get %s: %w", req.URL, err)
	}
	f.log.Debug("api response",
		zap.String("url", req.URL),
		zap.Int("status", res.StatusCode()),
		zap.Duration("took", res.Time()),
	)
	if !res.IsSuccess() {
		return nil, &StatusError{URL: req.URL, StatusCode: res.StatusCode()}
	}

	resp := &Response{
		URL:        req.URL,
		StatusCode: res.StatusCode(),
		Body:       res.Body(),
	}
	if err := checkMarker(resp, req.Marker); err != nil {
		return nil, err
	}
	return resp, nil
}

func (f *APIFetcher) Close() error {
	return nil
}
