package scraper

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"listing-scraper/fetch"
	"listing-scraper/metrics"
	"listing-scraper/models"
	"listing-scraper/utils"
)

type State int32

const (
	Idle State = iota
	FetchingList
	FetchingDetails
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case FetchingList:
		return "fetching_list"
	case FetchingDetails:
		return "fetching_details"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

// Stats summarises one site's crawl.
type Stats struct {
	Site       string
	Pages      int
	Emitted    int
	Duplicates int
	Partial    int
	Failed     int
	// FieldHits counts emitted records with a non-nil value per column.
	FieldHits map[string]int
	Fields    []string
	State     State
	Err       error
	Started   time.Time
	Finished  time.Time
}

// DriverDeps is everything a Driver runs on. Details is nil for list-only sites.
type DriverDeps struct {
	Lister   Paginator
	Details  *WorkerPool
	Emitter  *Emitter
	MaxPages int
	RunID    string
	Log      *zap.Logger
	Metrics  *metrics.Metrics
	// Resources are opened before the first request and closed when Run returns.
	Resources []fetch.Fetcher
}

// Driver walks a site's list pages in order and emits one record per
// detail URL.
type Driver struct {
	site Site
	deps DriverDeps
	log  *zap.Logger

	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error
}

func NewDriver(site Site, deps DriverDeps) *Driver {
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	return &Driver{
		site: site,
		deps: deps,
		log:  deps.Log.With(zap.String("site", site.Name)),
	}
}

func (d *Driver) Site() Site { return d.site }

func (d *Driver) State() State { return State(d.state.Load()) }

func (d *Driver) setState(s State) {
	if prev := State(d.state.Swap(int32(s))); prev != s {
		d.log.Debug("state change", zap.Stringer("from", prev), zap.Stringer("to", s))
	}
}

// Run crawls until a page yields no new listings, max_pages is reached, a
// list page fails, or ctx is done. Resources are released on every path.
func (d *Driver) Run(ctx context.Context) (stats Stats, err error) {
	stats = Stats{
		Site:      d.site.Name,
		Fields:    d.site.Columns,
		FieldHits: make(map[string]int),
		Started:   time.Now(),
	}
	defer func() {
		if cerr := d.Close(); cerr != nil {
			d.log.Warn("releasing resources", zap.Error(cerr))
		}
		d.setState(Terminated)
		stats.State = Terminated
		stats.Err = err
		stats.Finished = time.Now()
	}()

	for _, r := range d.deps.Resources {
		if o, ok := r.(fetch.Opener); ok {
			if err := o.Open(ctx); err != nil {
				return stats, fmt.Errorf("open %s resources: %w", d.site.Name, err)
			}
		}
	}

	utils.Section(d.log, "Crawling "+d.site.Name)
	cursor := StartCursor(d.site.StartURL, d.site.List.pageParam())
	visited := make(map[string]struct{})

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if d.deps.MaxPages > 0 && stats.Pages >= d.deps.MaxPages {
			d.log.Info("max pages reached", zap.Int("max_pages", d.deps.MaxPages))
			return stats, nil
		}
		visited[cursor.URL] = struct{}{}

		d.setState(FetchingList)
		page, err := d.deps.Lister.FetchListPage(ctx, cursor)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return stats, ctxErr
			}
			d.log.Error("list page failed", zap.Int("page", cursor.Page), zap.String("url", cursor.URL), zap.Error(err))
			return stats, err
		}
		stats.Pages++
		d.deps.Metrics.IncPages(d.site.Name)

		if len(page.Items) == 0 {
			d.log.Info("no listings on page, stopping", zap.Int("page", cursor.Page))
			return stats, nil
		}
		d.log.Info("list page fetched", zap.Int("page", cursor.Page), zap.Int("items", len(page.Items)))

		d.setState(FetchingDetails)
		fresh, err := d.processPage(ctx, page.Items, &stats)
		if err != nil {
			return stats, err
		}
		d.setState(Idle)
		if fresh == 0 {
			d.log.Info("no new listings on page, stopping", zap.Int("page", cursor.Page))
			return stats, nil
		}

		next := page.Next
		switch {
		case next == nil:
			d.log.Info("no next page", zap.Int("page", cursor.Page))
			return stats, nil
		case next.Page <= cursor.Page:
			d.log.Warn("next page does not advance, stopping", zap.Int("page", cursor.Page), zap.Int("next", next.Page))
			return stats, nil
		}
		if _, ok := visited[next.URL]; ok {
			d.log.Warn("next page already visited, stopping", zap.String("url", next.URL))
			return stats, nil
		}
		cursor = *next
	}
}

// processPage handles one list page and returns how many of its items had
// not been seen before.
func (d *Driver) processPage(ctx context.Context, items []models.ListItem, stats *Stats) (int, error) {
	fresh := make([]models.ListItem, 0, len(items))
	onPage := make(map[string]struct{}, len(items))
	for _, it := range items {
		if it.URL == "" {
			it.URL = urlFromFields(it.Fields, d.site.urlField())
		}
		_, repeated := onPage[it.URL]
		if it.URL != "" && (repeated || d.deps.Emitter.Seen(ctx, it.URL)) {
			stats.Duplicates++
			d.deps.Metrics.IncRecords(d.site.Name, "duplicate")
			continue
		}
		onPage[it.URL] = struct{}{}
		fresh = append(fresh, it)
	}

	if d.deps.Details == nil || d.site.Detail == nil {
		for _, it := range fresh {
			d.emit(ctx, it.URL, cloneFields(it.Fields), DetailResult{}, stats)
		}
		return len(fresh), ctx.Err()
	}

	for _, out := range d.deps.Details.Run(ctx, fresh) {
		if out.Err != nil {
			if ctx.Err() != nil {
				return len(fresh), ctx.Err()
			}
			stats.Failed++
			d.deps.Metrics.IncRecords(d.site.Name, "failed")
			d.log.Error("detail failed",
				zap.String("url", out.Item.URL),
				zap.Int("attempts", out.Result.Attempts),
				zap.String("reason", out.Err.Error()),
			)
			continue
		}
		d.emit(ctx, out.Item.URL, mergeSeed(out.Item.Fields, out.Result.Fields), out.Result, stats)
	}
	return len(fresh), ctx.Err()
}

func (d *Driver) emit(ctx context.Context, url string, fields map[string]any, res DetailResult, stats *Stats) {
	if fields == nil {
		fields = make(map[string]any)
	}
	if uf := d.site.urlField(); fields[uf] == nil && url != "" {
		fields[uf] = url
	}

	rec := models.Listing{
		URL:       url,
		Site:      d.site.Name,
		RunID:     d.deps.RunID,
		ScrapedAt: time.Now().UTC(),
		Fields:    fields,
		Partial:   res.Partial,
		Missing:   res.Missing,
	}

	out := d.deps.Emitter.Emit(ctx, rec)
	if out.Outcome != Emitted {
		if out.Reason == ReasonDuplicate {
			stats.Duplicates++
			return
		}
		stats.Failed++
		d.log.Warn("record dropped", zap.String("url", url), zap.String("reason", out.Reason))
		return
	}

	stats.Emitted++
	for k, v := range fields {
		if v != nil {
			stats.FieldHits[k]++
		}
	}
	if res.Partial {
		stats.Partial++
		d.deps.Metrics.IncRecords(d.site.Name, "partial")
		d.log.Warn("extraction incomplete",
			zap.String("url", url),
			zap.Int("attempts", res.Attempts),
			zap.Strings("missing", res.Missing),
			zap.NamedError("reason", res.Reason),
		)
	}
}

// Close releases every resource once. It is safe to call from any goroutine
// and after Run has already returned.
func (d *Driver) Close() error {
	d.closeOnce.Do(func() {
		var errs []error
		for _, r := range d.deps.Resources {
			if err := r.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		d.closeErr = errors.Join(errs...)
	})
	return d.closeErr
}

// mergeSeed lays detail fields over list seed fields. Detail wins unless
// its value is nil.
func mergeSeed(seed, detail map[string]any) map[string]any {
	out := cloneFields(seed)
	if out == nil {
		out = make(map[string]any, len(detail))
	}
	for k, v := range detail {
		if v != nil {
			out[k] = v
			continue
		}
		if _, ok := out[k]; !ok {
			out[k] = nil
		}
	}
	return out
}

func cloneFields(in map[string]any) map[string]any {
	if in == nil {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func urlFromFields(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return strings.TrimSpace(s)
}
