package commands

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"listing-scraper/config"
	"listing-scraper/metrics"
	"listing-scraper/scraper"
	"listing-scraper/services"
	"listing-scraper/storage"
	"listing-scraper/utils"
)

var (
	crawlMaxPages int
	crawlCSVPath  string
)

func init() {
	crawlCmd.Flags().IntVar(&crawlMaxPages, "max-pages", 0, "Stop each site after this many list pages (0 keeps the configured value).")
	crawlCmd.Flags().StringVar(&crawlCSVPath, "csv", "", "CSV output path; {site} is replaced by the site name.")
	rootCmd.AddCommand(crawlCmd)
}

var crawlCmd = &cobra.Command{
	Use:   "crawl [site...]",
	Short: "Crawls the named sites, or every site when none is named.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if crawlMaxPages > 0 {
			cfg.MaxPages = crawlMaxPages
		}
		if crawlCSVPath != "" {
			cfg.Output.CSVPath = crawlCSVPath
		}

		log, cleanup, err := utils.NewLogger(cfg.LogLevel, cfg.LogFile)
		if err != nil {
			return err
		}
		defer cleanup()

		return runCrawl(cmd.Context(), cfg, log, args)
	},
}

func runCrawl(ctx context.Context, cfg *config.Config, log *zap.Logger, names []string) error {
	reg, err := siteRegistry()
	if err != nil {
		return err
	}
	sites, err := selectSites(reg, names)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	log = log.With(zap.String("run_id", runID))
	log.Info("crawl starting",
		zap.Int("sites", len(sites)),
		zap.Int("max_pages", cfg.MaxPages),
		zap.Int("max_concurrency", cfg.MaxConcurrency),
		zap.Duration("download_delay", cfg.DownloadDelay),
	)

	report, err := crawlSites(ctx, cfg, log, runID, sites)
	if err != nil {
		return err
	}
	services.PrintReport(os.Stdout, report)

	if err := ctx.Err(); err != nil {
		return err
	}
	if report.FailedSites > 0 {
		return fmt.Errorf("%d of %d sites failed", report.FailedSites, len(report.Sites))
	}
	return nil
}

// crawlSites runs every site concurrently. Each site dedups against its own
// store, so sites covering the same listings each emit their full set.
func crawlSites(ctx context.Context, cfg *config.Config, log *zap.Logger, runID string, sites []scraper.Site) (services.Report, error) {
	m := metrics.New()

	shared, err := openSharedSinks(ctx, cfg)
	if err != nil {
		return services.Report{}, err
	}
	closers := []func() error{shared.Close}
	defer func() {
		for _, c := range closers {
			if err := c(); err != nil {
				log.Error("closing output", zap.Error(err))
			}
		}
	}()

	drivers := make([]*scraper.Driver, 0, len(sites))
	for _, site := range sites {
		dedup, closeDedup, err := openDedup(ctx, cfg, runID, site.Name)
		if err != nil {
			return services.Report{}, fmt.Errorf("%s: %w", site.Name, err)
		}
		closers = append(closers, closeDedup)

		sink := storage.Sink(shared)
		if path := cfg.CSVPathFor(site.Name); path != "" {
			csvw, err := storage.NewCSVWriter(path, site.Columns)
			if err != nil {
				return services.Report{}, fmt.Errorf("%s: %w", site.Name, err)
			}
			closers = append(closers, csvw.Close)
			sink = storage.NewMultiSink(csvw, shared)
			log.Info("writing csv", zap.String("site", site.Name), zap.String("path", path))
		}

		d, err := scraper.NewCrawl(site, scraper.Deps{
			Config:  cfg,
			Logger:  log,
			Metrics: m,
			Dedup:   dedup,
			Sink:    sink,
			RunID:   runID,
		})
		if err != nil {
			return services.Report{}, err
		}
		drivers = append(drivers, d)
	}

	stats := make([]scraper.Stats, len(drivers))
	g, gctx := errgroup.WithContext(ctx)
	for i, d := range drivers {
		g.Go(func() error {
			// a failed site is reported, not propagated, so the others keep going
			stats[i], _ = d.Run(gctx)
			return nil
		})
	}
	_ = g.Wait()

	if cfg.MetricsPath != "" {
		if err := m.WriteTextfile(cfg.MetricsPath); err != nil {
			log.Error("writing metrics", zap.Error(err))
		} else {
			log.Info("metrics written", zap.String("path", cfg.MetricsPath))
		}
	}

	return services.GenerateReport(runID, stats...), nil
}

func selectSites(reg *scraper.Registry, names []string) ([]scraper.Site, error) {
	if len(names) == 0 {
		return reg.All(), nil
	}

	var (
		out  []scraper.Site
		errs []error
	)
	for _, n := range names {
		s, ok := reg.Lookup(n)
		if !ok {
			errs = append(errs, fmt.Errorf("unknown site %q (see `listing-scraper sites`)", n))
			continue
		}
		out = append(out, s)
	}
	return out, errors.Join(errs...)
}

// openDedup returns the seen-URL store for one site. With Redis the key
// namespace is "<namespace or run id>:<site>".
func openDedup(ctx context.Context, cfg *config.Config, runID, site string) (scraper.DedupStore, func() error, error) {
	if cfg.Redis.Addr == "" {
		return scraper.NewMemoryDedup(), func() error { return nil }, nil
	}

	ns := cfg.Redis.Namespace
	if ns == "" {
		ns = runID
	}
	rd, err := storage.NewRedisDedup(ctx, cfg.Redis.Addr, ns+":"+site, cfg.Redis.TTL)
	if err != nil {
		return nil, nil, err
	}
	return rd, rd.Close, nil
}

// openSharedSinks opens the outputs every site writes to. On error the
// sinks opened so far are closed again.
func openSharedSinks(ctx context.Context, cfg *config.Config) (sink *storage.MultiSink, err error) {
	var opened []storage.Sink
	defer func() {
		if err != nil {
			_ = storage.NewMultiSink(opened...).Close()
		}
	}()

	if path := cfg.Output.JSONLPath; path != "" {
		w, err := storage.NewJSONLWriter(path)
		if err != nil {
			return nil, err
		}
		opened = append(opened, w)
	}

	if path := cfg.Output.SQLitePath; path != "" {
		w, err := storage.NewSQLiteWriter(ctx, path)
		if err != nil {
			return nil, err
		}
		opened = append(opened, w)
	}

	if cfg.Postgres.Enabled {
		w, err := storage.NewPostgresWriter(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		opened = append(opened, w)
		if err := w.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}

	return storage.NewMultiSink(opened...), nil
}
