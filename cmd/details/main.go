package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/hobbylog/gunpla-scraper/internal/browser"
	"github.com/hobbylog/gunpla-scraper/internal/config"
	"github.com/hobbylog/gunpla-scraper/internal/dedup"
	"github.com/hobbylog/gunpla-scraper/internal/details"
	"github.com/hobbylog/gunpla-scraper/internal/logging"
	"github.com/hobbylog/gunpla-scraper/internal/metrics"
	"github.com/hobbylog/gunpla-scraper/internal/server"
	"github.com/hobbylog/gunpla-scraper/internal/sink"
	"github.com/hobbylog/gunpla-scraper/internal/sites"
)

func main() {
	if err := run(); err != nil {
		slog.Error("detail enrichment failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	godotenv.Load()

	limitFlag := flag.Int("limit", 0, "fetch at most this many pending URLs (0 = all)")
	dryRunFlag := flag.Bool("dry-run", false, "print the pending count and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)
	runID := uuid.New().String()
	logger = logger.With("run_id", runID)

	pending, discovered, enriched, err := pendingURLs(cfg)
	if err != nil {
		return err
	}
	logger.Info("resolved pending set",
		"discovered", discovered,
		"enriched", enriched,
		"pending", len(pending),
	)

	if *limitFlag > 0 && len(pending) > *limitFlag {
		pending = pending[:*limitFlag]
	}
	if *dryRunFlag {
		fmt.Printf("%d pending URLs\n", len(pending))
		return nil
	}
	if len(pending) == 0 {
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	if cfg.Server.Enabled {
		srv := server.New(cfg.Server.Port, server.NewTracker(runID), m.Registry)
		go func() {
			if err := srv.Start(); err != nil {
				logger.Error("http server stopped", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Error("http server shutdown failed", "error", err)
			}
		}()
	}

	opts := browser.DefaultOptions()
	opts.Headless = cfg.Browser.Headless
	opts.NavTimeout = cfg.Browser.NavTimeout
	opts.OpTimeout = cfg.Browser.OpTimeout
	opts.UserAgent = cfg.Browser.UserAgent
	opts.ViewportWidth = cfg.Browser.ViewportWidth
	opts.ViewportHeight = cfg.Browser.ViewportHeight
	opts.AcceptLanguage = cfg.Browser.AcceptLanguage
	opts.TimezoneID = cfg.Browser.TimezoneID
	opts.Locale = cfg.Browser.Locale
	opts.AllowedResourceTypes = sites.DetailResourceTypes()
	opts.Cookies = sites.Cookies()

	b, err := browser.New(opts)
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer b.Close()

	out, err := sink.Open(cfg.Storage.DetailsFile)
	if err != nil {
		return err
	}
	defer out.Close()

	f, err := details.New(details.Config{
		Source:      sites.NewHLJDetail(b, logger),
		Sink:        out,
		Logger:      logger,
		Metrics:     m,
		Concurrency: cfg.Scraper.Concurrency,
		MaxRetries:  cfg.Scraper.MaxRetries,
		BackoffBase: cfg.Scraper.BackoffBase,
		FlushEvery:  cfg.Scraper.FlushEvery,
	})
	if err != nil {
		return err
	}

	summary, err := f.Run(ctx, pending)
	logger.Info("enrichment finished",
		"done", summary.Done,
		"ok", summary.OK,
		"errors", summary.Errors,
		"pending_left", len(pending)-summary.Done,
	)
	return err
}

// pendingURLs diffs the URLs discovered by listing crawls against the URLs
// already present in the detail sink. Error-tagged detail rows count as
// enriched too, so permanently broken URLs are not refetched every run.
func pendingURLs(cfg *config.Config) (pending []string, discovered, enriched int, err error) {
	discoveredLedger := dedup.NewLedger()
	rawFiles, err := filepath.Glob(filepath.Join(cfg.Storage.RawDir, "*.jsonl"))
	if err != nil {
		return nil, 0, 0, fmt.Errorf("scan raw dir %q: %w", cfg.Storage.RawDir, err)
	}
	for _, path := range rawFiles {
		if _, err := discoveredLedger.LoadFile(path); err != nil {
			return nil, 0, 0, err
		}
	}

	enrichedLedger := dedup.NewLedger()
	if _, err := enrichedLedger.LoadFile(cfg.Storage.DetailsFile); err != nil {
		return nil, 0, 0, err
	}

	for _, url := range discoveredLedger.URLs() {
		if !enrichedLedger.Seen(url) {
			pending = append(pending, url)
		}
	}
	return pending, discoveredLedger.Len(), enrichedLedger.Len(), nil
}
