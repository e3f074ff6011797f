package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/hobbylog/gunpla-scraper/internal/browser"
	"github.com/hobbylog/gunpla-scraper/internal/checkpoint"
	"github.com/hobbylog/gunpla-scraper/internal/config"
	"github.com/hobbylog/gunpla-scraper/internal/dedup"
	"github.com/hobbylog/gunpla-scraper/internal/logging"
	"github.com/hobbylog/gunpla-scraper/internal/metrics"
	"github.com/hobbylog/gunpla-scraper/internal/models"
	"github.com/hobbylog/gunpla-scraper/internal/notify"
	"github.com/hobbylog/gunpla-scraper/internal/server"
	"github.com/hobbylog/gunpla-scraper/internal/sink"
	"github.com/hobbylog/gunpla-scraper/internal/sites"
	"github.com/hobbylog/gunpla-scraper/internal/walker"
)

func main() {
	if err := run(); err != nil {
		slog.Error("listings crawl failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	godotenv.Load()

	groupsFlag := flag.String("groups", "", "comma-separated group keys to crawl")
	allFlag := flag.Bool("all", false, "crawl every configured group")
	listFlag := flag.Bool("list", false, "print configured group keys and exit")
	flag.Parse()

	if *listFlag {
		for _, key := range sites.GroupKeys() {
			fmt.Println(key)
		}
		return nil
	}

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

	selected, err := selectGroups(*groupsFlag, *allFlag)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	tracker := server.NewTracker(runID)

	if cfg.Server.Enabled {
		srv := server.New(cfg.Server.Port, tracker, m.Registry)
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

	var notifier notify.Publisher
	if cfg.Redis.Enabled {
		pub, err := notify.NewRedisPublisher(ctx, notify.RedisOptions{
			Addr:      cfg.Redis.Addr,
			DB:        cfg.Redis.DB,
			Stream:    cfg.Redis.Stream,
			MaxLength: int64(cfg.Redis.MaxLength),
		})
		if err != nil {
			return fmt.Errorf("connect notifier: %w", err)
		}
		defer pub.Close()
		notifier = pub
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
	opts.AllowedResourceTypes = sites.ListingResourceTypes()
	opts.Cookies = sites.Cookies()

	b, err := browser.New(opts)
	if err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	defer b.Close()

	store := checkpoint.NewStore(cfg.Storage.StateDir)
	groups := sites.Groups()

	var failed []string
	for _, key := range selected {
		if ctx.Err() != nil {
			logger.Warn("crawl interrupted", "remaining", remaining(selected, key))
			break
		}
		if err := crawlGroup(ctx, cfg, logger, b, store, groups[key], m, tracker, notifier); err != nil {
			if errors.Is(err, context.Canceled) {
				logger.Warn("crawl interrupted", "group", key)
				break
			}
			logger.Error("group crawl failed", "group", key, "error", err)
			failed = append(failed, key)
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%d of %d groups failed: %s", len(failed), len(selected), strings.Join(failed, ", "))
	}
	return nil
}

func crawlGroup(
	ctx context.Context,
	cfg *config.Config,
	logger *slog.Logger,
	b *browser.Browser,
	store *checkpoint.Store,
	group models.Group,
	m *metrics.Metrics,
	tracker *server.Tracker,
	notifier notify.Publisher,
) error {
	out, err := sink.Open(filepath.Join(cfg.Storage.RawDir, group.Key+".jsonl"))
	if err != nil {
		return err
	}
	defer out.Close()

	ledger := dedup.NewLedger()
	known, err := ledger.LoadFile(out.Path())
	if err != nil {
		return err
	}

	checkpointURL, err := store.Load(group.Key)
	if err != nil {
		return err
	}

	source, err := sites.NewListingSource(b, group, logger)
	if err != nil {
		return err
	}

	w, err := walker.New(walker.Config{
		Source:        source,
		Ledger:        ledger,
		Sink:          out,
		Logger:        logger,
		Metrics:       m,
		Notifier:      notifier,
		SettleDelay:   cfg.Scraper.SettleDelay,
		TaxMultiplier: cfg.Scraper.TaxMultiplier,
	})
	if err != nil {
		return err
	}

	logger.Info("crawling group", "group", group.Key, "site", string(group.Site), "known_urls", known)

	result, err := w.Run(ctx, group, checkpointURL)
	if result != nil {
		tracker.Update(server.GroupStatus{
			Group:        group.Key,
			State:        string(result.State),
			PagesVisited: result.PagesVisited,
			Emitted:      result.Emitted,
			Dropped:      result.Dropped,
		})
	}
	if err != nil {
		return err
	}

	// Persist the checkpoint only after the walk finished cleanly, so an
	// aborted run re-covers the same ground instead of skipping it.
	if result.CandidateCheckpoint != "" {
		if err := store.Save(group.Key, result.CandidateCheckpoint); err != nil {
			return err
		}
	}
	return nil
}

func selectGroups(groupsFlag string, all bool) ([]string, error) {
	if all {
		return sites.GroupKeys(), nil
	}
	if groupsFlag == "" {
		return nil, fmt.Errorf("nothing to crawl: pass -groups KEY[,KEY...] or -all")
	}

	known := sites.Groups()
	var keys []string
	for _, key := range strings.Split(groupsFlag, ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		if _, ok := known[key]; !ok {
			return nil, fmt.Errorf("unknown group %q (use -list to see group keys)", key)
		}
		keys = append(keys, key)
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("nothing to crawl: pass -groups KEY[,KEY...] or -all")
	}
	sort.Strings(keys)
	return keys, nil
}

func remaining(selected []string, current string) int {
	for i, key := range selected {
		if key == current {
			return len(selected) - i
		}
	}
	return 0
}
