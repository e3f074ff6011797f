// Package walker drives one group's listing crawl: it pages through the
// group's catalog newest-first, normalizes each item into a listing record,
// deduplicates against the ledger and stops at the checkpoint from the
// previous run.
package walker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/hobbylog/gunpla-scraper/internal/dedup"
	"github.com/hobbylog/gunpla-scraper/internal/fetch"
	"github.com/hobbylog/gunpla-scraper/internal/metrics"
	"github.com/hobbylog/gunpla-scraper/internal/models"
	"github.com/hobbylog/gunpla-scraper/internal/normalize"
	"github.com/hobbylog/gunpla-scraper/internal/notify"
)

// TerminalState says why a walk ended.
type TerminalState string

const (
	// DoneCheckpoint: the previous run's newest item was reached; everything
	// past it is already on disk.
	DoneCheckpoint TerminalState = "checkpoint_hit"
	// DoneExhausted: the pager's last page was consumed.
	DoneExhausted TerminalState = "pages_exhausted"
	// DoneNoNext: the pager offered no next page before the counted total
	// was reached. Treated as a normal stop.
	DoneNoNext TerminalState = "no_next_page"
)

// RecordSink is where emitted records go. *sink.Writer satisfies it.
type RecordSink interface {
	AppendBatch(records []any) error
}

type Config struct {
	Source fetch.ListingSource
	Ledger *dedup.Ledger
	Sink   RecordSink
	Logger *slog.Logger

	// Optional.
	Metrics  *metrics.Metrics
	Notifier notify.Publisher

	// SettleDelay is the pause before advancing to the next page, giving
	// client-side pagers time to finish rendering.
	SettleDelay time.Duration

	// TaxMultiplier backs tax-inclusive prices out to pre-tax yen.
	TaxMultiplier float64
}

// Result summarizes one completed walk.
type Result struct {
	State        TerminalState
	PagesVisited int
	Emitted      int
	Dropped      int

	// CandidateCheckpoint is the newest item's URL from the first page. The
	// caller persists it only after the walk finishes cleanly.
	CandidateCheckpoint string
}

type Walker struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) (*Walker, error) {
	if cfg.Source == nil || cfg.Ledger == nil || cfg.Sink == nil {
		return nil, fmt.Errorf("walker requires source, ledger and sink")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Walker{
		cfg:    cfg,
		logger: logger.With("component", "walker"),
	}, nil
}

// Run walks the group's listing from its start URL until the checkpoint is
// hit, the pager runs out, or ctx is canceled. checkpointURL may be empty on
// a first run, in which case only the pager bounds the walk.
func (w *Walker) Run(ctx context.Context, group models.Group, checkpointURL string) (*Result, error) {
	logger := w.logger.With("group", group.Key)
	result := &Result{}

	page, err := w.cfg.Source.Open(ctx, group.StartURL)
	if err != nil {
		return result, fmt.Errorf("open listing for %s: %w", group.Key, err)
	}
	defer w.cfg.Source.Close()

	totalPages := page.TotalPages
	logger.Info("walk started",
		"start_url", group.StartURL,
		"total_pages", totalPages,
		"checkpoint", checkpointURL,
	)

	pageNum := 1
	for {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		result.PagesVisited++
		w.cfg.Metrics.IncPage(group.Key)

		if pageNum == 1 {
			result.CandidateCheckpoint = firstURL(page.Items)
		}

		hit, err := w.consumePage(ctx, group, page, checkpointURL, result)
		if err != nil {
			return result, err
		}
		if hit {
			result.State = DoneCheckpoint
			logger.Info("walk finished", "state", result.State, "pages", result.PagesVisited, "emitted", result.Emitted)
			return result, nil
		}

		if totalPages > 0 && pageNum >= totalPages {
			result.State = DoneExhausted
			logger.Info("walk finished", "state", result.State, "pages", result.PagesVisited, "emitted", result.Emitted)
			return result, nil
		}

		if w.cfg.SettleDelay > 0 {
			select {
			case <-ctx.Done():
				return result, ctx.Err()
			case <-time.After(w.cfg.SettleDelay):
			}
		}

		page, err = w.cfg.Source.Next(ctx)
		if errors.Is(err, fetch.ErrNoNextPage) {
			result.State = DoneNoNext
			logger.Info("walk finished", "state", result.State, "pages", result.PagesVisited, "emitted", result.Emitted)
			return result, nil
		}
		if err != nil {
			w.cfg.Metrics.IncFetchError(fetch.ErrorLabel(err))
			return result, fmt.Errorf("advance to page %d of %s: %w", pageNum+1, group.Key, err)
		}
		pageNum++
	}
}

// consumePage emits the page's new records in one batch. It reports whether
// the checkpoint URL was encountered; items after the checkpoint on the same
// page are not inspected, since everything older is already recorded.
func (w *Walker) consumePage(ctx context.Context, group models.Group, page *fetch.ListingPage, checkpointURL string, result *Result) (bool, error) {
	batch := make([]any, 0, len(page.Items))
	hit := false

	for _, item := range page.Items {
		if checkpointURL != "" && item.URL == checkpointURL {
			hit = true
			break
		}

		if item.URL == "" {
			w.logger.Warn("dropping record", "group", group.Key, "reason", "missing url", "title", item.Title)
			result.Dropped++
			w.cfg.Metrics.IncDropped()
			continue
		}
		if !w.cfg.Ledger.ShouldEmit(item.URL) {
			continue
		}
		if normalize.CollapseWhitespace(item.Title) == "" {
			w.logger.Warn("dropping record", "group", group.Key, "reason", "missing title", "url", item.URL)
			result.Dropped++
			w.cfg.Metrics.IncDropped()
			continue
		}

		batch = append(batch, w.buildRecord(group, item))
	}

	if len(batch) > 0 {
		if err := w.cfg.Sink.AppendBatch(batch); err != nil {
			return hit, fmt.Errorf("append %d records for %s: %w", len(batch), group.Key, err)
		}
		result.Emitted += len(batch)
		w.cfg.Metrics.AddRecords(group.Key, len(batch))

		if w.cfg.Notifier != nil {
			for _, rec := range batch {
				if err := w.cfg.Notifier.Publish(ctx, group.Key, rec); err != nil {
					w.logger.Warn("failed to publish record", "group", group.Key, "error", err)
				}
			}
		}
	}

	return hit, nil
}

func (w *Walker) buildRecord(group models.Group, item fetch.RawItem) *models.ListingRecord {
	rec := &models.ListingRecord{URL: item.URL}

	title := normalize.CollapseWhitespace(item.Title)
	if normalize.ContainsJapanese(title) {
		rec.TitleJP = title
	} else {
		rec.Title = title
	}

	if gross, ok := normalize.ParsePrice(item.PriceText); ok {
		if group.TaxInclusive {
			if net, ok := normalize.PreTaxAmount(gross, w.cfg.TaxMultiplier); ok {
				rec.MSRPJPY = &net
			}
		} else {
			amount := int(math.Floor(gross + 0.5))
			rec.MSRPJPY = &amount
		}
	}

	if item.ReleaseDateText != "" {
		rec.ReleaseDate = normalize.ParseLocalizedDate(item.ReleaseDateText)
	}

	return rec
}

func firstURL(items []fetch.RawItem) string {
	for _, item := range items {
		if item.URL != "" {
			return item.URL
		}
	}
	return ""
}
