// Package details enriches listing URLs with product detail pages. A pool
// of workers fetches concurrently; a single writer goroutine owns the sink
// so every appended line stays intact.
package details

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hobbylog/gunpla-scraper/internal/fetch"
	"github.com/hobbylog/gunpla-scraper/internal/metrics"
	"github.com/hobbylog/gunpla-scraper/internal/models"
	"github.com/hobbylog/gunpla-scraper/internal/normalize"
)

// RecordSink is where detail records go. *sink.Writer satisfies it.
type RecordSink interface {
	Append(record any) error
	Flush() error
}

type Config struct {
	Source fetch.DetailSource
	Sink   RecordSink
	Logger *slog.Logger

	// Optional.
	Metrics *metrics.Metrics

	// Concurrency bounds the number of in-flight fetches.
	Concurrency int

	// MaxRetries is the number of extra attempts after a transient failure.
	MaxRetries int

	// BackoffBase is the first retry delay; it doubles per attempt.
	BackoffBase time.Duration

	// FlushEvery forces a sink flush after this many appended records, so a
	// crash loses at most one flush window.
	FlushEvery int
}

// Summary counts one enrichment run.
type Summary struct {
	Done   int
	OK     int
	Errors int
}

type Fetcher struct {
	cfg    Config
	logger *slog.Logger
}

func New(cfg Config) (*Fetcher, error) {
	if cfg.Source == nil || cfg.Sink == nil {
		return nil, fmt.Errorf("details fetcher requires source and sink")
	}
	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("concurrency must be at least 1, got %d", cfg.Concurrency)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Fetcher{
		cfg:    cfg,
		logger: logger.With("component", "details"),
	}, nil
}

// Run fetches every pending URL and appends one record per URL, success or
// error tag. Canceled work produces no record at all, so those URLs stay
// pending for the next run.
func (f *Fetcher) Run(ctx context.Context, urls []string) (*Summary, error) {
	summary := &Summary{}
	if len(urls) == 0 {
		return summary, nil
	}

	// Own cancellation so a sink failure in the consumer below unblocks the
	// feeder and every worker before Run returns.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan string)
	results := make(chan *models.DetailRecord)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(jobs)
		for _, url := range urls {
			select {
			case jobs <- url:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
		return nil
	})

	workers := &errgroup.Group{}
	for i := 0; i < f.cfg.Concurrency; i++ {
		workers.Go(func() error {
			for url := range jobs {
				rec := f.fetchOne(gctx, url)
				if rec == nil {
					continue
				}
				select {
				case results <- rec:
				case <-gctx.Done():
					return gctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		workers.Wait()
		close(results)
	}()

	// The consumer keeps draining after a sink failure so blocked workers can
	// finish; cancel() stops new fetches and the closer shuts results down.
	var sinkErr error
	sinceFlush := 0
	for rec := range results {
		if sinkErr != nil {
			continue
		}
		if err := f.cfg.Sink.Append(rec); err != nil {
			sinkErr = fmt.Errorf("append record for %s: %w", rec.URL, err)
			cancel()
			continue
		}
		summary.Done++
		if rec.Failed() {
			summary.Errors++
		} else {
			summary.OK++
		}

		sinceFlush++
		if f.cfg.FlushEvery > 0 && sinceFlush >= f.cfg.FlushEvery {
			if err := f.cfg.Sink.Flush(); err != nil {
				sinkErr = fmt.Errorf("flush sink: %w", err)
				cancel()
				continue
			}
			sinceFlush = 0
			f.logger.Info("progress", "done", summary.Done, "ok", summary.OK, "errors", summary.Errors, "total", len(urls))
		}
	}

	// results is closed, so every worker has returned; g.Wait joins the
	// feeder.
	if sinkErr != nil {
		g.Wait()
		return summary, sinkErr
	}

	if err := f.cfg.Sink.Flush(); err != nil {
		return summary, fmt.Errorf("flush sink: %w", err)
	}

	if err := g.Wait(); err != nil {
		return summary, err
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}
	return summary, nil
}

// fetchOne resolves one URL to exactly one record, or nil when the context
// was canceled before a verdict was reached.
func (f *Fetcher) fetchOne(ctx context.Context, url string) *models.DetailRecord {
	var lastErr error
	for attempt := 0; ; attempt++ {
		start := time.Now()
		dp, err := f.cfg.Source.Fetch(ctx, url)
		f.cfg.Metrics.ObserveFetch(time.Since(start))
		if err == nil {
			return f.buildRecord(dp)
		}
		if ctx.Err() != nil {
			return nil
		}
		lastErr = err
		f.cfg.Metrics.IncFetchError(fetch.ErrorLabel(err))

		var statusErr *fetch.HTTPStatusError
		if errors.As(err, &statusErr) {
			// The server answered; retrying will not change the verdict.
			return &models.DetailRecord{URL: url, Error: statusErr.Status}
		}

		var transient *fetch.TransientError
		if errors.As(err, &transient) {
			if attempt < f.cfg.MaxRetries {
				f.cfg.Metrics.IncRetries()
				delay := f.cfg.BackoffBase << attempt
				f.logger.Debug("retrying", "url", url, "attempt", attempt+1, "delay", delay, "error", err)
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(delay):
				}
				continue
			}
			f.logger.Warn("giving up on url", "url", url, "attempts", attempt+1, "error", lastErr)
			return &models.DetailRecord{URL: url, Error: "parse_failed"}
		}

		return &models.DetailRecord{URL: url, Error: "scrape_exception", Message: err.Error()}
	}
}

func (f *Fetcher) buildRecord(dp *fetch.DetailPage) *models.DetailRecord {
	rec := &models.DetailRecord{
		URL:      dp.URL,
		Name:     normalize.CollapseWhitespace(dp.Title),
		Series:   normalize.CollapseWhitespace(dp.Series),
		ItemType: normalize.CollapseWhitespace(dp.ItemType),
	}

	if gross, ok := normalize.ParsePrice(dp.PriceText); ok {
		amount := int(math.Floor(gross + 0.5))
		rec.MSRPJPY = &amount
	}
	if dp.ReleaseDateText != "" {
		rec.ReleaseDate = normalize.ParseLocalizedDate(dp.ReleaseDateText)
	}
	if sw, ok := normalize.ParseSizeWeight(dp.SizeWeightText); ok {
		rec.DimL = &sw.Length
		rec.DimW = &sw.Width
		rec.DimH = &sw.Height
		rec.WeightGrams = &sw.WeightGrams
	}

	return rec
}
