package walker

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hobbylog/gunpla-scraper/internal/dedup"
	"github.com/hobbylog/gunpla-scraper/internal/fetch"
	"github.com/hobbylog/gunpla-scraper/internal/models"
)

type fakeSource struct {
	pages  []*fetch.ListingPage
	cursor int
	closed bool
}

func (f *fakeSource) Open(_ context.Context, _ string) (*fetch.ListingPage, error) {
	f.cursor = 1
	return f.pages[0], nil
}

func (f *fakeSource) Next(_ context.Context) (*fetch.ListingPage, error) {
	if f.cursor >= len(f.pages) {
		return nil, fetch.ErrNoNextPage
	}
	page := f.pages[f.cursor]
	f.cursor++
	return page, nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

type fakeSink struct {
	records []any
	batches int
}

func (f *fakeSink) AppendBatch(records []any) error {
	f.records = append(f.records, records...)
	f.batches++
	return nil
}

func item(title, url, price string) fetch.RawItem {
	return fetch.RawItem{Title: title, URL: url, PriceText: price}
}

func newWalker(t *testing.T, src fetch.ListingSource, sink RecordSink, ledger *dedup.Ledger) *Walker {
	t.Helper()
	w, err := New(Config{
		Source:        src,
		Ledger:        ledger,
		Sink:          sink,
		TaxMultiplier: 1.10,
	})
	require.NoError(t, err)
	return w
}

func TestRunStopsAtCheckpoint(t *testing.T) {
	src := &fakeSource{pages: []*fetch.ListingPage{
		{
			Items: []fetch.RawItem{
				item("Kit A", "https://example.com/a", "¥1,000"),
				item("Kit B", "https://example.com/b", "¥2,000"),
			},
			TotalPages: 3,
		},
		{
			Items: []fetch.RawItem{
				item("Kit C", "https://example.com/c", "¥3,000"),
				item("Kit D", "https://example.com/d", "¥4,000"),
			},
		},
	}}
	sink := &fakeSink{}
	w := newWalker(t, src, sink, dedup.NewLedger())

	// Kit D was the newest item last run; the walk must stop there and not
	// re-emit it.
	res, err := w.Run(context.Background(), hljGroup(), "https://example.com/d")
	require.NoError(t, err)

	assert.Equal(t, DoneCheckpoint, res.State)
	assert.Equal(t, 2, res.PagesVisited)
	assert.Equal(t, 3, res.Emitted)
	assert.Equal(t, "https://example.com/a", res.CandidateCheckpoint)
	assert.True(t, src.closed)

	urls := emittedURLs(sink)
	assert.Equal(t, []string{"https://example.com/a", "https://example.com/b", "https://example.com/c"}, urls)
}

func TestRunExhaustsPager(t *testing.T) {
	src := &fakeSource{pages: []*fetch.ListingPage{
		{Items: []fetch.RawItem{item("Kit A", "https://example.com/a", "¥1,000")}, TotalPages: 2},
		{Items: []fetch.RawItem{item("Kit B", "https://example.com/b", "¥2,000")}},
	}}
	sink := &fakeSink{}
	w := newWalker(t, src, sink, dedup.NewLedger())

	res, err := w.Run(context.Background(), hljGroup(), "")
	require.NoError(t, err)

	assert.Equal(t, DoneExhausted, res.State)
	assert.Equal(t, 2, res.PagesVisited)
	assert.Equal(t, 2, res.Emitted)
}

func TestRunStopsWhenPagerOffersNoNext(t *testing.T) {
	// Counted total says 5 pages but the pager dries up after 1.
	src := &fakeSource{pages: []*fetch.ListingPage{
		{Items: []fetch.RawItem{item("Kit A", "https://example.com/a", "¥1,000")}, TotalPages: 5},
	}}
	sink := &fakeSink{}
	w := newWalker(t, src, sink, dedup.NewLedger())

	res, err := w.Run(context.Background(), hljGroup(), "")
	require.NoError(t, err)

	assert.Equal(t, DoneNoNext, res.State)
	assert.Equal(t, 1, res.PagesVisited)
}

func TestRunDeduplicatesAcrossPages(t *testing.T) {
	ledger := dedup.NewLedger()
	ledger.MarkSeen("https://example.com/a")

	src := &fakeSource{pages: []*fetch.ListingPage{
		{
			Items: []fetch.RawItem{
				item("Kit A", "https://example.com/a", "¥1,000"),
				item("Kit B", "https://example.com/b", "¥2,000"),
			},
			TotalPages: 2,
		},
		{
			// Catalog shifted between pages and repeated Kit B.
			Items: []fetch.RawItem{
				item("Kit B", "https://example.com/b", "¥2,000"),
				item("Kit C", "https://example.com/c", "¥3,000"),
			},
		},
	}}
	sink := &fakeSink{}
	w := newWalker(t, src, sink, ledger)

	res, err := w.Run(context.Background(), hljGroup(), "")
	require.NoError(t, err)

	assert.Equal(t, 2, res.Emitted)
	assert.Equal(t, []string{"https://example.com/b", "https://example.com/c"}, emittedURLs(sink))
}

func TestRunDropsInvalidItems(t *testing.T) {
	src := &fakeSource{pages: []*fetch.ListingPage{
		{
			Items: []fetch.RawItem{
				item("", "https://example.com/untitled", "¥1,000"),
				item("Kit No URL", "", "¥2,000"),
				item("Kit OK", "https://example.com/ok", "¥3,000"),
			},
			TotalPages: 1,
		},
	}}
	sink := &fakeSink{}
	ledger := dedup.NewLedger()

	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	w, err := New(Config{
		Source:        src,
		Ledger:        ledger,
		Sink:          sink,
		Logger:        logger,
		TaxMultiplier: 1.10,
	})
	require.NoError(t, err)

	res, err := w.Run(context.Background(), hljGroup(), "")
	require.NoError(t, err)

	assert.Equal(t, 1, res.Emitted)
	assert.Equal(t, 2, res.Dropped)

	// Each drop is logged with its reason, never silent.
	logs := logBuf.String()
	assert.Contains(t, logs, "dropping record")
	assert.Contains(t, logs, "missing title")
	assert.Contains(t, logs, "missing url")

	// The untitled item's URL is still marked seen so later runs skip it.
	assert.True(t, ledger.Seen("https://example.com/untitled"))
}

func TestRunNormalizesRecords(t *testing.T) {
	src := &fakeSource{pages: []*fetch.ListingPage{
		{
			Items: []fetch.RawItem{
				{Title: "ＨＧ ガンダム", URL: "https://example.com/jp", PriceText: "3,300円", ReleaseDateText: "2025年3月"},
				{Title: "HG Gundam", URL: "https://example.com/en", PriceText: "¥3,000"},
			},
			TotalPages: 1,
		},
	}}
	sink := &fakeSink{}
	w := newWalker(t, src, sink, dedup.NewLedger())

	_, err := w.Run(context.Background(), bandaiGroup(), "")
	require.NoError(t, err)
	require.Len(t, sink.records, 2)

	jp := sink.records[0].(*models.ListingRecord)
	assert.Empty(t, jp.Title)
	assert.Equal(t, "ＨＧ ガンダム", jp.TitleJP)
	require.NotNil(t, jp.MSRPJPY)
	assert.Equal(t, 3000, *jp.MSRPJPY) // 3300 gross at 10% tax
	assert.Equal(t, "2025-03-01T00:00:00Z", jp.ReleaseDate)

	en := sink.records[1].(*models.ListingRecord)
	assert.Equal(t, "HG Gundam", en.Title)
	assert.Empty(t, en.TitleJP)
	require.NotNil(t, en.MSRPJPY)
	assert.Equal(t, 2727, *en.MSRPJPY)
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{pages: []*fetch.ListingPage{
		{Items: []fetch.RawItem{item("Kit A", "https://example.com/a", "¥1,000")}, TotalPages: 1},
	}}
	w := newWalker(t, src, &fakeSink{}, dedup.NewLedger())

	_, err := w.Run(ctx, hljGroup(), "")
	assert.ErrorIs(t, err, context.Canceled)
}

func hljGroup() models.Group {
	return models.Group{
		Key:      "HG",
		StartURL: "https://example.com/search?page=1",
		Site:     models.SiteHLJ,
		Strategy: models.PaginateClickNext,
	}
}

func bandaiGroup() models.Group {
	return models.Group{
		Key:          "BH-HG",
		StartURL:     "https://example.com/brand/hg/",
		Site:         models.SiteBandai,
		Strategy:     models.PaginateRewriteURL,
		TaxInclusive: true,
	}
}

func emittedURLs(sink *fakeSink) []string {
	urls := make([]string, 0, len(sink.records))
	for _, rec := range sink.records {
		urls = append(urls, rec.(*models.ListingRecord).URL)
	}
	return urls
}
