package details

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hobbylog/gunpla-scraper/internal/fetch"
	"github.com/hobbylog/gunpla-scraper/internal/models"
)

// fakeDetailSource scripts per-URL outcomes. Each call to a URL consumes the
// next outcome in its list; the last outcome repeats.
type fakeDetailSource struct {
	mu       sync.Mutex
	outcomes map[string][]outcome
	calls    map[string]int
}

type outcome struct {
	page *fetch.DetailPage
	err  error
}

func newFakeSource() *fakeDetailSource {
	return &fakeDetailSource{
		outcomes: make(map[string][]outcome),
		calls:    make(map[string]int),
	}
}

func (f *fakeDetailSource) on(url string, outs ...outcome) {
	f.outcomes[url] = outs
}

func (f *fakeDetailSource) Fetch(_ context.Context, url string) (*fetch.DetailPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	outs := f.outcomes[url]
	if len(outs) == 0 {
		return nil, errors.New("unexpected url " + url)
	}
	i := f.calls[url]
	f.calls[url]++
	if i >= len(outs) {
		i = len(outs) - 1
	}
	out := outs[i]
	return out.page, out.err
}

func (f *fakeDetailSource) callCount(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

type memSink struct {
	mu      sync.Mutex
	records []*models.DetailRecord
	flushes int
}

func (m *memSink) Append(record any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record.(*models.DetailRecord))
	return nil
}

func (m *memSink) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushes++
	return nil
}

func (m *memSink) byURL(url string) *models.DetailRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rec := range m.records {
		if rec.URL == url {
			return rec
		}
	}
	return nil
}

func page(url, title, price string) *fetch.DetailPage {
	return &fetch.DetailPage{URL: url, Title: title, PriceText: price}
}

func newFetcher(t *testing.T, src fetch.DetailSource, sink RecordSink) *Fetcher {
	t.Helper()
	f, err := New(Config{
		Source:      src,
		Sink:        sink,
		Concurrency: 3,
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
		FlushEvery:  2,
	})
	require.NoError(t, err)
	return f
}

func TestRunOneRecordPerURL(t *testing.T) {
	src := newFakeSource()
	src.on("u1", outcome{page: page("u1", "Kit One", "¥1,000")})
	src.on("u2", outcome{err: &fetch.HTTPStatusError{Status: 404, URL: "u2"}})
	src.on("u3", outcome{err: &fetch.TransientError{Err: errors.New("timeout")}})
	src.on("u4", outcome{err: errors.New("page crashed")})

	sink := &memSink{}
	f := newFetcher(t, src, sink)

	summary, err := f.Run(context.Background(), []string{"u1", "u2", "u3", "u4"})
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Done)
	assert.Equal(t, 1, summary.OK)
	assert.Equal(t, 3, summary.Errors)
	assert.Len(t, sink.records, 4)

	ok := sink.byURL("u1")
	require.NotNil(t, ok)
	assert.False(t, ok.Failed())
	assert.Equal(t, "Kit One", ok.Name)
	require.NotNil(t, ok.MSRPJPY)
	assert.Equal(t, 1000, *ok.MSRPJPY)

	assert.Equal(t, 404, sink.byURL("u2").Error)
	assert.Equal(t, "parse_failed", sink.byURL("u3").Error)

	crashed := sink.byURL("u4")
	assert.Equal(t, "scrape_exception", crashed.Error)
	assert.Equal(t, "page crashed", crashed.Message)
}

func TestRunRetriesTransientThenSucceeds(t *testing.T) {
	src := newFakeSource()
	src.on("u1",
		outcome{err: &fetch.TransientError{Err: errors.New("timeout")}},
		outcome{err: &fetch.TransientError{Err: errors.New("timeout")}},
		outcome{page: page("u1", "Kit One", "¥2,420")},
	)

	sink := &memSink{}
	f := newFetcher(t, src, sink)

	summary, err := f.Run(context.Background(), []string{"u1"})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.OK)
	assert.Equal(t, 3, src.callCount("u1"))
	assert.False(t, sink.byURL("u1").Failed())
}

func TestRunExhaustsRetries(t *testing.T) {
	src := newFakeSource()
	src.on("u1", outcome{err: &fetch.TransientError{Err: errors.New("timeout")}})

	sink := &memSink{}
	f := newFetcher(t, src, sink)

	summary, err := f.Run(context.Background(), []string{"u1"})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Errors)
	// Initial attempt plus MaxRetries.
	assert.Equal(t, 3, src.callCount("u1"))
	assert.Equal(t, "parse_failed", sink.byURL("u1").Error)
}

func TestRunHTTPStatusNotRetried(t *testing.T) {
	src := newFakeSource()
	src.on("u1", outcome{err: &fetch.HTTPStatusError{Status: 500, URL: "u1"}})

	sink := &memSink{}
	f := newFetcher(t, src, sink)

	_, err := f.Run(context.Background(), []string{"u1"})
	require.NoError(t, err)

	assert.Equal(t, 1, src.callCount("u1"))
	assert.Equal(t, 500, sink.byURL("u1").Error)
}

func TestRunCanceledEmitsNothingBogus(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	src := newFakeSource()
	src.on("u1", outcome{err: &fetch.TransientError{Err: errors.New("timeout")}})
	blocker := &blockingSource{inner: src, release: make(chan struct{})}

	sink := &memSink{}
	f, err := New(Config{
		Source:      blocker,
		Sink:        sink,
		Concurrency: 1,
		MaxRetries:  3,
		BackoffBase: time.Hour, // cancellation must cut the backoff short
	})
	require.NoError(t, err)

	done := make(chan struct{})
	var runErr error
	go func() {
		_, runErr = f.Run(ctx, []string{"u1"})
		close(done)
	}()

	<-blocker.release
	cancel()
	<-done

	require.Error(t, runErr)
	assert.ErrorIs(t, runErr, context.Canceled)
	assert.Empty(t, sink.records)
}

// blockingSource signals when the first fetch has happened so the test can
// cancel mid-backoff.
type blockingSource struct {
	inner   fetch.DetailSource
	once    sync.Once
	release chan struct{}
}

func (b *blockingSource) Fetch(ctx context.Context, url string) (*fetch.DetailPage, error) {
	p, err := b.inner.Fetch(ctx, url)
	b.once.Do(func() { close(b.release) })
	return p, err
}

// brokenSink fails every append, as a full disk would.
type brokenSink struct{}

func (brokenSink) Append(any) error { return errors.New("disk full") }
func (brokenSink) Flush() error     { return nil }

func TestRunSinkFailureReleasesPool(t *testing.T) {
	src := newFakeSource()
	urls := []string{"u1", "u2", "u3", "u4", "u5", "u6"}
	for _, url := range urls {
		src.on(url, outcome{page: page(url, "Kit "+url, "¥1,000")})
	}

	f, err := New(Config{
		Source:      src,
		Sink:        brokenSink{},
		Concurrency: 3,
		MaxRetries:  2,
		BackoffBase: time.Millisecond,
	})
	require.NoError(t, err)

	before := runtime.NumGoroutine()

	summary, err := f.Run(context.Background(), urls)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "append record")
	assert.Zero(t, summary.Done)

	// The feeder, workers and closer must all have wound down by the time
	// Run returns, not stay blocked on their channels.
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRunEmptyPendingSet(t *testing.T) {
	sink := &memSink{}
	f := newFetcher(t, newFakeSource(), sink)

	summary, err := f.Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, summary.Done)
	assert.Zero(t, sink.flushes)
}

func TestBuildRecordSizeWeight(t *testing.T) {
	f := newFetcher(t, newFakeSource(), &memSink{})

	rec := f.buildRecord(&fetch.DetailPage{
		URL:             "u1",
		Title:           "PG Unleashed RX-78-2",
		PriceText:       "¥27,500",
		ReleaseDateText: "2020/12/19",
		Series:          "Mobile Suit Gundam",
		ItemType:        "Injection Kit",
		SizeWeightText:  "60 x 45 x 22 cm / 3.5kg",
	})

	assert.Equal(t, "PG Unleashed RX-78-2", rec.Name)
	require.NotNil(t, rec.MSRPJPY)
	assert.Equal(t, 27500, *rec.MSRPJPY)
	assert.Equal(t, "2020-12-19T00:00:00Z", rec.ReleaseDate)
	require.NotNil(t, rec.DimL)
	assert.Equal(t, 60.0, *rec.DimL)
	assert.Equal(t, 45.0, *rec.DimW)
	assert.Equal(t, 22.0, *rec.DimH)
	require.NotNil(t, rec.WeightGrams)
	assert.Equal(t, 3500.0, *rec.WeightGrams)
	assert.False(t, rec.Failed())
}
