package sites

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/hobbylog/gunpla-scraper/internal/browser"
	"github.com/hobbylog/gunpla-scraper/internal/fetch"
)

const (
	bandaiCard      = "a.c-card.p-card"
	bandaiPagerList = ".p-pagination__list"
	bandaiLastPage  = ".p-pagination__list:last-of-type a.c-archives__pagination-list-item-link"
	bandaiNextLink  = ".p-pagination__nextList a"
)

// bandaiExtractJS reads each product card in one round trip. Cards carry an
// absolute href; titles and dates sometimes wrap, so whitespace is collapsed
// in the page.
const bandaiExtractJS = `cards => cards.map(card => {
	const clean = s => (s || '').replace(/\s+/g, ' ').trim();
	const tit = card.querySelector('.p-card__tit');
	const price = card.querySelector('.p-card__price');
	const date = card.querySelector('.p-card__date, .p-card_date');
	return {
		title: clean(tit && tit.textContent),
		href: card.href || '',
		priceText: clean(price && price.textContent),
		releaseDateText: clean(date && date.textContent),
	};
})`

// bandaiListing walks Bandai Hobby brand archives. Pagination is URL-driven:
// each page is a distinct document and the next link's href is the next URL.
type bandaiListing struct {
	b      *browser.Browser
	page   playwright.Page
	logger *slog.Logger
}

func newBandaiListing(b *browser.Browser, logger *slog.Logger) *bandaiListing {
	return &bandaiListing{
		b:      b,
		logger: logger.With("site", "bandai"),
	}
}

func (bl *bandaiListing) Open(ctx context.Context, url string) (*fetch.ListingPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := bl.b.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	bl.page = page

	if err := bl.navigate(url); err != nil {
		return nil, err
	}

	items, err := bl.extract()
	if err != nil {
		return nil, err
	}

	total := bl.totalPages()
	bl.logger.Debug("opened listing", "url", url, "items", len(items), "total_pages", total)

	return &fetch.ListingPage{Items: items, TotalPages: total}, nil
}

func (bl *bandaiListing) Next(ctx context.Context) (*fetch.ListingPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if bl.page == nil {
		return nil, fmt.Errorf("next called before open")
	}

	next := bl.page.Locator(bandaiNextLink).First()
	count, err := next.Count()
	if err != nil {
		return nil, &fetch.TransientError{Err: fmt.Errorf("locate next link: %w", err)}
	}
	if count == 0 {
		return nil, fetch.ErrNoNextPage
	}

	href, err := next.Evaluate("el => el.href", nil)
	if err != nil {
		return nil, &fetch.TransientError{Err: fmt.Errorf("read next href: %w", err)}
	}
	nextURL, _ := href.(string)
	nextURL = strings.TrimSpace(nextURL)

	// Archives sometimes render a next arrow that points back at the
	// current page; treat that as the end rather than looping.
	if nextURL == "" || nextURL == bl.page.URL() {
		return nil, fetch.ErrNoNextPage
	}

	if err := bl.navigate(nextURL); err != nil {
		return nil, err
	}

	items, err := bl.extract()
	if err != nil {
		return nil, err
	}

	return &fetch.ListingPage{Items: items}, nil
}

func (bl *bandaiListing) Close() error {
	if bl.page == nil {
		return nil
	}
	err := bl.page.Close()
	bl.page = nil
	return err
}

func (bl *bandaiListing) navigate(url string) error {
	if _, err := bl.page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return &fetch.TransientError{Err: fmt.Errorf("navigate %s: %w", url, err)}
	}
	if _, err := bl.page.WaitForSelector(bandaiCard); err != nil {
		return &fetch.TransientError{Err: fmt.Errorf("wait for cards: %w", err)}
	}
	return nil
}

func (bl *bandaiListing) extract() ([]fetch.RawItem, error) {
	raw, err := bl.page.EvalOnSelectorAll(bandaiCard, bandaiExtractJS)
	if err != nil {
		return nil, &fetch.TransientError{Err: fmt.Errorf("extract items: %w", err)}
	}

	entries, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected extraction result %T", raw)
	}

	items := make([]fetch.RawItem, 0, len(entries))
	for _, entry := range entries {
		fields, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		items = append(items, fetch.RawItem{
			Title:           evalString(fields, "title"),
			URL:             evalString(fields, "href"),
			PriceText:       evalString(fields, "priceText"),
			ReleaseDateText: evalString(fields, "releaseDateText"),
		})
	}
	return items, nil
}

// totalPages reads the last pager entry; falls back to scanning every pager
// link for the largest number.
func (bl *bandaiListing) totalPages() int {
	last := bl.page.Locator(bandaiLastPage).First()
	if count, err := last.Count(); err == nil && count > 0 {
		if text, err := last.TextContent(); err == nil {
			if n, err := strconv.Atoi(strings.TrimSpace(text)); err == nil {
				return n
			}
		}
	}

	links := bl.page.Locator(bandaiPagerList + " a")
	count, err := links.Count()
	if err != nil {
		return 0
	}
	max := 0
	for i := 0; i < count; i++ {
		text, err := links.Nth(i).TextContent()
		if err != nil {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(text)); err == nil && n > max {
			max = n
		}
	}
	return max
}
