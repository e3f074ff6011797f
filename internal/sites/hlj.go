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
	hljItemBlock = "div.search-widget-block"
	hljItemLink  = "p.product-item-name a"
	hljItemPrice = "div.price span.bold.stock-left"
	hljPagerLink = "ul.pages li a"
)

// hljExtractJS pulls title, relative href and the rendered price text out of
// every result block in one round trip.
const hljExtractJS = `blocks => blocks.map(block => {
	const link = block.querySelector('p.product-item-name a');
	const price = block.querySelector('div.price span.bold.stock-left');
	return {
		title: link ? link.textContent.trim() : '',
		href: link ? link.getAttribute('href') : '',
		priceText: price ? price.textContent.trim() : '',
	};
})`

// hljPricesReadyJS reports whether the price spans have been populated by
// the storefront's script. Prices render after the document loads, so the
// first extraction has to wait for them.
const hljPricesReadyJS = `() => {
	const spans = document.querySelectorAll('div.price span.bold.stock-left');
	if (spans.length === 0) return false;
	return Array.from(spans).some(s => s.textContent.trim().length > 0);
}`

// hljListing walks HLJ search results. Pagination is a client-side pager:
// the session keeps one page open and clicks the ">" link to advance.
type hljListing struct {
	b      *browser.Browser
	page   playwright.Page
	logger *slog.Logger
}

func newHLJListing(b *browser.Browser, logger *slog.Logger) *hljListing {
	return &hljListing{
		b:      b,
		logger: logger.With("site", "hlj"),
	}
}

func (h *hljListing) Open(ctx context.Context, url string) (*fetch.ListingPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := h.b.NewPage()
	if err != nil {
		return nil, fmt.Errorf("failed to open page: %w", err)
	}
	h.page = page

	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return nil, &fetch.TransientError{Err: fmt.Errorf("navigate %s: %w", url, err)}
	}

	if err := h.waitForResults(); err != nil {
		return nil, err
	}

	items, err := h.extract()
	if err != nil {
		return nil, err
	}

	total := h.totalPages()
	h.logger.Debug("opened listing", "url", url, "items", len(items), "total_pages", total)

	return &fetch.ListingPage{Items: items, TotalPages: total}, nil
}

func (h *hljListing) Next(ctx context.Context) (*fetch.ListingPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if h.page == nil {
		return nil, fmt.Errorf("next called before open")
	}

	next := h.page.Locator(hljPagerLink, playwright.PageLocatorOptions{
		HasText: ">",
	}).First()

	count, err := next.Count()
	if err != nil {
		return nil, &fetch.TransientError{Err: fmt.Errorf("locate next link: %w", err)}
	}
	if count == 0 {
		return nil, fetch.ErrNoNextPage
	}
	visible, err := next.IsVisible()
	if err != nil || !visible {
		return nil, fetch.ErrNoNextPage
	}

	if err := next.Click(); err != nil {
		return nil, &fetch.TransientError{Err: fmt.Errorf("click next: %w", err)}
	}

	if err := h.waitForResults(); err != nil {
		return nil, err
	}

	items, err := h.extract()
	if err != nil {
		return nil, err
	}

	return &fetch.ListingPage{Items: items}, nil
}

func (h *hljListing) Close() error {
	if h.page == nil {
		return nil
	}
	err := h.page.Close()
	h.page = nil
	return err
}

// waitForResults blocks until the result blocks exist and at least one price
// span carries text.
func (h *hljListing) waitForResults() error {
	if _, err := h.page.WaitForSelector(hljItemBlock); err != nil {
		return &fetch.TransientError{Err: fmt.Errorf("wait for results: %w", err)}
	}
	if _, err := h.page.WaitForFunction(hljPricesReadyJS, nil); err != nil {
		return &fetch.TransientError{Err: fmt.Errorf("wait for prices: %w", err)}
	}
	return nil
}

func (h *hljListing) extract() ([]fetch.RawItem, error) {
	raw, err := h.page.EvalOnSelectorAll(hljItemBlock, hljExtractJS)
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
		item := fetch.RawItem{
			Title:     evalString(fields, "title"),
			PriceText: evalString(fields, "priceText"),
		}
		if href := evalString(fields, "href"); href != "" {
			item.URL = absoluteURL(hljBase, href)
		}
		items = append(items, item)
	}
	return items, nil
}

// totalPages scans the pager links for the largest numeric label. Best
// effort: 0 means the pager was absent or unreadable.
func (h *hljListing) totalPages() int {
	links := h.page.Locator(hljPagerLink)
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
		n, err := strconv.Atoi(strings.TrimSpace(text))
		if err != nil {
			continue
		}
		if n > max {
			max = n
		}
	}
	return max
}
