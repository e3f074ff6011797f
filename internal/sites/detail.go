package sites

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/playwright-community/playwright-go"

	"github.com/hobbylog/gunpla-scraper/internal/browser"
	"github.com/hobbylog/gunpla-scraper/internal/fetch"
)

const (
	detailTitle   = "h2.page-title"
	detailPrice   = "p.price.product-margin"
	detailBlock   = "div.product-details"
	detailListRow = "div.product-details ul li"
)

var (
	reReleaseDate = regexp.MustCompile(`^Release Date:\s*(.+)$`)
	reSeries      = regexp.MustCompile(`^Series:\s*(.+)$`)
	reItemType    = regexp.MustCompile(`^Item Type:\s*(.+)$`)
	reSizeWeight  = regexp.MustCompile(`^Item Size/Weight:\s*(.+)$`)
)

// HLJDetail fetches HLJ product pages. Each Fetch opens a fresh page in the
// shared context so concurrent workers never share browser state.
type HLJDetail struct {
	b      *browser.Browser
	logger *slog.Logger
}

func NewHLJDetail(b *browser.Browser, logger *slog.Logger) *HLJDetail {
	return &HLJDetail{
		b:      b,
		logger: logger.With("site", "hlj"),
	}
}

func (d *HLJDetail) Fetch(ctx context.Context, url string) (*fetch.DetailPage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	page, err := d.b.NewPage()
	if err != nil {
		return nil, &fetch.TransientError{Err: fmt.Errorf("open page: %w", err)}
	}
	defer page.Close()

	resp, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
	})
	if err != nil {
		return nil, &fetch.TransientError{Err: fmt.Errorf("navigate %s: %w", url, err)}
	}
	if resp != nil && resp.Status() != 200 {
		return nil, &fetch.HTTPStatusError{Status: resp.Status(), URL: url}
	}

	if _, err := page.WaitForSelector(detailBlock); err != nil {
		return nil, &fetch.TransientError{Err: fmt.Errorf("wait for product details: %w", err)}
	}

	html, err := page.Content()
	if err != nil {
		return nil, &fetch.TransientError{Err: fmt.Errorf("read page content: %w", err)}
	}

	return ParseDetailHTML(url, html)
}

// ParseDetailHTML extracts the raw detail fields from a rendered product
// page. A missing title usually means the page was half rendered when the
// snapshot was taken, so it surfaces as retryable.
func ParseDetailHTML(pageURL, html string) (*fetch.DetailPage, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse detail html: %w", err)
	}

	title := strings.TrimSpace(doc.Find(detailTitle).First().Text())
	if title == "" {
		return nil, &fetch.TransientError{
			Err: &fetch.ExtractionError{Field: "title", URL: pageURL},
		}
	}

	dp := &fetch.DetailPage{
		URL:       pageURL,
		Title:     title,
		PriceText: detailPriceText(doc),
	}

	doc.Find(detailListRow).Each(func(_ int, row *goquery.Selection) {
		for _, line := range SplitDetailLines(row.Text()) {
			switch {
			case dp.ReleaseDateText == "" && reReleaseDate.MatchString(line):
				dp.ReleaseDateText = reReleaseDate.FindStringSubmatch(line)[1]
			case dp.Series == "" && reSeries.MatchString(line):
				dp.Series = reSeries.FindStringSubmatch(line)[1]
			case dp.ItemType == "" && reItemType.MatchString(line):
				dp.ItemType = reItemType.FindStringSubmatch(line)[1]
			case dp.SizeWeightText == "" && reSizeWeight.MatchString(line):
				dp.SizeWeightText = reSizeWeight.FindStringSubmatch(line)[1]
			}
		}
	})

	return dp, nil
}

// detailPriceText reads the price element's leading text node only. The
// element nests a struck-through original price in a child span, which must
// not bleed into the amount.
func detailPriceText(doc *goquery.Document) string {
	var text string
	doc.Find(detailPrice).First().Contents().EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if goquery.NodeName(s) != "#text" {
			return true
		}
		if t := strings.TrimSpace(s.Text()); t != "" {
			text = t
			return false
		}
		return true
	})
	return text
}

// SplitDetailLines breaks a spec list row into trimmed logical lines. Rows
// pack several "Label: value" pairs separated by newlines.
func SplitDetailLines(text string) []string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}
