// Package fetch defines the page-fetch capability the extraction engine
// depends on. The walker and detail fetcher only see these interfaces;
// site-specific selector knowledge lives behind them in internal/sites, and
// tests substitute canned fakes.
package fetch

import "context"

// RawItem is one candidate product extracted from a listing page, before
// normalization. URL is absolute and canonical; text fields are raw.
type RawItem struct {
	Title           string
	URL             string
	PriceText       string
	ReleaseDateText string
}

// ListingPage is the result of fetching one listing page. TotalPages is
// derived from the pager and is only meaningful on the first page of a
// session.
type ListingPage struct {
	Items      []RawItem
	TotalPages int
}

// ListingSource is a stateful session over one group's paginated listing.
// Open starts at the group's first page; Next advances to the following
// page by whatever mechanism the site requires (clicking the pager or
// navigating to a rewritten URL) and returns ErrNoNextPage when the pager
// offers nothing further.
type ListingSource interface {
	Open(ctx context.Context, url string) (*ListingPage, error)
	Next(ctx context.Context) (*ListingPage, error)
	Close() error
}

// DetailPage carries the raw text fields of one product detail page. The
// *Text fields are unparsed; the detail fetcher runs them through the
// normalization pipeline.
type DetailPage struct {
	URL             string
	Title           string
	PriceText       string
	ReleaseDateText string
	Series          string
	ItemType        string
	SizeWeightText  string
}

// DetailSource fetches one product detail page. Non-success HTTP statuses
// surface as *HTTPStatusError and transport-level failures (timeouts,
// navigation errors) as *TransientError, so callers can tell terminal from
// retryable failures apart.
type DetailSource interface {
	Fetch(ctx context.Context, url string) (*DetailPage, error)
}
