package models

// PaginationStrategy selects how a listing source advances between pages.
type PaginationStrategy string

const (
	// PaginateClickNext clicks the pager's next control on the live page.
	PaginateClickNext PaginationStrategy = "click-next"
	// PaginateRewriteURL navigates directly to the next page's URL.
	PaginateRewriteURL PaginationStrategy = "rewrite-url"
)

// Site identifies which catalog a group belongs to.
type Site string

const (
	SiteHLJ    Site = "hlj"
	SiteBandai Site = "bandai"
)

// Group is one configured catalog segment crawled as a unit. Immutable
// configuration, not runtime state.
type Group struct {
	Key      string
	StartURL string
	Site     Site
	Strategy PaginationStrategy

	// TaxInclusive marks sources that display tax-inclusive prices; the
	// walker backs the tax out before storing MSRP.
	TaxInclusive bool
}

// ListingRecord is one row in a group's raw sink. Written once per unique
// URL per stream, never mutated after write.
type ListingRecord struct {
	Title       string `json:"title,omitempty"`
	TitleJP     string `json:"titleJP,omitempty"`
	URL         string `json:"url"`
	MSRPJPY     *int   `json:"msrpJPY"`
	ReleaseDate string `json:"releaseDate,omitempty"`
}

// DetailRecord is one row in the shared detail sink: either an enriched
// product or an error tag for a URL that could not be scraped.
//
// Error carries either an HTTP status code (int) or one of the string tags
// "parse_failed" / "scrape_exception", matching the sink's wire format.
type DetailRecord struct {
	URL         string   `json:"url"`
	Name        string   `json:"name,omitempty"`
	MSRPJPY     *int     `json:"msrpJPY,omitempty"`
	ReleaseDate string   `json:"releaseDate,omitempty"`
	Series      string   `json:"series,omitempty"`
	ItemType    string   `json:"type,omitempty"`
	DimL        *float64 `json:"dimL,omitempty"`
	DimW        *float64 `json:"dimW,omitempty"`
	DimH        *float64 `json:"dimH,omitempty"`
	WeightGrams *float64 `json:"weight,omitempty"`

	Error   any    `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// Failed reports whether the record is an error tag rather than a product.
func (r *DetailRecord) Failed() bool {
	return r.Error != nil
}
