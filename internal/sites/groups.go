// Package sites holds all site-specific knowledge: group URL tables,
// selectors, pager mechanics and detail-page markup. The extraction engine
// sees only the fetch interfaces exported from internal/fetch.
package sites

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/playwright-community/playwright-go"

	"github.com/hobbylog/gunpla-scraper/internal/browser"
	"github.com/hobbylog/gunpla-scraper/internal/fetch"
	"github.com/hobbylog/gunpla-scraper/internal/models"
)

// hljCurrencyCookie pins HLJ to JPY with zero-precision prices so listing
// price spans come back as plain yen amounts.
const hljCurrencyCookie = "%7B%22currencyCode%22%3A%22JPY%22%2C%22currencyName%22%3A%22Japanese%2BYen%22%2C%22" +
	"currencyPrecision%22%3A0%2C%22currencyPattern%22%3A%22%C2%A5%25s%22%2C%22currencySymbol" +
	"%22%3A%22%C2%A5%22%2C%22tdelta%22%3A%2220260210200101%22%2C%22fallbackCurrencyRate" +
	"%22%3A%221%22%2C%22selectedManually%22%3A1%7D"

const (
	hljBase    = "https://www.hlj.com"
	bandaiBase = "https://bandai-hobby.net"
)

// Cookies returns the cookies every browsing context needs before touching
// the catalog sites.
func Cookies() []playwright.OptionalCookie {
	return []playwright.OptionalCookie{
		{
			Name:     "hljCurrencyData",
			Value:    hljCurrencyCookie,
			Domain:   playwright.String("www.hlj.com"),
			Path:     playwright.String("/"),
			HttpOnly: playwright.Bool(false),
			Secure:   playwright.Bool(false),
			SameSite: playwright.SameSiteAttributeLax,
		},
	}
}

// ListingResourceTypes are the request resource types a listing crawl needs;
// everything else is aborted to keep pages light.
func ListingResourceTypes() []string {
	return []string{"document", "script", "xhr"}
}

// DetailResourceTypes restricts detail fetches to the document itself.
func DetailResourceTypes() []string {
	return []string{"document"}
}

// Groups is the catalog segment table: HLJ search groups paginate by
// clicking the pager and show pre-tax JPY (with the currency cookie set);
// Bandai Hobby brand groups paginate by URL and show tax-inclusive prices.
func Groups() map[string]models.Group {
	groups := make(map[string]models.Group)

	hlj := map[string]string{
		"PG":         hljBase + "/search/?Page=1&GenreCode2=Gundam&MacroType2=Perfect+Grade+Kits&MacroType2=Perfect-Grade+Kits&Sort=rss+desc",
		"MG":         hljBase + "/search/?Page=1&GenreCode2=Gundam&MacroType2=Master+Grade+Kits&MacroType2=Master-Grade+Kits&Sort=rss+desc",
		"RG":         hljBase + "/search/?Page=1&GenreCode2=Gundam&MacroType2=Real+Grade+Kits&MacroType2=Real-Grade+Kits&Sort=rss+desc",
		"HG":         hljBase + "/search/?Page=1&MacroType2=High+Grade+Kits&MacroType2=High-Grade+Kits&GenreCode2=Gundam&Sort=rss+desc",
		"HGUC":       hljBase + "/search/?Page=1&MacroType2=High+Grade+Kits&MacroType2=High-Grade+Kits&GenreCode2=Gundam&SeriesID2=High+Grade+Universal+Century&Sort=rss+desc",
		"SDBB":       hljBase + "/search/?Word=sd+gundam&MacroType2=SD+%26+BB+Grade+Kits&Page=1&MacroType2=High+Grade+Kits&MacroType2=High-Grade+Kits&Sort=rss+desc",
		"EG":         hljBase + "/search/?Page=1&Word=gundam+entry+grade&MacroType2=Other+Gundam+Kits&Sort=rss+desc",
		"HG-SEED":    hljBase + "/search/?Page=1&MacroType2=High+Grade+Kits&MacroType2=High-Grade+Kits&GenreCode2=Gundam&SeriesID2=Gundam+Seed&Sort=rss+desc",
		"HG-SEED-DY": hljBase + "/search/?Page=1&MacroType2=High+Grade+Kits&MacroType2=High-Grade+Kits&GenreCode2=Gundam&SeriesID2=Gundam+Seed+Destiny&Sort=rss+desc",
		"HG-SEED-FM": hljBase + "/search/?Page=1&MacroType2=High+Grade+Kits&MacroType2=High-Grade+Kits&GenreCode2=Gundam&SeriesID2=Gundam+Seed+Freedom&Sort=rss+desc",
		"HG-WING":    hljBase + "/search/?Page=1&MacroType2=High+Grade+Kits&MacroType2=High-Grade+Kits&GenreCode2=Gundam&SeriesID2=Gundam+Wing&Sort=rss+desc",
		"HG-UNI":     hljBase + "/search/?Page=1&MacroType2=High+Grade+Kits&MacroType2=High-Grade+Kits&GenreCode2=Gundam&SeriesID2=Gundam+UC+%28Unicorn%29&Sort=rss+desc",
		"HG-ZETA":    hljBase + "/search/?Page=1&MacroType2=High+Grade+Kits&MacroType2=High-Grade+Kits&GenreCode2=Gundam&SeriesID2=Zeta+Gundam&Sort=rss+desc",
		"HG-IBO":     hljBase + "/search/?Page=1&MacroType2=High+Grade+Kits&MacroType2=High-Grade+Kits&GenreCode2=Gundam&SeriesID2=Mobile+Suit+Gundam%3A+Iron-Blooded+Orphans&Sort=rss+desc",
		"HG-CCA":     hljBase + "/search/?Page=1&MacroType2=High+Grade+Kits&MacroType2=High-Grade+Kits&GenreCode2=Gundam&SeriesID2=Char%27s+Counterattack&Sort=rss+desc",
		"HG-WFM":     hljBase + "/search/?Page=1&MacroType2=High+Grade+Kits&MacroType2=High-Grade+Kits&GenreCode2=Gundam&SeriesID2=Mobile+Suit+Gundam+The+Witch+From+Mercury&Sort=rss+desc",
		"HG-GQX":     hljBase + "/search/?Page=1&MacroType2=High+Grade+Kits&MacroType2=High-Grade+Kits&GenreCode2=Gundam&SeriesID2=Mobile+Suit+Gundam+GQuuuuuuX&Sort=rss+desc",
	}
	for key, url := range hlj {
		groups[key] = models.Group{
			Key:      key,
			StartURL: url,
			Site:     models.SiteHLJ,
			Strategy: models.PaginateClickNext,
		}
	}

	bandai := map[string]string{
		"BH-HG":    bandaiBase + "/brand/hg/",
		"BH-RG":    bandaiBase + "/brand/rg/",
		"BH-MG":    bandaiBase + "/brand/mg/",
		"BH-MGSD":  bandaiBase + "/brand/mgsd/",
		"BH-MGKA":  bandaiBase + "/brand/mgka/",
		"BH-MGEX":  bandaiBase + "/brand/mgex/",
		"BH-EG":    bandaiBase + "/brand/entry_grade_g/",
		"BH-OPS":   bandaiBase + "/brand/optionpartsset/",
		"BH-FM":    bandaiBase + "/brand/fullmechanics/",
		"BHPB-ALL": bandaiBase + "/brand/pb_gunpla/",
		"BHPB-RG":  bandaiBase + "/brand/pb_rg/",
		"BHPB-HG":  bandaiBase + "/brand/pb_hg/",
		"BHPB-PG":  bandaiBase + "/brand/pb_pg/",
		"BHPB-MG":  bandaiBase + "/brand/pb_mg/",
	}
	for key, url := range bandai {
		groups[key] = models.Group{
			Key:          key,
			StartURL:     url,
			Site:         models.SiteBandai,
			Strategy:     models.PaginateRewriteURL,
			TaxInclusive: true,
		}
	}

	return groups
}

// GroupKeys returns all group keys in sorted order.
func GroupKeys() []string {
	groups := Groups()
	keys := make([]string, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// NewListingSource builds the listing session implementation for a group,
// selected by its pagination strategy: the HLJ pager is advanced by clicking
// its next control, the Bandai archives by navigating to the next URL.
func NewListingSource(b *browser.Browser, group models.Group, logger *slog.Logger) (fetch.ListingSource, error) {
	switch group.Strategy {
	case models.PaginateClickNext:
		return newHLJListing(b, logger), nil
	case models.PaginateRewriteURL:
		return newBandaiListing(b, logger), nil
	default:
		return nil, fmt.Errorf("no listing source for pagination strategy %q", group.Strategy)
	}
}
