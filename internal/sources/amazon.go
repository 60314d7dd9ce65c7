package sources

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pricepatrol/internal/types"
)

const amazonBase = "https://www.amazon.in"

// Amazon category slugs for the search alias parameter.
var amazonCategoryAlias = map[string]string{
	"electronics": "electronics",
	"computers":   "computers",
	"appliances":  "appliances",
	"mobiles":     "electronics",
}

// Amazon extracts search results from amazon.in.
type Amazon struct {
	deps Deps
}

// NewAmazon creates the Amazon adapter.
func NewAmazon(deps Deps) *Amazon {
	return &Amazon{deps: deps}
}

func (a *Amazon) Name() string { return "Amazon" }

// BuildQueryURL maps a query and category to an Amazon search URL.
func (a *Amazon) BuildQueryURL(query, category string) string {
	u := amazonBase + "/s?k=" + searchQuery(query)
	if alias, ok := amazonCategoryAlias[strings.ToLower(category)]; ok {
		u += "&i=" + alias
	}
	return u
}

// Selector fallback chains; first non-empty result wins. Amazon rotates
// result markup between widget variants, hence the depth.
var (
	amazonItemSelectors = []string{
		`div.s-result-item[data-component-type="s-search-result"]`,
		`div[data-asin].s-result-item`,
	}
	amazonTitleSelectors = []string{
		`h2 a span`,
		`h2 span.a-text-normal`,
		`span.a-size-medium.a-color-base`,
	}
	amazonPriceSelectors = []string{
		`span.a-price:not(.a-text-price) span.a-offscreen`,
		`span.a-price-whole`,
	}
	amazonOriginalSelectors = []string{
		`span.a-price.a-text-price span.a-offscreen`,
	}
	amazonRatingSelectors = []string{
		`span.a-icon-alt`,
	}
	amazonLinkSelectors = []string{
		`h2 a`,
		`a.a-link-normal.s-no-outline`,
	}
	amazonImageSelectors = []string{
		`img.s-image`,
	}
)

func (a *Amazon) Extract(ctx context.Context, in *ExtractInput) ([]types.RawListing, error) {
	return extractSearch(ctx, a.deps, a.Name(), a.BuildQueryURL(in.Query, in.Category), a.parseSearch)
}

func (a *Amazon) ExtractDetail(ctx context.Context, productURL string) (*types.RawListing, error) {
	return extractDetail(ctx, a.deps, a.Name(), productURL, func(html string) *types.RawListing {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil
		}
		title := firstText(doc.Selection, []string{`#productTitle`, `h1 span#productTitle`})
		price := ParsePrice(firstText(doc.Selection, []string{
			`span.a-price:not(.a-text-price) span.a-offscreen`,
			`#corePrice_feature_div span.a-offscreen`,
		}))
		raw, ok := candidate(a.Name(), title, productURL, price, 0, 0, "")
		if !ok {
			return nil
		}
		return &raw
	})
}

// parseSearch mines raw candidates out of a rendered results page.
func (a *Amazon) parseSearch(html string) []types.RawListing {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	items := firstSelection(doc, amazonItemSelectors)
	if items == nil {
		return nil
	}

	var out []types.RawListing
	items.Each(func(_ int, sel *goquery.Selection) {
		title := firstText(sel, amazonTitleSelectors)
		price := ParsePrice(firstText(sel, amazonPriceSelectors))
		original := ParsePrice(firstText(sel, amazonOriginalSelectors))
		rating := ParseRating(firstText(sel, amazonRatingSelectors))
		link := AbsoluteURL(amazonBase, firstAttr(sel, amazonLinkSelectors, "href"))
		image := firstAttr(sel, amazonImageSelectors, "src")

		// Partial matches are dropped silently.
		if raw, ok := candidate(a.Name(), title, link, price, original, rating, image); ok {
			out = append(out, raw)
		}
	})
	return out
}
