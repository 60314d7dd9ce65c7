package sources

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pricepatrol/internal/types"
)

const flipkartBase = "https://www.flipkart.com"

// Flipkart extracts search results from flipkart.com.
type Flipkart struct {
	deps Deps
}

// NewFlipkart creates the Flipkart adapter.
func NewFlipkart(deps Deps) *Flipkart {
	return &Flipkart{deps: deps}
}

func (f *Flipkart) Name() string { return "Flipkart" }

// BuildQueryURL maps a query to a Flipkart search URL. Flipkart encodes the
// category through its otracker marketplace param rather than a path, so
// category only seeds the search text when it is not the default.
func (f *Flipkart) BuildQueryURL(query, category string) string {
	u := flipkartBase + "/search?q=" + searchQuery(query)
	u += "&marketplace=FLIPKART"
	return u
}

// Flipkart renders grid results (electronics) and list results (general)
// with disjoint class sets, hence two selector families per field.
var (
	flipkartItemSelectors = []string{
		`div._1AtVbE div._13oc-S`,
		`div._1AtVbE div._4ddWXP`,
		`div[data-id]`,
	}
	flipkartTitleSelectors = []string{
		`div._4rR01T`,
		`a.s1Q9rs`,
		`a.IRpwTa`,
	}
	flipkartPriceSelectors = []string{
		`div._30jeq3._1_WHN1`,
		`div._30jeq3`,
	}
	flipkartOriginalSelectors = []string{
		`div._3I9_wc._27UcVY`,
		`div._3I9_wc`,
	}
	flipkartRatingSelectors = []string{
		`div._3LWZlK`,
	}
	flipkartLinkSelectors = []string{
		`a._1fQZEK`,
		`a.s1Q9rs`,
		`a.IRpwTa`,
		`a._2rpwqI`,
	}
	flipkartImageSelectors = []string{
		`img._396cs4`,
		`img._2r_T1I`,
	}
)

func (f *Flipkart) Extract(ctx context.Context, in *ExtractInput) ([]types.RawListing, error) {
	return extractSearch(ctx, f.deps, f.Name(), f.BuildQueryURL(in.Query, in.Category), f.parseSearch)
}

func (f *Flipkart) ExtractDetail(ctx context.Context, productURL string) (*types.RawListing, error) {
	return extractDetail(ctx, f.deps, f.Name(), productURL, func(html string) *types.RawListing {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil
		}
		title := firstText(doc.Selection, []string{`span.B_NuCI`, `h1.yhB1nd`})
		price := ParsePrice(firstText(doc.Selection, []string{`div._30jeq3._16Jk6d`, `div._30jeq3`}))
		raw, ok := candidate(f.Name(), title, productURL, price, 0, 0, "")
		if !ok {
			return nil
		}
		return &raw
	})
}

func (f *Flipkart) parseSearch(html string) []types.RawListing {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	items := firstSelection(doc, flipkartItemSelectors)
	if items == nil {
		return nil
	}

	var out []types.RawListing
	items.Each(func(_ int, sel *goquery.Selection) {
		title := firstText(sel, flipkartTitleSelectors)
		if title == "" {
			// List-layout cards carry the title in the link's title attr.
			title = firstAttr(sel, flipkartLinkSelectors, "title")
		}
		price := ParsePrice(firstText(sel, flipkartPriceSelectors))
		original := ParsePrice(firstText(sel, flipkartOriginalSelectors))
		rating := ParseRating(firstText(sel, flipkartRatingSelectors))
		link := AbsoluteURL(flipkartBase, firstAttr(sel, flipkartLinkSelectors, "href"))
		image := firstAttr(sel, flipkartImageSelectors, "src")

		if raw, ok := candidate(f.Name(), title, link, price, original, rating, image); ok {
			out = append(out, raw)
		}
	})
	return out
}
