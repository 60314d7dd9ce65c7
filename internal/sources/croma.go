package sources

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"pricepatrol/internal/types"
)

const cromaBase = "https://www.croma.com"

// Croma extracts search results from croma.com.
type Croma struct {
	deps Deps
}

// NewCroma creates the Croma adapter.
func NewCroma(deps Deps) *Croma {
	return &Croma{deps: deps}
}

func (c *Croma) Name() string { return "Croma" }

// BuildQueryURL maps a query and category to a Croma search URL.
func (c *Croma) BuildQueryURL(query, category string) string {
	q := searchQuery(query)
	return cromaBase + "/searchB?q=" + q + "%3Arelevance&text=" + q
}

var (
	cromaItemSelectors = []string{
		`li.product-item`,
		`div.cp-product`,
	}
	cromaTitleSelectors = []string{
		`h3.product-title a`,
		`h3.product-title`,
		`a.product-title`,
	}
	cromaPriceSelectors = []string{
		`span.amount`,
		`span.new-price`,
		`div.cp-price span`,
	}
	cromaOriginalSelectors = []string{
		`span.old-price`,
		`span.strike-through`,
	}
	cromaRatingSelectors = []string{
		`span.rating-text`,
	}
	cromaLinkSelectors = []string{
		`h3.product-title a`,
		`a.product-img`,
	}
	cromaImageSelectors = []string{
		`img.product-img`,
		`div.product-img img`,
	}
)

func (c *Croma) Extract(ctx context.Context, in *ExtractInput) ([]types.RawListing, error) {
	return extractSearch(ctx, c.deps, c.Name(), c.BuildQueryURL(in.Query, in.Category), c.parseSearch)
}

func (c *Croma) ExtractDetail(ctx context.Context, productURL string) (*types.RawListing, error) {
	return extractDetail(ctx, c.deps, c.Name(), productURL, func(html string) *types.RawListing {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return nil
		}
		title := firstText(doc.Selection, []string{`h1.pd-title`, `h1.pdp-title`})
		price := ParsePrice(firstText(doc.Selection, []string{`span.amount`, `span#pdp-product-price`}))
		raw, ok := candidate(c.Name(), title, productURL, price, 0, 0, "")
		if !ok {
			return nil
		}
		return &raw
	})
}

func (c *Croma) parseSearch(html string) []types.RawListing {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	items := firstSelection(doc, cromaItemSelectors)
	if items == nil {
		return nil
	}

	var out []types.RawListing
	items.Each(func(_ int, sel *goquery.Selection) {
		title := firstText(sel, cromaTitleSelectors)
		price := ParsePrice(firstText(sel, cromaPriceSelectors))
		original := ParsePrice(firstText(sel, cromaOriginalSelectors))
		rating := ParseRating(firstText(sel, cromaRatingSelectors))
		link := AbsoluteURL(cromaBase, firstAttr(sel, cromaLinkSelectors, "href"))
		image := firstAttr(sel, cromaImageSelectors, "data-src")
		if image == "" {
			image = firstAttr(sel, cromaImageSelectors, "src")
		}

		if raw, ok := candidate(c.Name(), title, link, price, original, rating, image); ok {
			out = append(out, raw)
		}
	})
	return out
}
