package sources

import (
	"context"
	"strings"

	"github.com/antchfx/htmlquery"
	"golang.org/x/net/html"

	"pricepatrol/internal/types"
)

const relianceBase = "https://www.reliancedigital.in"

// Reliance extracts search results from reliancedigital.in. The site's
// class names are build-hashed, so the selectors here are XPath chains
// anchored on structure and attribute fragments rather than exact classes.
type Reliance struct {
	deps Deps
}

// NewReliance creates the Reliance Digital adapter.
func NewReliance(deps Deps) *Reliance {
	return &Reliance{deps: deps}
}

func (r *Reliance) Name() string { return "Reliance Digital" }

// BuildQueryURL maps a query to a Reliance Digital search URL.
func (r *Reliance) BuildQueryURL(query, category string) string {
	return relianceBase + "/search?q=" + searchQuery(query) + "%3Arelevance"
}

var (
	relianceItemXPaths = []string{
		`//div[contains(@class,"sp__product")]`,
		`//li[contains(@class,"grid")]//div[contains(@class,"product")]`,
	}
	relianceTitleXPaths = []string{
		`.//p[contains(@class,"sp__name")]`,
		`.//div[contains(@class,"product-name")]`,
	}
	reliancePriceXPaths = []string{
		`.//span[contains(@class,"TextWeb__Text")][contains(text(),"₹")]`,
		`.//span[contains(@class,"price")]`,
	}
	relianceOriginalXPaths = []string{
		`.//span[contains(@class,"strike")]`,
	}
	relianceLinkXPaths = []string{
		`.//a[@href]`,
	}
	relianceImageXPaths = []string{
		`.//img[@src]`,
	}
)

func (r *Reliance) Extract(ctx context.Context, in *ExtractInput) ([]types.RawListing, error) {
	return extractSearch(ctx, r.deps, r.Name(), r.BuildQueryURL(in.Query, in.Category), r.parseSearch)
}

func (r *Reliance) ExtractDetail(ctx context.Context, productURL string) (*types.RawListing, error) {
	return extractDetail(ctx, r.deps, r.Name(), productURL, func(htmlSrc string) *types.RawListing {
		root, err := htmlquery.Parse(strings.NewReader(htmlSrc))
		if err != nil {
			return nil
		}
		title := xpathText(root, []string{
			`//h1[contains(@class,"pdp__title")]`,
			`//h1`,
		})
		price := ParsePrice(xpathText(root, []string{
			`//span[contains(@class,"pdp__offerPrice")]`,
			`//span[contains(text(),"₹")]`,
		}))
		raw, ok := candidate(r.Name(), title, productURL, price, 0, 0, "")
		if !ok {
			return nil
		}
		return &raw
	})
}

func (r *Reliance) parseSearch(htmlSrc string) []types.RawListing {
	root, err := htmlquery.Parse(strings.NewReader(htmlSrc))
	if err != nil {
		return nil
	}

	var items []*html.Node
	for _, xp := range relianceItemXPaths {
		if items, err = htmlquery.QueryAll(root, xp); err == nil && len(items) > 0 {
			break
		}
	}
	if len(items) == 0 {
		return nil
	}

	var out []types.RawListing
	for _, item := range items {
		title := xpathText(item, relianceTitleXPaths)
		price := ParsePrice(xpathText(item, reliancePriceXPaths))
		original := ParsePrice(xpathText(item, relianceOriginalXPaths))
		link := AbsoluteURL(relianceBase, xpathAttr(item, relianceLinkXPaths, "href"))
		image := xpathAttr(item, relianceImageXPaths, "src")

		if raw, ok := candidate(r.Name(), title, link, price, original, 0, image); ok {
			out = append(out, raw)
		}
	}
	return out
}

// xpathText returns the trimmed inner text of the first XPath in the chain
// that matches.
func xpathText(node *html.Node, xpaths []string) string {
	for _, xp := range xpaths {
		n, err := htmlquery.Query(node, xp)
		if err != nil || n == nil {
			continue
		}
		if t := strings.TrimSpace(htmlquery.InnerText(n)); t != "" {
			return t
		}
	}
	return ""
}

// xpathAttr returns the given attribute of the first XPath in the chain
// that matches with a non-empty value.
func xpathAttr(node *html.Node, xpaths []string, attr string) string {
	for _, xp := range xpaths {
		n, err := htmlquery.Query(node, xp)
		if err != nil || n == nil {
			continue
		}
		if v := strings.TrimSpace(htmlquery.SelectAttr(n, attr)); v != "" {
			return v
		}
	}
	return ""
}
