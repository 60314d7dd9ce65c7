package sources

import (
	"context"
	"math/rand"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"pricepatrol/internal/types"
)

// blockedSignatures are case-insensitive substrings whose presence means the
// source rejected the request. Detection is cheap on purpose; there is no
// attempt to evade, only to classify.
var blockedSignatures = []string{
	"access denied",
	"access to this page has been denied",
	"captcha",
	"unusual traffic",
	"verify you are human",
	"verify you are a human",
	"robot check",
	"are you a robot",
	"request blocked",
	"enable javascript and cookies",
}

// IsBlockedContent scans rendered HTML for anti-automation signatures.
func IsBlockedContent(html string) bool {
	lower := strings.ToLower(html)
	for _, sig := range blockedSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

var priceRe = regexp.MustCompile(`(\d{1,3}(?:[,\d]*\d)?(?:\.\d+)?)`)

// ParsePrice extracts a positive numeric price from text like "₹69,900" or
// "Rs. 1,299.00". Returns 0 when no usable number is present.
func ParsePrice(s string) float64 {
	m := priceRe.FindString(s)
	if m == "" {
		return 0
	}
	m = strings.ReplaceAll(m, ",", "")
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v <= 0 {
		return 0
	}
	return v
}

var ratingRe = regexp.MustCompile(`(\d+(?:\.\d+)?)`)

// ParseRating extracts a rating from text like "4.3 out of 5 stars".
// Values outside [0,5] are discarded.
func ParseRating(s string) float64 {
	m := ratingRe.FindString(s)
	if m == "" {
		return 0
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v < 0 || v > 5 {
		return 0
	}
	return v
}

// AbsoluteURL resolves href against base and returns "" unless the result
// is an absolute http(s) URL.
func AbsoluteURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	bu, err := url.Parse(base)
	if err != nil {
		return ""
	}
	hu, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := bu.ResolveReference(hu)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	if abs.Host == "" {
		return ""
	}
	return abs.String()
}

// firstText returns the trimmed text of the first selector in the chain
// that yields a non-empty result.
func firstText(sel *goquery.Selection, selectors []string) string {
	for _, s := range selectors {
		if t := strings.TrimSpace(sel.Find(s).First().Text()); t != "" {
			return t
		}
	}
	return ""
}

// firstAttr returns the given attribute of the first selector in the chain
// that yields a non-empty value.
func firstAttr(sel *goquery.Selection, selectors []string, attr string) string {
	for _, s := range selectors {
		if v, ok := sel.Find(s).First().Attr(attr); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// firstSelection returns the items matched by the first container selector
// with any hits.
func firstSelection(doc *goquery.Document, selectors []string) *goquery.Selection {
	for _, s := range selectors {
		if sel := doc.Find(s); sel.Length() > 0 {
			return sel
		}
	}
	return nil
}

// extractSearch is the shared browser-driven extraction flow: acquire a
// page, navigate (timeout is a warning, not fatal), check for blocking,
// wait a randomized settle delay, then hand the rendered HTML to parse.
// The page is always released.
func extractSearch(ctx context.Context, d Deps, source, searchURL string, parse func(html string) []types.RawListing) ([]types.RawListing, error) {
	page, err := d.Browser.AcquirePage(ctx)
	if err != nil {
		return nil, err
	}
	defer d.Browser.ReleasePage(page)

	logger := d.Logger.With("source", source)

	if err := page.Timeout(d.Nav.NavigationTimeout).Navigate(searchURL); err != nil {
		// Partial content may still be extractable.
		logger.Warn("navigation failed, continuing with partial page",
			"url", searchURL,
			"error", err,
		)
	}
	if err := page.Timeout(d.Nav.NavigationTimeout).WaitLoad(); err != nil {
		logger.Warn("page load wait timed out", "url", searchURL, "error", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, &types.ExtractError{Source: source, Kind: types.ErrKindNavigation, Err: err}
	}
	if IsBlockedContent(html) {
		return nil, &types.ExtractError{Source: source, Kind: types.ErrKindBlocked, Err: types.ErrSourceBlocked}
	}

	settle(ctx, d)

	// Re-read after settling; late-rendering results land here.
	if h, err := page.HTML(); err == nil {
		html = h
	}

	records := parse(html)
	logger.Debug("extraction complete", "url", searchURL, "candidates", len(records))
	return records, nil
}

// extractDetail resolves one product page's price, preferring the cheap
// HTTP path and falling back to the browser when the static fetch is
// blocked or yields nothing.
func extractDetail(ctx context.Context, d Deps, source, productURL string, parse func(html string) *types.RawListing) (*types.RawListing, error) {
	if d.HTTP != nil {
		if html, err := d.HTTP.Get(ctx, productURL); err == nil && !IsBlockedContent(html) {
			if raw := parse(html); raw != nil {
				return raw, nil
			}
		}
	}

	page, err := d.Browser.AcquirePage(ctx)
	if err != nil {
		return nil, err
	}
	defer d.Browser.ReleasePage(page)

	if err := page.Timeout(d.Nav.NavigationTimeout).Navigate(productURL); err != nil {
		d.Logger.Warn("detail navigation failed, continuing",
			"source", source,
			"url", productURL,
			"error", err,
		)
	}
	if err := page.Timeout(d.Nav.NavigationTimeout).WaitLoad(); err != nil {
		d.Logger.Warn("detail load wait timed out", "url", productURL, "error", err)
	}

	html, err := page.HTML()
	if err != nil {
		return nil, &types.ExtractError{Source: source, Kind: types.ErrKindNavigation, Err: err}
	}
	if IsBlockedContent(html) {
		return nil, &types.ExtractError{Source: source, Kind: types.ErrKindBlocked, Err: types.ErrSourceBlocked}
	}

	settle(ctx, d)
	if h, err := page.HTML(); err == nil {
		html = h
	}

	raw := parse(html)
	if raw == nil {
		return nil, &types.ExtractError{Source: source, Kind: types.ErrKindAdapter, Err: types.ErrNoPriceResolved}
	}
	return raw, nil
}

// settle sleeps a randomized delay within the configured bounds.
func settle(ctx context.Context, d Deps) {
	minD, maxD := d.Scrape.SettleDelayMin, d.Scrape.SettleDelayMax
	delay := minD
	if maxD > minD {
		delay += time.Duration(rand.Int63n(int64(maxD - minD)))
	}
	select {
	case <-ctx.Done():
	case <-time.After(delay):
	}
}

// candidate assembles a RawListing, returning false unless the record has a
// non-empty title, an absolute product URL, and a positive price.
func candidate(source, title, link string, price, original, rating float64, image string) (types.RawListing, bool) {
	title = strings.TrimSpace(title)
	if title == "" || link == "" || price <= 0 {
		return types.RawListing{}, false
	}
	if original <= price {
		original = 0
	}
	return types.RawListing{
		Title:         title,
		Price:         price,
		OriginalPrice: original,
		Image:         image,
		ProductURL:    link,
		Source:        source,
		Rating:        rating,
		ExtractedAt:   time.Now(),
	}, true
}

// searchPath url-encodes a query into a path-style search fragment.
func searchQuery(query string) string {
	return url.QueryEscape(strings.TrimSpace(query))
}
