// Package normalize validates and coerces raw adapter records into the
// canonical Listing schema.
package normalize

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"pricepatrol/internal/types"
)

// Normalizer applies the Listing schema rules. Invalid records are dropped
// and logged, never raised to the caller as a batch failure.
type Normalizer struct {
	// PriceCeiling rejects prices above this value; it catches unit and
	// currency extraction bugs before they reach ranking.
	PriceCeiling float64

	logger *slog.Logger
}

// New creates a Normalizer.
func New(priceCeiling float64, logger *slog.Logger) *Normalizer {
	return &Normalizer{
		PriceCeiling: priceCeiling,
		logger:       logger.With("component", "normalizer"),
	}
}

// Normalize validates one raw record. The returned Listing is stable:
// normalizing an already-normalized listing yields the same value.
func (n *Normalizer) Normalize(raw types.RawListing) (types.Listing, error) {
	title := strings.TrimSpace(raw.Title)
	if title == "" {
		return types.Listing{}, fmt.Errorf("%w: empty title", types.ErrInvalidListing)
	}
	source := strings.TrimSpace(raw.Source)
	if source == "" {
		return types.Listing{}, fmt.Errorf("%w: empty source", types.ErrInvalidListing)
	}
	if raw.Price <= 0 {
		return types.Listing{}, fmt.Errorf("%w: non-positive price %v", types.ErrInvalidListing, raw.Price)
	}
	if n.PriceCeiling > 0 && raw.Price > n.PriceCeiling {
		return types.Listing{}, fmt.Errorf("%w: price %v above sanity ceiling %v", types.ErrInvalidListing, raw.Price, n.PriceCeiling)
	}
	if err := validAbsoluteURL(raw.ProductURL); err != nil {
		return types.Listing{}, fmt.Errorf("%w: product url: %v", types.ErrInvalidListing, err)
	}
	if raw.Rating < 0 || raw.Rating > 5 {
		return types.Listing{}, fmt.Errorf("%w: rating %v outside [0,5]", types.ErrInvalidListing, raw.Rating)
	}

	image := strings.TrimSpace(raw.Image)
	if image != "" && validAbsoluteURL(image) != nil {
		// Optional field; a bad image URL degrades, not rejects.
		image = ""
	}

	original := raw.OriginalPrice
	if original <= raw.Price {
		original = 0
	}

	return types.Listing{
		Title:         title,
		Price:         raw.Price,
		OriginalPrice: original,
		Image:         image,
		ProductURL:    strings.TrimSpace(raw.ProductURL),
		Source:        source,
		Rating:        raw.Rating,
		Availability:  !raw.Unavailable,
	}, nil
}

// Batch normalizes a slice, dropping and logging invalid records.
func (n *Normalizer) Batch(raws []types.RawListing) []types.Listing {
	out := make([]types.Listing, 0, len(raws))
	for _, raw := range raws {
		listing, err := n.Normalize(raw)
		if err != nil {
			n.logger.Debug("dropping invalid record",
				"title", raw.Title,
				"source", raw.Source,
				"error", err,
			)
			continue
		}
		out = append(out, listing)
	}
	return out
}

func validAbsoluteURL(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("scheme %q is not http(s)", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}
