package types

import (
	"strings"
	"time"
)

// RawListing is a candidate record emitted by a source adapter before
// validation. Field values are whatever the page yielded; the normalizer
// decides whether it becomes a Listing.
type RawListing struct {
	Title         string  `json:"title"`
	Price         float64 `json:"price"`
	OriginalPrice float64 `json:"originalPrice,omitempty"`
	Image         string  `json:"image,omitempty"`
	ProductURL    string  `json:"productUrl"`
	Source        string  `json:"source"`
	Rating        float64 `json:"rating,omitempty"`

	// Unavailable is set when the page marked the offer out of stock;
	// the zero value keeps the canonical default of available.
	Unavailable bool `json:"unavailable,omitempty"`

	// ExtractedAt is when the adapter produced this candidate.
	ExtractedAt time.Time `json:"extractedAt,omitempty"`
}

// Listing is one canonical, price-comparable product offer. Listings are
// produced by the normalizer and are immutable once embedded in a job's
// results, except for DiscountPercent which is derived at finalization.
type Listing struct {
	Title         string  `json:"title"           bson:"title"`
	Price         float64 `json:"price"           bson:"price"`
	OriginalPrice float64 `json:"originalPrice,omitempty" bson:"original_price,omitempty"`
	Image         string  `json:"image,omitempty" bson:"image,omitempty"`
	ProductURL    string  `json:"productUrl"      bson:"product_url"`
	Source        string  `json:"source"          bson:"source"`
	Rating        float64 `json:"rating,omitempty" bson:"rating,omitempty"`
	Availability  bool    `json:"availability"    bson:"availability"`

	// DiscountPercent is round((originalPrice-price)/originalPrice*100),
	// computed only when OriginalPrice > Price.
	DiscountPercent int `json:"discountPercent,omitempty" bson:"discount_percent,omitempty"`
}

// Raw converts a Listing back to its raw form. Normalizing the result of a
// normalization must yield the same Listing.
func (l Listing) Raw() RawListing {
	return RawListing{
		Title:         l.Title,
		Price:         l.Price,
		OriginalPrice: l.OriginalPrice,
		Image:         l.Image,
		ProductURL:    l.ProductURL,
		Source:        l.Source,
		Rating:        l.Rating,
		Unavailable:   !l.Availability,
	}
}

// DedupKey returns the merge key used by the deduplicator:
// lowercase source + lowercase title with internal whitespace collapsed.
// Intentionally an exact-ish key, not a fuzzy match.
func (l Listing) DedupKey() string {
	return strings.ToLower(l.Source) + "|" + strings.Join(strings.Fields(strings.ToLower(l.Title)), " ")
}
