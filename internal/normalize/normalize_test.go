package normalize

import (
	"errors"
	"log/slog"
	"os"
	"testing"

	"pricepatrol/internal/types"
)

func testNormalizer() *Normalizer {
	return New(10_000_000, slog.New(slog.NewTextHandler(os.Stderr, nil)))
}

func validRaw() types.RawListing {
	return types.RawListing{
		Title:         "Apple iPhone 15 128GB",
		Price:         69900,
		OriginalPrice: 79900,
		ProductURL:    "https://www.amazon.in/dp/B0C1",
		Image:         "https://img.example/x.jpg",
		Source:        "Amazon",
		Rating:        4.5,
	}
}

func TestNormalizeValid(t *testing.T) {
	n := testNormalizer()
	l, err := n.Normalize(validRaw())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.Title != "Apple iPhone 15 128GB" || l.Price != 69900 {
		t.Errorf("unexpected listing: %+v", l)
	}
	if !l.Availability {
		t.Error("availability should default to true")
	}
	if l.OriginalPrice != 79900 {
		t.Errorf("originalPrice = %v", l.OriginalPrice)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	n := testNormalizer()
	first, err := n.Normalize(validRaw())
	if err != nil {
		t.Fatalf("first normalize: %v", err)
	}
	second, err := n.Normalize(first.Raw())
	if err != nil {
		t.Fatalf("second normalize: %v", err)
	}
	if first != second {
		t.Errorf("normalize not idempotent:\nfirst:  %+v\nsecond: %+v", first, second)
	}
}

func TestNormalizeRejectsBadPrices(t *testing.T) {
	n := testNormalizer()
	for _, price := range []float64{0, -1, -69900, 10_000_001, 1e12} {
		raw := validRaw()
		raw.Price = price
		if _, err := n.Normalize(raw); !errors.Is(err, types.ErrInvalidListing) {
			t.Errorf("price %v: expected ErrInvalidListing, got %v", price, err)
		}
	}
}

func TestNormalizeRejections(t *testing.T) {
	n := testNormalizer()
	tests := []struct {
		name   string
		mutate func(*types.RawListing)
	}{
		{"empty title", func(r *types.RawListing) { r.Title = "   " }},
		{"empty source", func(r *types.RawListing) { r.Source = "" }},
		{"relative url", func(r *types.RawListing) { r.ProductURL = "/dp/B0C1" }},
		{"bad scheme", func(r *types.RawListing) { r.ProductURL = "ftp://x/y" }},
		{"rating too high", func(r *types.RawListing) { r.Rating = 5.1 }},
		{"rating negative", func(r *types.RawListing) { r.Rating = -0.1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := validRaw()
			tt.mutate(&raw)
			if _, err := n.Normalize(raw); !errors.Is(err, types.ErrInvalidListing) {
				t.Errorf("expected ErrInvalidListing, got %v", err)
			}
		})
	}
}

func TestNormalizeDropsUselessOriginalPrice(t *testing.T) {
	n := testNormalizer()
	raw := validRaw()
	raw.OriginalPrice = raw.Price // not a discount
	l, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if l.OriginalPrice != 0 {
		t.Errorf("originalPrice should be cleared when <= price, got %v", l.OriginalPrice)
	}
}

func TestNormalizeDegradesBadImage(t *testing.T) {
	n := testNormalizer()
	raw := validRaw()
	raw.Image = "not a url"
	l, err := n.Normalize(raw)
	if err != nil {
		t.Fatalf("expected degradation, not rejection: %v", err)
	}
	if l.Image != "" {
		t.Errorf("image should be cleared, got %q", l.Image)
	}
}

func TestBatchDropsOnlyInvalid(t *testing.T) {
	n := testNormalizer()
	bad := validRaw()
	bad.Price = -5
	out := n.Batch([]types.RawListing{validRaw(), bad, validRaw()})
	if len(out) != 2 {
		t.Errorf("expected 2 survivors, got %d", len(out))
	}
}
