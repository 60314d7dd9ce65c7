package rank

import (
	"reflect"
	"testing"

	"pricepatrol/internal/config"
	"pricepatrol/internal/types"
)

func testRanker() *Ranker {
	cfg := config.DefaultConfig()
	return New(&cfg.Rank)
}

func listing(source, title string, price float64) types.Listing {
	return types.Listing{
		Source:       source,
		Title:        title,
		Price:        price,
		ProductURL:   "https://example.com/p/1",
		Availability: true,
	}
}

func TestDedupFirstWins(t *testing.T) {
	a := listing("Amazon", "Apple iPhone 15 128GB", 69900)
	b := listing("Amazon", "  apple  IPHONE 15 128gb ", 71000)
	c := listing("Flipkart", "Apple iPhone 15 128GB", 68999)

	out := Dedup([]types.Listing{a, b, c})
	if len(out) != 2 {
		t.Fatalf("got %d listings, want 2", len(out))
	}
	if out[0].Price != 69900 {
		t.Errorf("first occurrence should win, got price %v", out[0].Price)
	}
	if out[1].Source != "Flipkart" {
		t.Errorf("same title on a different source must survive, got %s", out[1].Source)
	}
}

func TestScorePhoneBeatsItsCase(t *testing.T) {
	r := testRanker()

	phone := r.Score("iphone 15", listing("Amazon", "Apple iPhone 15 128GB Black", 69900))
	cover := r.Score("iphone 15", listing("Amazon", "iPhone 15 Silicone Case", 999))

	if phone <= cover {
		t.Fatalf("phone scored %d, case scored %d; phone must rank higher", phone, cover)
	}
	if cover >= r.MinScore {
		t.Errorf("accessory priced far below the category floor scored %d, want below %d", cover, r.MinScore)
	}
}

func TestScoreAccessoryQueryKeepsAccessories(t *testing.T) {
	r := testRanker()

	got := r.Score("iphone 15 case", listing("Amazon", "iPhone 15 Silicone Case", 999))
	if got < r.MinScore {
		t.Errorf("query asks for a case, listing scored %d, want >= %d", got, r.MinScore)
	}
}

func TestScoreCheapAccessoryForLaptopQuery(t *testing.T) {
	r := testRanker()

	got := r.Score("laptop", listing("Amazon", "Laptop Sleeve Bag", 499))
	if got >= r.MinScore {
		t.Errorf("sleeve bag scored %d for a laptop query, want below %d", got, r.MinScore)
	}
}

func TestScoreLaterTokensCountWithoutFirst(t *testing.T) {
	r := testRanker()

	// "apple" is absent from both titles; "macbook" and "air" still earn
	// credit where they appear.
	with := r.Score("apple macbook air", listing("Amazon", "MacBook Air M2 Chip", 99999))
	without := r.Score("apple macbook air", listing("Amazon", "ThinkPad X1 Carbon", 99999))
	if with-without != 16 {
		t.Errorf("later query tokens earned %d (%d vs %d), want +8 each", with-without, with, without)
	}
}

func TestScoreExactTitleBonus(t *testing.T) {
	r := testRanker()

	exact := r.Score("sony wh-1000xm5", listing("Croma", "Sony WH-1000XM5", 24990))
	partial := r.Score("sony wh-1000xm5", listing("Croma", "Sony WH-1000XM5 Wireless Headphones", 24990))
	if exact <= partial {
		t.Errorf("exact title scored %d, longer title scored %d; exact must win", exact, partial)
	}
}

func TestRankBandOrdering(t *testing.T) {
	r := testRanker()

	// Same title tokens, near-identical scores: the band sort must order by
	// ascending price rather than raw score.
	cheap := listing("Flipkart", "Apple iPhone 15 128GB", 68999)
	pricey := listing("Amazon", "Apple iPhone 15 128GB", 69900)
	junk := listing("Amazon", "iPhone 15 Back Cover", 299)

	out := r.Rank("iphone 15", []types.Listing{pricey, cheap, junk})
	if len(out) != 2 {
		t.Fatalf("got %d listings, want 2 (accessory dropped)", len(out))
	}
	if out[0].Price != 68999 {
		t.Errorf("within the score band the cheaper listing ranks first, got %v", out[0].Price)
	}
}

func TestRankScoreGapOverridesPrice(t *testing.T) {
	r := testRanker()

	relevant := listing("Amazon", "Apple iPhone 15 128GB Black", 69900)
	vague := listing("Amazon", "Refurbished Smartphone Grade B", 8999)

	out := r.Rank("iphone 15", []types.Listing{vague, relevant})
	if len(out) == 0 || out[0].Title != relevant.Title {
		t.Fatalf("higher-relevance listing must outrank a cheaper vague one: %+v", out)
	}
}

func TestRankDeterministic(t *testing.T) {
	r := testRanker()

	in := []types.Listing{
		listing("Amazon", "Apple iPhone 15 128GB Black", 69900),
		listing("Flipkart", "Apple iPhone 15 128GB", 68999),
		listing("Croma", "Apple iPhone 15 256GB Blue", 79900),
		listing("Reliance Digital", "Apple iPhone 15", 67990),
	}

	first := r.Rank("iphone 15", in)
	for i := 0; i < 5; i++ {
		again := r.Rank("iphone 15", in)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("run %d produced a different order", i)
		}
	}
}

func TestRankDiscountPercent(t *testing.T) {
	r := testRanker()

	l := listing("Amazon", "Apple iPhone 15 128GB", 69900)
	l.OriginalPrice = 79900

	out := r.Rank("iphone 15", []types.Listing{l})
	if len(out) != 1 {
		t.Fatalf("got %d listings, want 1", len(out))
	}
	if out[0].DiscountPercent != 13 {
		t.Errorf("discount = %d, want 13", out[0].DiscountPercent)
	}
}

func TestPriceFloorPenaltyCapped(t *testing.T) {
	if p := priceFloorPenalty("laptop", 1); p != 29 {
		t.Errorf("near-zero price penalty = %d, want 29", p)
	}
	if p := priceFloorPenalty("laptop", 25000); p != 0 {
		t.Errorf("price above floor penalized by %d, want 0", p)
	}
	if p := priceFloorPenalty("garden hose", 50); p != 28 {
		t.Errorf("default floor penalty = %d, want 28", p)
	}
}
