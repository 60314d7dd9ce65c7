// Package rank merges, deduplicates, scores, and orders listings against
// the query that produced them.
package rank

import (
	"math"
	"sort"
	"strings"

	"pricepatrol/internal/config"
	"pricepatrol/internal/types"
)

// The keyword lists and per-category floors below are hand-tuned penalty
// data, kept as configuration rather than logic.

// accessoryKeywords mark listings that are add-ons rather than the product
// itself. The penalty is skipped when the query itself asks for one.
var accessoryKeywords = []string{
	"case", "cover", "charger", "cable", "adapter", "protector",
	"tempered glass", "skin", "pouch", "sleeve", "bag", "strap",
	"stand", "holder", "mount", "mouse", "keyboard", "earbuds tips",
}

// categoryFloors map a query substring to the minimum plausible price for
// the real product; prices far below the floor are penalized as likely
// accessories or extraction errors.
var categoryFloors = map[string]float64{
	"iphone":  10000,
	"macbook": 40000,
	"laptop":  20000,
	"tablet":  7000,
	"phone":   5000,
	"tv":      8000,
	"camera":  5000,
	"console": 15000,
	"watch":   2000,
}

const defaultFloor = 1000

// brandNames earn a small confidence bonus when present in a title.
var brandNames = []string{
	"apple", "samsung", "sony", "lg", "oneplus", "xiaomi", "redmi",
	"dell", "hp", "lenovo", "asus", "acer", "boat", "jbl", "oppo", "vivo",
}

// trustedSources are catalogs whose listings rank slightly higher on ties.
var trustedSources = map[string]bool{
	"amazon":           true,
	"flipkart":         true,
	"croma":            true,
	"reliance digital": true,
}

// scoreBand: listings whose scores differ by no more than this are ordered
// by price instead of score.
const scoreBand = 5

// Ranker deduplicates, scores, and orders listings.
type Ranker struct {
	// MinScore drops listings scoring below it.
	MinScore int
}

// New creates a Ranker from configuration.
func New(cfg *config.RankConfig) *Ranker {
	return &Ranker{MinScore: cfg.MinScore}
}

// Rank runs the full pipeline: dedup, score, band-sort, minimum-score cut,
// and discount derivation. Deterministic for a fixed query and input order.
func (r *Ranker) Rank(query string, listings []types.Listing) []types.Listing {
	deduped := Dedup(listings)

	type scored struct {
		listing types.Listing
		score   int
	}
	kept := make([]scored, 0, len(deduped))
	for _, l := range deduped {
		s := r.Score(query, l)
		if s < r.MinScore {
			continue
		}
		kept = append(kept, scored{listing: l, score: s})
	}

	// Scores more than scoreBand apart order by relevance; within the band
	// the cheaper listing wins. Stable sort keeps original order on ties.
	sort.SliceStable(kept, func(i, j int) bool {
		di := kept[i].score - kept[j].score
		if di > scoreBand || di < -scoreBand {
			return kept[i].score > kept[j].score
		}
		return kept[i].listing.Price < kept[j].listing.Price
	})

	out := make([]types.Listing, 0, len(kept))
	for _, s := range kept {
		l := s.listing
		if l.OriginalPrice > l.Price {
			l.DiscountPercent = int(math.Round((l.OriginalPrice - l.Price) / l.OriginalPrice * 100))
		}
		out = append(out, l)
	}
	return out
}

// Dedup drops later listings whose folded (source, title) key was already
// seen. First occurrence wins.
func Dedup(listings []types.Listing) []types.Listing {
	seen := make(map[string]struct{}, len(listings))
	out := make([]types.Listing, 0, len(listings))
	for _, l := range listings {
		key := l.DedupKey()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}
	return out
}

// Score computes the integer relevance score of a listing against a query.
// Scores can be negative.
func (r *Ranker) Score(query string, l types.Listing) int {
	queryFold := fold(query)
	titleFold := fold(l.Title)
	queryTokens := tokens(queryFold)
	titleTokens := tokens(titleFold)

	score := 0

	// Position of the first query token within the title's tokens.
	if len(queryTokens) > 0 {
		switch pos := tokenPosition(titleTokens, queryTokens[0]); {
		case pos == 0:
			score += 40
		case pos >= 1 && pos <= 2:
			score += 30
		case pos >= 3 && pos <= 4:
			score += 20
		case pos > 4:
			score += 10
		}
	}

	// Additional distinct query tokens found anywhere in the title, even
	// when the first token is absent.
	if len(queryTokens) > 1 {
		counted := map[string]struct{}{queryTokens[0]: {}}
		for _, tok := range queryTokens[1:] {
			if len(tok) <= 2 {
				continue
			}
			if _, dup := counted[tok]; dup {
				continue
			}
			counted[tok] = struct{}{}
			if strings.Contains(titleFold, tok) {
				score += 8
			}
		}
	}

	accessorySeeking := containsAnyKeyword(queryFold, accessoryKeywords)
	if !accessorySeeking && containsAnyKeyword(titleFold, accessoryKeywords) {
		score -= 50
	}

	if !accessorySeeking {
		score -= priceFloorPenalty(queryFold, l.Price)
	}

	// Exact-title bonuses, highest applicable only.
	switch {
	case titleFold == queryFold:
		score += 40
	case strings.HasPrefix(queryFold, titleFold):
		score += 30
	case strings.Contains(queryFold, titleFold):
		score += 20
	}

	for _, brand := range brandNames {
		if strings.Contains(titleFold, brand) {
			score += 10
			break
		}
	}

	if trustedSources[strings.ToLower(l.Source)] {
		score += 5
	}

	return score
}

// priceFloorPenalty applies when the query matches a price-sensitive
// category and the listing is priced below that category's floor.
func priceFloorPenalty(queryFold string, price float64) int {
	floor := float64(defaultFloor)
	found := false
	for cat, f := range categoryFloors {
		if strings.Contains(queryFold, cat) {
			if !found || f > floor {
				floor = f
			}
			found = true
		}
	}
	if !found {
		floor = defaultFloor
	}
	if price >= floor || floor <= 0 {
		return 0
	}
	penalty := (floor - price) / floor * 30
	if penalty > 30 {
		penalty = 30
	}
	return int(penalty)
}

func fold(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func tokens(folded string) []string {
	if folded == "" {
		return nil
	}
	return strings.Split(folded, " ")
}

func tokenPosition(titleTokens []string, token string) int {
	for i, t := range titleTokens {
		if strings.Contains(t, token) {
			return i
		}
	}
	return -1
}

func containsAnyKeyword(folded string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(folded, kw) {
			return true
		}
	}
	return false
}
