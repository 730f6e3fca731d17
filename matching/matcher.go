package matching

import (
	"math"
	"sort"
	"strings"
	"time"
)

// Config carries the matcher tunables. Zero values fall back to defaults.
type Config struct {
	ExactWindowDays int
	FuzzyWindowDays int
	FuzzyThreshold  int
}

func DefaultConfig() Config {
	return Config{ExactWindowDays: 30, FuzzyWindowDays: 90, FuzzyThreshold: 80}
}

func (c Config) exactWindow() int {
	if c.ExactWindowDays <= 0 {
		return 30
	}
	return c.ExactWindowDays
}

func (c Config) fuzzyWindow() int {
	if c.FuzzyWindowDays <= 0 {
		return 90
	}
	return c.FuzzyWindowDays
}

func (c Config) fuzzyThreshold() int {
	if c.FuzzyThreshold <= 0 {
		return 80
	}
	return c.FuzzyThreshold
}

// FindCandidates proposes purchases for one asset, tiered and fully ordered:
// exact (vendor + product equal, tight date window), fuzzy (vendor equal,
// product similarity above threshold, relaxed window), then vendor-only.
// Each purchase lands in its highest qualifying tier. Purchases with no
// remaining quantity never appear. Within a tier the order is similarity
// descending, date distance ascending, purchase id ascending, so identical
// input always yields the identical list.
//
// remaining is the ledger's remaining-slot snapshot; a purchase absent from
// the map is treated as fully unconsumed. The function only reads its
// inputs.
func FindCandidates(asset AssetRecord, pool []PurchaseRecord, remaining map[string]int, cfg Config) []Candidate {
	var exact, fuzzy, vendorOnly []Candidate

	for _, purchase := range pool {
		rem, tracked := remaining[purchase.ID]
		if !tracked {
			rem = purchase.Count
		}
		if rem <= 0 {
			continue
		}
		if purchase.Vendor != asset.Vendor {
			continue
		}

		score := Ratio(asset.Product, purchase.Product)
		diffDays, hasDates := dateDiffDays(asset.AcquiredAt, purchase.Date)

		candidate := Candidate{
			Purchase:     purchase,
			Score:        score,
			DateDiffDays: diffDays,
			Remaining:    rem,
		}

		switch {
		case asset.Product == purchase.Product && hasDates && diffDays <= cfg.exactWindow():
			candidate.Tier = TierExact
			exact = append(exact, candidate)
		case score >= cfg.fuzzyThreshold() && hasDates && diffDays <= cfg.fuzzyWindow():
			candidate.Tier = TierFuzzy
			fuzzy = append(fuzzy, candidate)
		default:
			candidate.Tier = TierVendorOnly
			vendorOnly = append(vendorOnly, candidate)
		}
	}

	sortTier(exact)
	sortTier(fuzzy)
	sortTier(vendorOnly)

	result := make([]Candidate, 0, len(exact)+len(fuzzy)+len(vendorOnly))
	result = append(result, exact...)
	result = append(result, fuzzy...)
	result = append(result, vendorOnly...)
	return result
}

// BestTier returns the leading non-empty tier of an ordered candidate list.
func BestTier(candidates []Candidate) []Candidate {
	if len(candidates) == 0 {
		return nil
	}
	tier := candidates[0].Tier
	for i, c := range candidates {
		if c.Tier != tier {
			return candidates[:i]
		}
	}
	return candidates
}

// AutoAcceptCandidate applies the unattended-commit rule: only a single
// exact-tier candidate qualifies. Anything else stays pending for the
// operator.
func AutoAcceptCandidate(candidates []Candidate) (Candidate, bool) {
	best := BestTier(candidates)
	if len(best) == 1 && best[0].Tier == TierExact {
		return best[0], true
	}
	return Candidate{}, false
}

func sortTier(candidates []Candidate) {
	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if da, db := sortableDiff(a.DateDiffDays), sortableDiff(b.DateDiffDays); da != db {
			return da < db
		}
		return strings.Compare(a.Purchase.ID, b.Purchase.ID) < 0
	})
}

// sortableDiff pushes candidates with unknown dates behind every dated one.
func sortableDiff(diff int) int {
	if diff < 0 {
		return math.MaxInt32
	}
	return diff
}

// dateDiffDays returns the whole-day distance between the two dates.
// (-1, false) when either side is missing.
func dateDiffDays(a, b *time.Time) (int, bool) {
	if a == nil || b == nil {
		return -1, false
	}
	d := a.Sub(*b)
	if d < 0 {
		d = -d
	}
	return int(d / (24 * time.Hour)), true
}
