package matching

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func day(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func laptopAsset(id int, vendor, product string, acquired *time.Time) AssetRecord {
	return AssetRecord{
		ID:         id,
		Name:       product,
		Vendor:     vendor,
		Product:    product,
		AssetType:  "Laptop",
		Cost:       decimal.NewFromInt(1200),
		AcquiredAt: acquired,
	}
}

func purchase(id, vendor, product string, date *time.Time, count int) PurchaseRecord {
	return PurchaseRecord{
		ID:      id,
		Vendor:  vendor,
		Product: product,
		Cost:    decimal.NewFromInt(1100),
		Date:    date,
		Count:   count,
	}
}

func TestFindCandidatesTiersAndVendorFilter(t *testing.T) {
	asset := laptopAsset(1, "Dell", "latitude 5520", day(2025, 3, 10))
	pool := []PurchaseRecord{
		purchase("PO-300", "Dell", "optiplex 7000", day(2025, 3, 12), 5),
		purchase("PO-200", "Dell", "latitude 5521", day(2025, 3, 20), 5),
		purchase("PO-100", "Dell", "latitude 5520", day(2025, 3, 20), 5),
		purchase("PO-400", "HP", "latitude 5520", day(2025, 3, 10), 5),
	}

	got := FindCandidates(asset, pool, nil, DefaultConfig())

	wantIds := []string{"PO-100", "PO-200", "PO-300"}
	wantTiers := []Tier{TierExact, TierFuzzy, TierVendorOnly}
	if len(got) != len(wantIds) {
		t.Fatalf("got %d candidates, want %d: %+v", len(got), len(wantIds), got)
	}
	for i := range wantIds {
		if got[i].Purchase.ID != wantIds[i] || got[i].Tier != wantTiers[i] {
			t.Fatalf("candidate[%d] = %s/%s, want %s/%s", i, got[i].Purchase.ID, got[i].Tier, wantIds[i], wantTiers[i])
		}
	}
}

func TestFindCandidatesDateWindowBoundariesAreInclusive(t *testing.T) {
	base := day(2025, 1, 1)
	asset := laptopAsset(1, "Dell", "latitude 5520", base)

	cases := []struct {
		name string
		date *time.Time
		want Tier
	}{
		{"inside exact window", day(2025, 1, 20), TierExact},
		{"exact boundary day 30", day(2025, 1, 31), TierExact},
		{"day 31 drops to fuzzy", day(2025, 2, 1), TierFuzzy},
		{"fuzzy boundary day 90", day(2025, 4, 1), TierFuzzy},
		{"day 91 drops to vendor only", day(2025, 4, 2), TierVendorOnly},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pool := []PurchaseRecord{purchase("PO-1", "Dell", "latitude 5520", tc.date, 1)}
			got := FindCandidates(asset, pool, nil, DefaultConfig())
			if len(got) != 1 || got[0].Tier != tc.want {
				t.Fatalf("got %+v, want single %s candidate", got, tc.want)
			}
		})
	}
}

func TestFindCandidatesSkipsExhaustedPurchases(t *testing.T) {
	asset := laptopAsset(1, "Dell", "latitude 5520", day(2025, 3, 10))
	pool := []PurchaseRecord{
		purchase("PO-100", "Dell", "latitude 5520", day(2025, 3, 11), 2),
		purchase("PO-200", "Dell", "latitude 5520", day(2025, 3, 12), 2),
	}
	remaining := map[string]int{"PO-100": 0, "PO-200": 1}

	got := FindCandidates(asset, pool, remaining, DefaultConfig())
	if len(got) != 1 || got[0].Purchase.ID != "PO-200" {
		t.Fatalf("exhausted purchase surfaced: %+v", got)
	}
	if got[0].Remaining != 1 {
		t.Fatalf("Remaining = %d, want 1", got[0].Remaining)
	}
}

func TestFindCandidatesUntrackedPurchaseUsesFullCount(t *testing.T) {
	asset := laptopAsset(1, "Dell", "latitude 5520", day(2025, 3, 10))
	pool := []PurchaseRecord{purchase("PO-100", "Dell", "latitude 5520", day(2025, 3, 11), 4)}

	got := FindCandidates(asset, pool, map[string]int{}, DefaultConfig())
	if len(got) != 1 || got[0].Remaining != 4 {
		t.Fatalf("got %+v, want full count 4 remaining", got)
	}
}

func TestFindCandidatesOrderWithinTier(t *testing.T) {
	asset := laptopAsset(1, "Dell", "latitude 5520", day(2025, 3, 10))
	pool := []PurchaseRecord{
		// Same score as PO-B but a later date, sorts after it.
		purchase("PO-A", "Dell", "latitude 5521", day(2025, 3, 30), 1),
		purchase("PO-B", "Dell", "latitude 5521", day(2025, 3, 12), 1),
		// Higher similarity, sorts first despite the larger date gap.
		purchase("PO-C", "Dell", "latitude 55202", day(2025, 4, 20), 1),
		// Same score and date as PO-B, id breaks the tie.
		purchase("PO-0", "Dell", "latitude 5522", day(2025, 3, 12), 1),
	}

	got := FindCandidates(asset, pool, nil, DefaultConfig())
	wantIds := []string{"PO-C", "PO-0", "PO-B", "PO-A"}
	if len(got) != len(wantIds) {
		t.Fatalf("got %d candidates: %+v", len(got), got)
	}
	for i, want := range wantIds {
		if got[i].Purchase.ID != want {
			order := make([]string, len(got))
			for j := range got {
				order[j] = got[j].Purchase.ID
			}
			t.Fatalf("order = %v, want %v", order, wantIds)
		}
	}
}

func TestFindCandidatesIsDeterministicAcrossInputOrder(t *testing.T) {
	asset := laptopAsset(1, "Dell", "latitude 5520", day(2025, 3, 10))
	pool := []PurchaseRecord{
		purchase("PO-100", "Dell", "latitude 5520", day(2025, 3, 11), 2),
		purchase("PO-200", "Dell", "latitude 5521", day(2025, 3, 12), 2),
		purchase("PO-300", "Dell", "precision 3570", day(2025, 3, 13), 2),
		purchase("PO-400", "Dell", "latitude 5520", day(2025, 3, 14), 2),
	}
	reversed := make([]PurchaseRecord, len(pool))
	for i, p := range pool {
		reversed[len(pool)-1-i] = p
	}

	a := FindCandidates(asset, pool, nil, DefaultConfig())
	b := FindCandidates(asset, reversed, nil, DefaultConfig())
	if len(a) != len(b) {
		t.Fatalf("lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i].Purchase.ID != b[i].Purchase.ID || a[i].Tier != b[i].Tier {
			t.Fatalf("index %d differs: %s/%s vs %s/%s", i, a[i].Purchase.ID, a[i].Tier, b[i].Purchase.ID, b[i].Tier)
		}
	}
}

func TestFindCandidatesMissingDatesFallToVendorOnly(t *testing.T) {
	// Identical product but no purchase date: the dated tiers need both sides.
	asset := laptopAsset(1, "Dell", "latitude 5520", day(2025, 3, 10))
	pool := []PurchaseRecord{
		purchase("PO-NODATE", "Dell", "latitude 5520", nil, 1),
		purchase("PO-DATED", "Dell", "optiplex 7000", day(2025, 3, 12), 1),
	}

	got := FindCandidates(asset, pool, nil, DefaultConfig())
	if len(got) != 2 {
		t.Fatalf("got %d candidates: %+v", len(got), got)
	}
	for _, c := range got {
		if c.Tier != TierVendorOnly {
			t.Fatalf("candidate %s tier = %s, want vendor_only", c.Purchase.ID, c.Tier)
		}
	}
	// Similarity is the primary sort key; the undated candidate still leads.
	if got[0].Purchase.ID != "PO-NODATE" {
		t.Fatalf("order = %s,%s", got[0].Purchase.ID, got[1].Purchase.ID)
	}
}

func TestFindCandidatesUndatedAssetNeverReachesExact(t *testing.T) {
	asset := laptopAsset(1, "Dell", "latitude 5520", nil)
	pool := []PurchaseRecord{purchase("PO-1", "Dell", "latitude 5520", day(2025, 3, 12), 1)}

	got := FindCandidates(asset, pool, nil, DefaultConfig())
	if len(got) != 1 || got[0].Tier != TierVendorOnly {
		t.Fatalf("got %+v, want vendor_only", got)
	}
	if got[0].DateDiffDays != -1 {
		t.Fatalf("DateDiffDays = %d, want -1 for unknown", got[0].DateDiffDays)
	}
}

func TestFindCandidatesUnknownVendorsMatchEachOther(t *testing.T) {
	asset := laptopAsset(1, UnknownLabel, "latitude 5520", day(2025, 3, 10))
	pool := []PurchaseRecord{
		purchase("PO-1", UnknownLabel, "latitude 5520", day(2025, 3, 12), 1),
		purchase("PO-2", "Dell", "latitude 5520", day(2025, 3, 12), 1),
	}

	got := FindCandidates(asset, pool, nil, DefaultConfig())
	if len(got) != 1 || got[0].Purchase.ID != "PO-1" {
		t.Fatalf("got %+v, want only the UNKNOWN-vendor purchase", got)
	}
}

func TestBestTierReturnsLeadingRun(t *testing.T) {
	candidates := []Candidate{
		{Purchase: PurchaseRecord{ID: "a"}, Tier: TierFuzzy},
		{Purchase: PurchaseRecord{ID: "b"}, Tier: TierFuzzy},
		{Purchase: PurchaseRecord{ID: "c"}, Tier: TierVendorOnly},
	}
	best := BestTier(candidates)
	if len(best) != 2 || best[0].Purchase.ID != "a" || best[1].Purchase.ID != "b" {
		t.Fatalf("BestTier = %+v", best)
	}
	if BestTier(nil) != nil {
		t.Fatalf("BestTier(nil) should be nil")
	}
}

func TestAutoAcceptRequiresSingleExact(t *testing.T) {
	exact := Candidate{Purchase: PurchaseRecord{ID: "PO-1"}, Tier: TierExact}
	exact2 := Candidate{Purchase: PurchaseRecord{ID: "PO-2"}, Tier: TierExact}
	fuzzy := Candidate{Purchase: PurchaseRecord{ID: "PO-3"}, Tier: TierFuzzy}

	if c, ok := AutoAcceptCandidate([]Candidate{exact, fuzzy}); !ok || c.Purchase.ID != "PO-1" {
		t.Fatalf("single exact with trailing fuzzy should auto-accept, got ok=%v c=%+v", ok, c)
	}
	if _, ok := AutoAcceptCandidate([]Candidate{exact, exact2}); ok {
		t.Fatalf("two exact candidates must stay pending")
	}
	if _, ok := AutoAcceptCandidate([]Candidate{fuzzy}); ok {
		t.Fatalf("a lone fuzzy candidate must stay pending")
	}
	if _, ok := AutoAcceptCandidate(nil); ok {
		t.Fatalf("no candidates must stay pending")
	}
}
