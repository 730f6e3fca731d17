package workflow

import (
	"context"
	"testing"

	"bitbucket.org/mmdatafocus/assets_backend/matching"
)

func exactPair(assetId int, purchaseId string) (matching.AssetRecord, matching.PurchaseRecord) {
	asset := matching.AssetRecord{
		ID:         assetId,
		Name:       "Latitude 5520",
		Vendor:     "Dell",
		Product:    "latitude 5520",
		AcquiredAt: stagedDate(2025, 3, 10),
	}
	purchase := matching.PurchaseRecord{
		ID:      purchaseId,
		Vendor:  "Dell",
		Product: "latitude 5520",
		Date:    stagedDate(2025, 3, 1),
		Count:   1,
	}
	return asset, purchase
}

func TestAutomatchCommitsSingleExactCandidate(t *testing.T) {
	e := newTestEngine(t, nil)
	asset, purchase := exactPair(1, "PO-100")
	set := newTestSet([]matching.AssetRecord{asset}, []matching.PurchaseRecord{purchase})
	e.Ledger().SetCapacities(set.Capacities)

	report := &RunReport{}
	if err := e.automatch(context.Background(), set, report); err != nil {
		t.Fatalf("automatch: %v", err)
	}
	if report.AutoAssigned != 1 || report.Pending != 0 || report.Unmatched != 0 {
		t.Fatalf("report = %+v, want 1 auto-assigned", report)
	}

	entry, ok := e.Ledger().Get(1)
	if !ok || entry.PurchaseId != "PO-100" || entry.AssignedBy != matching.AssignedByAuto {
		t.Fatalf("ledger entry = %+v ok=%v", entry, ok)
	}
}

func TestAutomatchLeavesAmbiguousExactsPending(t *testing.T) {
	e := newTestEngine(t, nil)
	asset, p1 := exactPair(1, "PO-100")
	_, p2 := exactPair(1, "PO-200")
	set := newTestSet([]matching.AssetRecord{asset}, []matching.PurchaseRecord{p1, p2})
	e.Ledger().SetCapacities(set.Capacities)

	report := &RunReport{}
	if err := e.automatch(context.Background(), set, report); err != nil {
		t.Fatalf("automatch: %v", err)
	}
	if report.Pending != 1 || report.AutoAssigned != 0 {
		t.Fatalf("two exact candidates must stay pending, report = %+v", report)
	}
	if e.Ledger().AssignedCount() != 0 {
		t.Fatalf("ambiguous asset was committed")
	}
}

func TestAutomatchFuzzyOnlyStaysPending(t *testing.T) {
	e := newTestEngine(t, nil)
	asset, purchase := exactPair(1, "PO-100")
	purchase.Product = "latitude 5521"
	set := newTestSet([]matching.AssetRecord{asset}, []matching.PurchaseRecord{purchase})
	e.Ledger().SetCapacities(set.Capacities)

	report := &RunReport{}
	if err := e.automatch(context.Background(), set, report); err != nil {
		t.Fatalf("automatch: %v", err)
	}
	if report.Pending != 1 || report.AutoAssigned != 0 {
		t.Fatalf("fuzzy candidate must stay pending, report = %+v", report)
	}
}

func TestAutomatchSkipsAssignedAssets(t *testing.T) {
	e := newTestEngine(t, nil)
	asset, purchase := exactPair(1, "PO-100")
	set := newTestSet([]matching.AssetRecord{asset}, []matching.PurchaseRecord{purchase})
	e.Ledger().SetCapacities(set.Capacities)

	if err := e.Ledger().Assign(1, "PO-100", 1, "operator1", false); err != nil {
		t.Fatalf("seed Assign: %v", err)
	}

	report := &RunReport{}
	if err := e.automatch(context.Background(), set, report); err != nil {
		t.Fatalf("automatch: %v", err)
	}
	if report.AlreadyAssigned != 1 || report.AutoAssigned != 0 {
		t.Fatalf("report = %+v, want already-assigned skip", report)
	}

	// The manual pairing stays untouched.
	entry, _ := e.Ledger().Get(1)
	if entry.AssignedBy != "operator1" {
		t.Fatalf("automatch overwrote a manual assignment: %+v", entry)
	}
}

func TestAutomatchCountsUnmatchedAssets(t *testing.T) {
	e := newTestEngine(t, nil)
	asset, purchase := exactPair(1, "PO-100")
	purchase.Vendor = "HP"
	set := newTestSet([]matching.AssetRecord{asset}, []matching.PurchaseRecord{purchase})
	e.Ledger().SetCapacities(set.Capacities)

	report := &RunReport{}
	if err := e.automatch(context.Background(), set, report); err != nil {
		t.Fatalf("automatch: %v", err)
	}
	if report.Unmatched != 1 {
		t.Fatalf("report = %+v, want 1 unmatched", report)
	}
}

func TestAutomatchHonoursAutoAcceptFlag(t *testing.T) {
	e := newTestEngine(t, nil)
	e.autoAccept = false
	asset, purchase := exactPair(1, "PO-100")
	set := newTestSet([]matching.AssetRecord{asset}, []matching.PurchaseRecord{purchase})
	e.Ledger().SetCapacities(set.Capacities)

	report := &RunReport{}
	if err := e.automatch(context.Background(), set, report); err != nil {
		t.Fatalf("automatch: %v", err)
	}
	if report.Pending != 1 || report.AutoAssigned != 0 {
		t.Fatalf("auto_accept=false must leave everything pending, report = %+v", report)
	}
}

func TestAutomatchConsumptionCarriesThroughTheRun(t *testing.T) {
	// Two identical assets chasing one single-slot purchase: the first takes
	// it, the second sees no remaining quantity and ends up unmatched.
	e := newTestEngine(t, nil)
	a1, purchase := exactPair(1, "PO-100")
	a2 := a1
	a2.ID = 2
	set := newTestSet([]matching.AssetRecord{a1, a2}, []matching.PurchaseRecord{purchase})
	e.Ledger().SetCapacities(set.Capacities)

	report := &RunReport{}
	if err := e.automatch(context.Background(), set, report); err != nil {
		t.Fatalf("automatch: %v", err)
	}
	if report.AutoAssigned != 1 || report.Unmatched != 1 {
		t.Fatalf("report = %+v, want 1 auto-assigned and 1 unmatched", report)
	}
	if _, ok := e.Ledger().Get(1); !ok {
		t.Fatalf("first asset should hold the slot")
	}
	if _, ok := e.Ledger().Get(2); ok {
		t.Fatalf("second asset must not be assigned")
	}
}

func TestAutomatchStopsOnCancelledContext(t *testing.T) {
	e := newTestEngine(t, nil)
	asset, purchase := exactPair(1, "PO-100")
	set := newTestSet([]matching.AssetRecord{asset}, []matching.PurchaseRecord{purchase})
	e.Ledger().SetCapacities(set.Capacities)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report := &RunReport{}
	if err := e.automatch(ctx, set, report); err == nil {
		t.Fatalf("expected context error")
	}
	if e.Ledger().AssignedCount() != 0 {
		t.Fatalf("cancelled run committed assignments")
	}
}
