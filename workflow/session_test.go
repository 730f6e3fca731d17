package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/matching"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
)

// newTestSession wires a session around a prebuilt working set so the tests
// stay off the database.
func newTestSession(t *testing.T, assets []matching.AssetRecord, purchases []matching.PurchaseRecord) *Session {
	t.Helper()
	e := newTestEngine(t, nil)
	set := newTestSet(assets, purchases)
	e.Ledger().SetCapacities(set.Capacities)
	return &Session{engine: e, set: set, loadedAt: time.Now()}
}

func TestSessionNextPendingPrefersExactCandidates(t *testing.T) {
	fuzzyAsset, _ := exactPair(1, "")
	fuzzyAsset.Product = "latitude 5521"
	exactAsset, purchase := exactPair(2, "PO-100")

	s := newTestSession(t, []matching.AssetRecord{fuzzyAsset, exactAsset}, []matching.PurchaseRecord{purchase})

	pending, err := s.NextPending(context.Background())
	if err != nil {
		t.Fatalf("NextPending: %v", err)
	}
	if pending == nil {
		t.Fatalf("expected a pending asset")
	}
	if pending.Asset.Id != 2 {
		t.Fatalf("NextPending picked asset %d, want the exact-candidate asset 2", pending.Asset.Id)
	}
	if pending.PendingTotal != 2 {
		t.Fatalf("PendingTotal = %d, want 2", pending.PendingTotal)
	}
	if len(pending.Candidates) == 0 || pending.Candidates[0].Tier != string(matching.TierExact) {
		t.Fatalf("candidates = %+v, want exact first", pending.Candidates)
	}
}

func TestSessionNextPendingNilWhenAllAssigned(t *testing.T) {
	asset, purchase := exactPair(1, "PO-100")
	s := newTestSession(t, []matching.AssetRecord{asset}, []matching.PurchaseRecord{purchase})

	if _, err := s.Assign(context.Background(), 1, "PO-100", 1, false); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	pending, err := s.NextPending(context.Background())
	if err != nil {
		t.Fatalf("NextPending: %v", err)
	}
	if pending != nil {
		t.Fatalf("expected nil, got %+v", pending)
	}
}

func TestSessionCandidatesUnknownAsset(t *testing.T) {
	asset, purchase := exactPair(1, "PO-100")
	s := newTestSession(t, []matching.AssetRecord{asset}, []matching.PurchaseRecord{purchase})

	if _, err := s.Candidates(context.Background(), 999); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected ErrorRecordNotFound, got %v", err)
	}
}

func TestSessionCandidatesShowCurrentAssignment(t *testing.T) {
	asset, purchase := exactPair(1, "PO-100")
	s := newTestSession(t, []matching.AssetRecord{asset}, []matching.PurchaseRecord{purchase})

	if _, err := s.Assign(context.Background(), 1, "PO-100", 1, false); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	detail, err := s.Candidates(context.Background(), 1)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if detail.Assignment == nil || detail.Assignment.PurchaseId != "PO-100" {
		t.Fatalf("assignment missing from detail: %+v", detail.Assignment)
	}
	// The purchase is fully consumed now, so it no longer shows as a candidate.
	if len(detail.Candidates) != 0 {
		t.Fatalf("candidates = %+v, want none with the slot consumed", detail.Candidates)
	}
}

func TestSessionAssignErrorMapping(t *testing.T) {
	asset, purchase := exactPair(1, "PO-100")
	other, _ := exactPair(2, "")
	s := newTestSession(t, []matching.AssetRecord{asset, other}, []matching.PurchaseRecord{purchase})
	ctx := context.Background()

	if _, err := s.Assign(ctx, 999, "PO-100", 1, false); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("unknown asset: got %v", err)
	}
	if _, err := s.Assign(ctx, 1, "PO-MISSING", 1, false); !errors.Is(err, matching.ErrUnknownPurchase) {
		t.Fatalf("unknown purchase: got %v", err)
	}

	if _, err := s.Assign(ctx, 1, "PO-100", 1, false); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if _, err := s.Assign(ctx, 1, "PO-100", 1, true); !errors.Is(err, matching.ErrAlreadyAssigned) {
		t.Fatalf("strict reassign: got %v", err)
	}
	if _, err := s.Assign(ctx, 2, "PO-100", 1, false); !errors.Is(err, matching.ErrCapacityExceeded) {
		t.Fatalf("capacity: got %v", err)
	}
}

func TestSessionAssignRecordsOperatorFromContext(t *testing.T) {
	asset, purchase := exactPair(1, "PO-100")
	s := newTestSession(t, []matching.AssetRecord{asset}, []matching.PurchaseRecord{purchase})

	ctx := utils.SetUsernameInContext(context.Background(), "thiri@example.com")
	view, err := s.Assign(ctx, 1, "PO-100", 1, false)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if view.AssignedBy != "thiri@example.com" {
		t.Fatalf("AssignedBy = %q, want operator username", view.AssignedBy)
	}
}

func TestSessionAssignDecrementsRemainingSlots(t *testing.T) {
	a1, purchase := exactPair(1, "PO-100")
	purchase.Count = 3
	a2 := a1
	a2.ID = 2
	s := newTestSession(t, []matching.AssetRecord{a1, a2}, []matching.PurchaseRecord{purchase})
	ctx := context.Background()

	before, err := s.Candidates(ctx, 1)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if len(before.Candidates) == 0 || before.Candidates[0].Tier != string(matching.TierExact) {
		t.Fatalf("candidates = %+v, want an exact candidate", before.Candidates)
	}
	if before.Candidates[0].Remaining != 3 {
		t.Fatalf("Remaining = %d, want 3 before assign", before.Candidates[0].Remaining)
	}

	if _, err := s.Assign(ctx, 1, "PO-100", 1, false); err != nil {
		t.Fatalf("Assign: %v", err)
	}

	after, err := s.Candidates(ctx, 2)
	if err != nil {
		t.Fatalf("Candidates: %v", err)
	}
	if after.Candidates[0].Remaining != 2 {
		t.Fatalf("Remaining = %d, want 2 after assign", after.Candidates[0].Remaining)
	}
	if got := s.engine.Ledger().Remaining("PO-100"); got != 2 {
		t.Fatalf("ledger Remaining = %d, want 2", got)
	}
}

func TestSessionUnassignIsIdempotent(t *testing.T) {
	asset, purchase := exactPair(1, "PO-100")
	s := newTestSession(t, []matching.AssetRecord{asset}, []matching.PurchaseRecord{purchase})
	ctx := context.Background()

	if _, err := s.Assign(ctx, 1, "PO-100", 1, false); err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if err := s.Unassign(ctx, 1); err != nil {
		t.Fatalf("Unassign: %v", err)
	}
	if err := s.Unassign(ctx, 1); err != nil {
		t.Fatalf("second Unassign should be a no-op, got %v", err)
	}
	if err := s.Unassign(ctx, 999); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("unknown asset: got %v", err)
	}
}

func TestSessionSummaryCounts(t *testing.T) {
	a1, purchase := exactPair(1, "PO-100")
	purchase.Count = 2
	a2 := a1
	a2.ID = 2
	orphan := matching.AssetRecord{ID: 3, Name: "Orphan", Vendor: "HP", Product: "elitebook"}

	s := newTestSession(t, []matching.AssetRecord{a1, a2, orphan}, []matching.PurchaseRecord{purchase})
	ctx := context.Background()

	if err := s.engine.Ledger().Assign(1, "PO-100", 1, matching.AssignedByAuto, false); err != nil {
		t.Fatalf("auto Assign: %v", err)
	}

	summary, err := s.Summary(ctx)
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary.TotalAssets != 3 || summary.TotalPurchases != 1 {
		t.Fatalf("totals = %d/%d", summary.TotalAssets, summary.TotalPurchases)
	}
	if summary.Assigned != 1 || summary.AssignedAuto != 1 || summary.AssignedManual != 0 {
		t.Fatalf("assigned counts = %+v", summary)
	}
	if summary.Pending != 1 {
		t.Fatalf("Pending = %d, want 1 (asset 2 still has a slot)", summary.Pending)
	}
	if summary.Unmatched != 1 {
		t.Fatalf("Unmatched = %d, want 1 (no HP purchases)", summary.Unmatched)
	}
	if summary.SlotsTotal != 2 || summary.SlotsConsumed != 1 {
		t.Fatalf("slots = %d/%d, want 1 of 2 consumed", summary.SlotsConsumed, summary.SlotsTotal)
	}
}
