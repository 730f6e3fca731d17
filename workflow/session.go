package workflow

import (
	"context"
	"sync"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/matching"
	"bitbucket.org/mmdatafocus/assets_backend/models"
	"bitbucket.org/mmdatafocus/assets_backend/utils"
	"github.com/shopspring/decimal"
)

// Session is the operator's review surface. It caches one working set so
// repeated next/candidates calls do not re-canonicalize, and serializes all
// access; the API serves a single reconciliation team, not concurrent
// tenants.
type Session struct {
	mu       sync.Mutex
	engine   *Engine
	set      *WorkingSet
	loadedAt time.Time
}

func NewSession(engine *Engine) *Session {
	return &Session{engine: engine}
}

// AssetView is the operator-facing shape of one staged asset.
type AssetView struct {
	Id           int             `json:"id"`
	Name         string          `json:"name"`
	Vendor       string          `json:"vendor"`
	Product      string          `json:"product"`
	AssetType    string          `json:"asset_type"`
	SerialNumber string          `json:"serial_number"`
	Cost         decimal.Decimal `json:"cost"`
	AcquiredAt   *time.Time      `json:"acquired_at"`
}

type CandidateView struct {
	PurchaseId   string          `json:"purchase_id"`
	Vendor       string          `json:"vendor"`
	Product      string          `json:"product"`
	Tier         string          `json:"tier"`
	Score        int             `json:"score"`
	DateDiffDays *int            `json:"date_diff_days"`
	Remaining    int             `json:"remaining"`
	Cost         decimal.Decimal `json:"cost"`
	Date         *time.Time      `json:"date"`
}

type AssignmentView struct {
	AssetId    int       `json:"asset_id"`
	PurchaseId string    `json:"purchase_id"`
	Quantity   int       `json:"quantity"`
	AssignedAt time.Time `json:"assigned_at"`
	AssignedBy string    `json:"assigned_by"`
}

// PendingAsset is one asset awaiting an operator decision, with its ordered
// candidate list and queue position.
type PendingAsset struct {
	Asset        AssetView       `json:"asset"`
	Assignment   *AssignmentView `json:"assignment,omitempty"`
	Candidates   []CandidateView `json:"candidates"`
	PendingTotal int             `json:"pending_total"`
}

type DomainSummary struct {
	Mappings   int `json:"mappings"`
	Unverified int `json:"unverified"`
}

type SummaryView struct {
	TotalAssets    int                      `json:"total_assets"`
	TotalPurchases int                      `json:"total_purchases"`
	Assigned       int                      `json:"assigned"`
	AssignedAuto   int                      `json:"assigned_auto"`
	AssignedManual int                      `json:"assigned_manual"`
	Pending        int                      `json:"pending"`
	Unmatched      int                      `json:"unmatched"`
	SlotsTotal     int                      `json:"slots_total"`
	SlotsConsumed  int                      `json:"slots_consumed"`
	Domains        map[string]DomainSummary `json:"domains"`
	LoadedAt       time.Time                `json:"loaded_at"`
}

func newAssetView(a matching.AssetRecord) AssetView {
	return AssetView{
		Id:           a.ID,
		Name:         a.Name,
		Vendor:       a.Vendor,
		Product:      a.Product,
		AssetType:    a.AssetType,
		SerialNumber: a.SerialNumber,
		Cost:         a.Cost,
		AcquiredAt:   a.AcquiredAt,
	}
}

func newCandidateView(c matching.Candidate) CandidateView {
	view := CandidateView{
		PurchaseId: c.Purchase.ID,
		Vendor:     c.Purchase.Vendor,
		Product:    c.Purchase.Product,
		Tier:       string(c.Tier),
		Score:      c.Score,
		Remaining:  c.Remaining,
		Cost:       c.Purchase.Cost,
		Date:       c.Purchase.Date,
	}
	if c.DateDiffDays >= 0 {
		diff := c.DateDiffDays
		view.DateDiffDays = &diff
	}
	return view
}

func newAssignmentView(a matching.Assignment) *AssignmentView {
	return &AssignmentView{
		AssetId:    a.AssetId,
		PurchaseId: a.PurchaseId,
		Quantity:   a.Quantity,
		AssignedAt: a.AssignedAt,
		AssignedBy: a.AssignedBy,
	}
}

// ensureLoaded builds the working set on first use. Callers hold s.mu.
func (s *Session) ensureLoaded(ctx context.Context) (*WorkingSet, error) {
	if s.set != nil {
		return s.set, nil
	}
	return s.reloadLocked(ctx)
}

func (s *Session) reloadLocked(ctx context.Context) (*WorkingSet, error) {
	assets, err := models.GetAssets(ctx)
	if err != nil {
		return nil, err
	}
	purchases, err := models.GetPurchases(ctx)
	if err != nil {
		return nil, err
	}
	set, err := s.engine.BuildWorkingSet(ctx, assets, purchases)
	if err != nil {
		return nil, err
	}
	s.engine.Ledger().SetCapacities(set.Capacities)
	s.set = set
	s.loadedAt = time.Now()
	return set, nil
}

// Reload re-reads both CSV stores and rebuilds the working set. Operators
// call this after hand-editing mapping or assignment files.
func (s *Session) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.engine.Canonicalizer().Store().Reload(); err != nil {
		return err
	}
	if err := s.engine.Ledger().Reload(); err != nil {
		return err
	}
	s.set = nil
	_, err := s.reloadLocked(ctx)
	return err
}

// Invalidate drops the cached working set; the next call rebuilds it.
func (s *Session) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.set = nil
}

// pendingOrder ranks unassigned assets for review: assets with an exact
// candidate first, then fuzzy, vendor-only, and finally assets with no
// candidate at all; asset id breaks ties.
func tierRank(candidates []matching.Candidate) int {
	if len(candidates) == 0 {
		return 3
	}
	switch candidates[0].Tier {
	case matching.TierExact:
		return 0
	case matching.TierFuzzy:
		return 1
	default:
		return 2
	}
}

// NextPending returns the next asset awaiting a decision, or nil when every
// asset is assigned.
func (s *Session) NextPending(ctx context.Context) (*PendingAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}

	ledger := s.engine.Ledger()
	remaining := ledger.RemainingSnapshot()

	var best *PendingAsset
	bestRank := 0
	pendingTotal := 0
	for _, asset := range set.Assets {
		if _, ok := ledger.Get(asset.ID); ok {
			continue
		}
		pendingTotal++
		candidates := matching.FindCandidates(asset, set.Purchases, remaining, s.engine.cfg)
		rank := tierRank(candidates)
		if best == nil || rank < bestRank {
			views := make([]CandidateView, 0, len(candidates))
			for _, c := range candidates {
				views = append(views, newCandidateView(c))
			}
			best = &PendingAsset{Asset: newAssetView(asset), Candidates: views}
			bestRank = rank
		}
	}

	if best == nil {
		return nil, nil
	}
	best.PendingTotal = pendingTotal
	return best, nil
}

// Candidates returns the ranked purchase candidates for one asset, plus its
// current assignment when present.
func (s *Session) Candidates(ctx context.Context, assetId int) (*PendingAsset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	asset, ok := set.Asset(assetId)
	if !ok {
		return nil, utils.ErrorRecordNotFound
	}

	ledger := s.engine.Ledger()
	candidates := matching.FindCandidates(asset, set.Purchases, ledger.RemainingSnapshot(), s.engine.cfg)
	views := make([]CandidateView, 0, len(candidates))
	for _, c := range candidates {
		views = append(views, newCandidateView(c))
	}

	result := &PendingAsset{Asset: newAssetView(asset), Candidates: views}
	if entry, ok := ledger.Get(assetId); ok {
		result.Assignment = newAssignmentView(entry)
	}
	return result, nil
}

// Assign commits an operator decision. Unknown assets and purchases surface
// as not-found; capacity and duplicate-assignment failures pass through the
// ledger's sentinel errors.
func (s *Session) Assign(ctx context.Context, assetId int, purchaseId string, quantity int, strict bool) (*AssignmentView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	if _, ok := set.Asset(assetId); !ok {
		return nil, utils.ErrorRecordNotFound
	}

	assignedBy := matching.AssignedByManual
	if username, ok := utils.GetUsernameFromContext(ctx); ok && username != "" {
		assignedBy = username
	}

	if err := s.engine.Ledger().Assign(assetId, purchaseId, quantity, assignedBy, strict); err != nil {
		return nil, err
	}
	config.MetricAssignments.WithLabelValues("manual").Inc()

	entry, _ := s.engine.Ledger().Get(assetId)
	return newAssignmentView(entry), nil
}

// Unassign releases the asset's purchase. Unknown assets are not-found;
// an unassigned asset is a successful no-op.
func (s *Session) Unassign(ctx context.Context, assetId int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.ensureLoaded(ctx)
	if err != nil {
		return err
	}
	if _, ok := set.Asset(assetId); !ok {
		return utils.ErrorRecordNotFound
	}
	return s.engine.Ledger().Unassign(assetId)
}

// Summary reports reconciliation progress across assets, purchase slots and
// the mapping store.
func (s *Session) Summary(ctx context.Context) (*SummaryView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}

	ledger := s.engine.Ledger()
	remaining := ledger.RemainingSnapshot()

	view := &SummaryView{
		TotalAssets:    len(set.Assets),
		TotalPurchases: len(set.Purchases),
		Domains:        make(map[string]DomainSummary, 3),
		LoadedAt:       s.loadedAt,
	}

	for _, asset := range set.Assets {
		entry, ok := ledger.Get(asset.ID)
		if ok {
			view.Assigned++
			if entry.AssignedBy == matching.AssignedByAuto {
				view.AssignedAuto++
			} else {
				view.AssignedManual++
			}
			continue
		}
		if len(matching.FindCandidates(asset, set.Purchases, remaining, s.engine.cfg)) == 0 {
			view.Unmatched++
		} else {
			view.Pending++
		}
	}

	for id, capacity := range set.Capacities {
		view.SlotsTotal += capacity
		view.SlotsConsumed += capacity - remaining[id]
	}

	store := s.engine.Canonicalizer().Store()
	for _, domain := range []matching.Domain{matching.DomainVendor, matching.DomainProduct, matching.DomainAssetType} {
		total, unverified := store.Counts(domain)
		view.Domains[string(domain)] = DomainSummary{Mappings: total, Unverified: unverified}
	}

	return view, nil
}

// ExportRows builds the report join for the current working set.
func (s *Session) ExportRows(ctx context.Context) ([]ExportRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	set, err := s.ensureLoaded(ctx)
	if err != nil {
		return nil, err
	}
	return BuildExportRows(set, s.engine.Ledger()), nil
}
