package workflow

import (
	"context"
	"fmt"
	"path/filepath"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/matching"
	"bitbucket.org/mmdatafocus/assets_backend/models"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Engine wires the reconciliation collaborators together: the canonicalizer
// over the CSV mapping store, the assignment ledger, and the matcher config.
// One engine is shared by the pipeline, the operator session and the CLIs.
type Engine struct {
	canon      *matching.Canonicalizer
	ledger     *matching.Ledger
	cfg        matching.Config
	autoAccept bool
	headcount  int
	logger     *logrus.Logger
	tracer     trace.Tracer
}

func NewEngine(canon *matching.Canonicalizer, ledger *matching.Ledger, cfg matching.Config, autoAccept bool, headcountThreshold int, logger *logrus.Logger) *Engine {
	if headcountThreshold <= 0 {
		headcountThreshold = 80
	}
	return &Engine{
		canon:      canon,
		ledger:     ledger,
		cfg:        cfg,
		autoAccept: autoAccept,
		headcount:  headcountThreshold,
		logger:     logger,
		tracer:     otel.Tracer("assets-recon"),
	}
}

// NewEngineFromSettings builds the standard production engine: mapping store
// under <data.dir>/mappings, ledger at <data.dir>/assignments.csv.
func NewEngineFromSettings(settings config.Settings, classifier matching.Classifier) (*Engine, error) {
	store, err := matching.OpenMappingStore(filepath.Join(settings.Data.Dir, "mappings"))
	if err != nil {
		return nil, fmt.Errorf("open mapping store: %w", err)
	}
	ledger, err := matching.OpenLedger(filepath.Join(settings.Data.Dir, "assignments.csv"), nil)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	logger := config.GetLogger()
	canon := matching.NewCanonicalizer(store, classifier, logger, settings.Classifier.MaxRetries, 0)
	cfg := matching.Config{
		ExactWindowDays: settings.Matching.ExactWindowDays,
		FuzzyWindowDays: settings.Matching.FuzzyWindowDays,
		FuzzyThreshold:  settings.Matching.FuzzyThreshold,
	}
	return NewEngine(canon, ledger, cfg, settings.Matching.AutoAccept, settings.Headcount.Threshold, logger), nil
}

func (e *Engine) Ledger() *matching.Ledger {
	return e.ledger
}

func (e *Engine) Canonicalizer() *matching.Canonicalizer {
	return e.canon
}

// WorkingSet is the canonical view of the staged data for one run: every
// raw string resolved to its label, plus the per-purchase capacity table.
// Asset order follows the staged query (external id ascending).
type WorkingSet struct {
	Assets           []matching.AssetRecord
	Purchases        []matching.PurchaseRecord
	Capacities       map[string]int
	SkippedAssets    int
	SkippedPurchases int

	assetIndex    map[int]int
	purchaseIndex map[string]int
}

func (s *WorkingSet) Asset(id int) (matching.AssetRecord, bool) {
	i, ok := s.assetIndex[id]
	if !ok {
		return matching.AssetRecord{}, false
	}
	return s.Assets[i], true
}

func (s *WorkingSet) Purchase(id string) (matching.PurchaseRecord, bool) {
	i, ok := s.purchaseIndex[id]
	if !ok {
		return matching.PurchaseRecord{}, false
	}
	return s.Purchases[i], true
}

// BuildWorkingSet canonicalizes the staged rows. Unresolvable rows are
// logged, counted and skipped; they never abort the run. A store persistence
// failure or a cancelled context does abort.
func (e *Engine) BuildWorkingSet(ctx context.Context, assets []models.Asset, purchases []models.Purchase) (*WorkingSet, error) {
	set := &WorkingSet{
		Capacities:    make(map[string]int, len(purchases)),
		assetIndex:    make(map[int]int, len(assets)),
		purchaseIndex: make(map[string]int, len(purchases)),
	}

	for _, a := range assets {
		if a.ID <= 0 {
			config.LogError(e.logger, "workflow", "BuildWorkingSet", "staged asset without id skipped", map[string]any{
				"external_id": a.ExternalId,
				"name":        a.Name,
			}, nil)
			set.SkippedAssets++
			continue
		}
		record, err := e.buildAssetRecord(ctx, a)
		if err != nil {
			return nil, err
		}
		set.assetIndex[record.ID] = len(set.Assets)
		set.Assets = append(set.Assets, record)
	}

	for _, p := range purchases {
		if p.PurchaseId == "" {
			config.LogError(e.logger, "workflow", "BuildWorkingSet", "staged purchase without id skipped", map[string]any{
				"reference": p.Reference,
				"item":      p.Item,
			}, nil)
			set.SkippedPurchases++
			continue
		}
		record, err := e.buildPurchaseRecord(ctx, p)
		if err != nil {
			return nil, err
		}
		set.purchaseIndex[record.ID] = len(set.Purchases)
		set.Purchases = append(set.Purchases, record)
		set.Capacities[record.ID] = record.Count
	}

	return set, nil
}

func (e *Engine) buildAssetRecord(ctx context.Context, a models.Asset) (matching.AssetRecord, error) {
	vendor, err := e.canon.Canonicalize(ctx, matching.DomainVendor, a.VendorRaw)
	if err != nil {
		return matching.AssetRecord{}, err
	}
	product, err := e.canon.Canonicalize(ctx, matching.DomainProduct, a.ProductRaw)
	if err != nil {
		return matching.AssetRecord{}, err
	}
	assetType, err := e.canon.Canonicalize(ctx, matching.DomainAssetType, a.AssetTypeRaw)
	if err != nil {
		return matching.AssetRecord{}, err
	}

	return matching.AssetRecord{
		ID:           a.ID,
		Name:         a.Name,
		Vendor:       vendor,
		Product:      product,
		AssetType:    assetType,
		SerialNumber: a.SerialNumber,
		Cost:         a.Cost,
		AcquiredAt:   a.AcquiredAt,
	}, nil
}

func (e *Engine) buildPurchaseRecord(ctx context.Context, p models.Purchase) (matching.PurchaseRecord, error) {
	vendor, err := e.canon.Canonicalize(ctx, matching.DomainVendor, p.VendorRaw)
	if err != nil {
		return matching.PurchaseRecord{}, err
	}
	product, err := e.canon.Canonicalize(ctx, matching.DomainProduct, p.Item)
	if err != nil {
		return matching.PurchaseRecord{}, err
	}

	return matching.PurchaseRecord{
		ID:          p.PurchaseId,
		Vendor:      vendor,
		Product:     product,
		Description: p.Description,
		Cost:        p.Cost,
		Date:        p.Date,
		Count:       p.Count,
	}, nil
}
