package workflow

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/matching"
	"bitbucket.org/mmdatafocus/assets_backend/models"
	"github.com/sirupsen/logrus"
)

// RunReport summarizes one reconciliation pass.
type RunReport struct {
	TriggeredBy      string    `json:"triggered_by"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	DurationMs       int64     `json:"duration_ms"`
	TotalAssets      int       `json:"total_assets"`
	TotalPurchases   int       `json:"total_purchases"`
	SkippedAssets    int       `json:"skipped_assets"`
	SkippedPurchases int       `json:"skipped_purchases"`
	AlreadyAssigned  int       `json:"already_assigned"`
	AutoAssigned     int       `json:"auto_assigned"`
	Pending          int       `json:"pending"`
	Unmatched        int       `json:"unmatched"`
}

// Run executes the full pass: canonicalize every staged row, refresh the
// ledger's capacity table, then walk the unassigned assets and commit the
// unambiguous ones. Ambiguous assets stay pending for the operator; assets
// without any candidate are counted unmatched. A ledger or store write
// failure aborts the run with the previous file state intact.
func (e *Engine) Run(ctx context.Context, triggeredBy string) (*RunReport, error) {
	ctx, span := e.tracer.Start(ctx, "recon.run")
	defer span.End()
	startedAt := time.Now()

	assets, err := models.GetAssets(ctx)
	if err != nil {
		config.MetricPipelineRuns.WithLabelValues("failed").Inc()
		return nil, err
	}
	purchases, err := models.GetPurchases(ctx)
	if err != nil {
		config.MetricPipelineRuns.WithLabelValues("failed").Inc()
		return nil, err
	}

	set, err := e.BuildWorkingSet(ctx, assets, purchases)
	if err != nil {
		config.MetricPipelineRuns.WithLabelValues("failed").Inc()
		return nil, err
	}
	e.ledger.SetCapacities(set.Capacities)

	report := &RunReport{
		TriggeredBy:      triggeredBy,
		StartedAt:        startedAt,
		TotalAssets:      len(set.Assets),
		TotalPurchases:   len(set.Purchases),
		SkippedAssets:    set.SkippedAssets,
		SkippedPurchases: set.SkippedPurchases,
	}

	if err := e.automatch(ctx, set, report); err != nil {
		config.MetricPipelineRuns.WithLabelValues("failed").Inc()
		return nil, err
	}

	report.FinishedAt = time.Now()
	report.DurationMs = report.FinishedAt.Sub(startedAt).Milliseconds()
	config.MetricPipelineRuns.WithLabelValues("success").Inc()

	e.logger.WithFields(logrus.Fields{
		"triggered_by":     triggeredBy,
		"total_assets":     report.TotalAssets,
		"already_assigned": report.AlreadyAssigned,
		"auto_assigned":    report.AutoAssigned,
		"pending":          report.Pending,
		"unmatched":        report.Unmatched,
		"duration_ms":      report.DurationMs,
	}).Info("reconciliation run finished")

	return report, nil
}

func (e *Engine) automatch(ctx context.Context, set *WorkingSet, report *RunReport) error {
	for _, asset := range set.Assets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, ok := e.ledger.Get(asset.ID); ok {
			report.AlreadyAssigned++
			continue
		}

		candidates := matching.FindCandidates(asset, set.Purchases, e.ledger.RemainingSnapshot(), e.cfg)
		if len(candidates) == 0 {
			report.Unmatched++
			continue
		}

		accepted, ok := matching.AutoAcceptCandidate(candidates)
		if !ok || !e.autoAccept {
			report.Pending++
			continue
		}

		err := e.ledger.Assign(asset.ID, accepted.Purchase.ID, 1, matching.AssignedByAuto, true)
		switch {
		case err == nil:
			config.MetricAssignments.WithLabelValues(matching.AssignedByAuto).Inc()
			report.AutoAssigned++
		case errors.Is(err, matching.ErrCapacityExceeded) || errors.Is(err, matching.ErrAlreadyAssigned):
			// Lost the slot between snapshot and commit; leave for the operator.
			config.LogError(e.logger, "workflow", "automatch", "auto-accept rejected", map[string]any{
				"asset_id":    asset.ID,
				"purchase_id": accepted.Purchase.ID,
			}, err)
			report.Pending++
		default:
			return err
		}
	}
	return nil
}
