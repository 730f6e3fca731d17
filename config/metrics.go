package config

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	MetricClassifierRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_classifier_requests_total",
		Help: "External classifier calls by domain and outcome (ok, error, fallback).",
	}, []string{"domain", "outcome"})

	MetricAssignments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_assignments_total",
		Help: "Committed purchase assignments by source (auto, manual).",
	}, []string{"source"})

	MetricSyncRecords = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_sync_records_total",
		Help: "Records staged per provider and entity.",
	}, []string{"provider", "entity"})

	MetricSyncErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_sync_errors_total",
		Help: "Records skipped during sync per provider and entity.",
	}, []string{"provider", "entity"})

	MetricPipelineRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "recon_pipeline_runs_total",
		Help: "Reconciliation pipeline executions by result.",
	}, []string{"status"})
)
