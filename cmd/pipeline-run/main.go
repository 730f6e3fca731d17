// pipeline-run executes one reconciliation pass from the command line:
// canonicalize staged rows, refresh purchase capacities, auto-assign the
// unambiguous matches, and print the run report.
//
// Usage:
//
//	DB_USER=... DB_PASSWORD=... CLASSIFIER_API_KEY=... \
//	  go run ./cmd/pipeline-run [-triggered-by nightly] [-link-employees]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/matching"
	"bitbucket.org/mmdatafocus/assets_backend/workflow"
)

func main() {
	triggeredBy := flag.String("triggered-by", "cli", "recorded on the run report")
	linkEmployees := flag.Bool("link-employees", false, "also link assets to employees by name after the pass")
	flag.Parse()

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	settings := config.GetSettings()
	var classifier matching.Classifier
	chat, err := matching.NewChatClassifier(matching.ClassifierOptions{
		BaseURL:           settings.Classifier.BaseURL,
		Model:             settings.Classifier.Model,
		RequestsPerMinute: settings.Classifier.RequestsPerMinute,
		Timeout:           time.Duration(settings.Classifier.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "classifier disabled: %v (unseen strings will be staged unverified)\n", err)
		classifier = matching.DisabledClassifier{}
	} else {
		classifier = chat
	}

	engine, err := workflow.NewEngineFromSettings(settings, classifier)
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine init failed: %v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	report, err := engine.Run(ctx, *triggeredBy)
	if err != nil {
		fmt.Fprintf(os.Stderr, "run failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("assets=%d purchases=%d auto_assigned=%d already_assigned=%d pending=%d unmatched=%d\n",
		report.TotalAssets, report.TotalPurchases, report.AutoAssigned,
		report.AlreadyAssigned, report.Pending, report.Unmatched)
	if report.SkippedAssets > 0 || report.SkippedPurchases > 0 {
		fmt.Printf("skipped: assets=%d purchases=%d (see logs)\n", report.SkippedAssets, report.SkippedPurchases)
	}
	fmt.Printf("duration=%dms\n", report.DurationMs)

	if *linkEmployees {
		hc, err := engine.LinkEmployees(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "employee linking failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("employees linked=%d unlinked=%d departments=%d\n",
			hc.AssetsLinked, hc.AssetsUnlinked, hc.DepartmentsLinked)
	}
}
