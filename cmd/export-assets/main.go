// export-assets writes the merged reconciliation report to a file. The
// extension picks the format: .csv writes plain CSV, anything else xlsx.
//
// Usage:
//
//	go run ./cmd/export-assets -out reconciliation.xlsx
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/matching"
	"bitbucket.org/mmdatafocus/assets_backend/workflow"
)

func main() {
	out := flag.String("out", "", "output path (required; .csv or .xlsx)")
	flag.Parse()

	if strings.TrimSpace(*out) == "" {
		fmt.Fprintln(os.Stderr, "-out is required")
		os.Exit(1)
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	// Exports only read the staged rows and the ledger; the classifier is
	// never called for strings the mapping store already knows.
	engine, err := workflow.NewEngineFromSettings(config.GetSettings(), matching.DisabledClassifier{})
	if err != nil {
		fmt.Fprintf(os.Stderr, "engine init failed: %v\n", err)
		os.Exit(1)
	}
	session := workflow.NewSession(engine)

	ctx := context.Background()
	rows, err := session.ExportRows(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building export rows failed: %v\n", err)
		os.Exit(1)
	}

	f, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", *out, err)
		os.Exit(1)
	}

	if strings.HasSuffix(strings.ToLower(*out), ".csv") {
		err = workflow.WriteExportCSV(f, rows)
	} else {
		err = workflow.WriteExportXLSX(f, rows)
	}
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "write export: %v\n", err)
		os.Exit(1)
	}

	assigned := 0
	for _, row := range rows {
		if row.PurchaseId != "" {
			assigned++
		}
	}
	fmt.Printf("wrote %d rows (%d assigned) to %s\n", len(rows), assigned, *out)
}
