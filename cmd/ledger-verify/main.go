// ledger-verify cross-checks the assignment ledger file against the staged
// purchase pool: every referenced purchase must exist and no purchase may be
// consumed past its unit count. Exits non-zero when the file needs repair,
// e.g. after a hand edit.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"bitbucket.org/mmdatafocus/assets_backend/config"
	"bitbucket.org/mmdatafocus/assets_backend/matching"
	"bitbucket.org/mmdatafocus/assets_backend/models"
)

func main() {
	ledgerPath := flag.String("ledger", "", "ledger csv path (default <data.dir>/assignments.csv)")
	verbose := flag.Bool("v", false, "print every assignment row")
	flag.Parse()

	settings := config.GetSettings()
	path := *ledgerPath
	if path == "" {
		path = filepath.Join(settings.Data.Dir, "assignments.csv")
	}

	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized")
		os.Exit(1)
	}

	purchases, err := models.GetPurchases(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "load purchases: %v\n", err)
		os.Exit(1)
	}
	capacities := make(map[string]int, len(purchases))
	for _, p := range purchases {
		capacities[p.PurchaseId] = p.Count
	}

	ledger, err := matching.OpenLedger(path, capacities)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open ledger %s: %v\n", path, err)
		os.Exit(1)
	}

	entries := ledger.All()
	consumed := map[string]int{}
	violations := 0
	for _, entry := range entries {
		consumed[entry.PurchaseId] += entry.Quantity
		if *verbose {
			fmt.Printf("asset=%d purchase=%s qty=%d by=%s at=%s\n",
				entry.AssetId, entry.PurchaseId, entry.Quantity,
				entry.AssignedBy, entry.AssignedAt.Format("2006-01-02 15:04:05"))
		}
		if _, ok := capacities[entry.PurchaseId]; !ok {
			violations++
			fmt.Printf("VIOLATION asset=%d references unknown purchase %q\n", entry.AssetId, entry.PurchaseId)
		}
		if entry.Quantity <= 0 {
			violations++
			fmt.Printf("VIOLATION asset=%d has non-positive quantity %d\n", entry.AssetId, entry.Quantity)
		}
	}

	ids := make([]string, 0, len(consumed))
	for id := range consumed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		capacity, ok := capacities[id]
		if ok && consumed[id] > capacity {
			violations++
			fmt.Printf("VIOLATION purchase %s consumed %d of %d\n", id, consumed[id], capacity)
		}
	}

	fmt.Printf("assignments=%d purchases_touched=%d violations=%d\n", len(entries), len(consumed), violations)
	if violations > 0 {
		os.Exit(1)
	}
}
