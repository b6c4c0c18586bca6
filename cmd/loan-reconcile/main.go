package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"bitbucket.org/mmdatafocus/coop_backend/config"
	"bitbucket.org/mmdatafocus/coop_backend/models"
	"bitbucket.org/mmdatafocus/coop_backend/utils"
	"bitbucket.org/mmdatafocus/coop_backend/workflow"
)

// Offline reconciliation: re-derive every loan's totals from its schedule rows
// and penalties and write a report row per mismatch. Read-only with respect to
// the ledger; safe to run any time.
func main() {
	storeID := flag.String("store-id", "", "Optional: reconcile only one store. If empty, reconciles all stores.")
	flag.Parse()

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	db := config.GetDB()
	if db == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil)")
		os.Exit(1)
	}
	models.MigrateTable()

	ctx = utils.SetSkipStoreScopeInContext(ctx, true)

	var storeIds []string
	if strings.TrimSpace(*storeID) != "" {
		storeIds = []string{strings.TrimSpace(*storeID)}
	} else {
		err := db.WithContext(ctx).Model(&models.Loan{}).
			Distinct("store_id").Order("store_id").Pluck("store_id", &storeIds).Error
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list stores: %v\n", err)
			os.Exit(1)
		}
	}

	var failed int
	for _, sid := range storeIds {
		storeCtx := utils.SetStoreIdInContext(ctx, sid)
		correlationId, err := workflow.RunLoanReconciliationChecks(storeCtx, sid)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "store %s: reconciliation failed: %v\n", sid, err)
			continue
		}
		fmt.Printf("store %s: reconciliation run %s complete\n", sid, correlationId)
	}
	if failed > 0 {
		os.Exit(1)
	}
}
