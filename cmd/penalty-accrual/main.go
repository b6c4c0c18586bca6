package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/coop_backend/config"
	"bitbucket.org/mmdatafocus/coop_backend/models"
	"bitbucket.org/mmdatafocus/coop_backend/utils"
	"bitbucket.org/mmdatafocus/coop_backend/workflow"
	"github.com/bsm/redislock"
)

// Nightly sweep: accrue late penalties on every active loan. The accrual
// itself is idempotent per (row, date), so re-running the job for the same
// day is safe; the redis lock only keeps concurrent instances from hammering
// the same loans.
func main() {
	asOfFlag := flag.String("as-of", "", "Optional: accrual date (YYYY-MM-DD). Defaults to today UTC.")
	loanID := flag.Int("loan-id", 0, "Optional: accrue only one loan.")
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

	asOf := time.Now().UTC()
	if strings.TrimSpace(*asOfFlag) != "" {
		parsed, err := time.Parse("2006-01-02", strings.TrimSpace(*asOfFlag))
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -as-of %q: %v\n", *asOfFlag, err)
			os.Exit(1)
		}
		asOf = parsed
	}

	// Single-instance guard: if another sweep holds the lock, bail out and let
	// the scheduler retry.
	locker := config.GetRedisLock()
	lock, err := locker.Obtain(ctx, "penalty-accrual-sweep", 30*time.Minute, nil)
	if err == redislock.ErrNotObtained {
		fmt.Fprintln(os.Stderr, "another accrual sweep is running; exiting")
		return
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to obtain sweep lock: %v\n", err)
		os.Exit(1)
	}
	defer lock.Release(ctx)

	// The sweep runs across all stores.
	ctx = utils.SetSkipStoreScopeInContext(ctx, true)

	var loans []*models.Loan
	query := db.WithContext(ctx).
		Where("status IN ?", []models.LoanStatus{models.LoanStatusActive, models.LoanStatusDisbursed}).
		Where("penalty_rate > 0")
	if *loanID > 0 {
		query = query.Where("id = ?", *loanID)
	}
	if err := query.Order("id").Find(&loans).Error; err != nil {
		fmt.Fprintf(os.Stderr, "failed to list active loans: %v\n", err)
		os.Exit(1)
	}

	var accrued, failed int
	for _, loan := range loans {
		loanCtx := utils.SetStoreIdInContext(ctx, loan.StoreId)
		penalties, err := workflow.AccruePenalties(loanCtx, loan.ID, asOf)
		if err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "loan %d (%s): accrual failed: %v\n", loan.ID, loan.LoanNumber, err)
			continue
		}
		accrued += len(penalties)
	}

	fmt.Printf("penalty accrual as of %s: %d loans scanned, %d penalties accrued, %d failures\n",
		asOf.Format("2006-01-02"), len(loans), accrued, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
