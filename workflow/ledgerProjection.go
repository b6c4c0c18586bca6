package workflow

import (
	"context"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/coop_backend/config"
	"bitbucket.org/mmdatafocus/coop_backend/models"
	"bitbucket.org/mmdatafocus/coop_backend/utils"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// loanPaidSums is the ground truth recomputed from the schedule rows.
type loanPaidSums struct {
	PrincipalPaid int64
	InterestPaid  int64
	PenaltyPaid   int64
}

// AssertLoanConsistency recomputes the loan's running totals from its schedule
// rows and penalties and compares them with the denormalized columns. A
// mismatch means a mutator bug: the caller must roll the transaction back
// rather than persist inconsistent state, so the error is a ConsistencyError
// and propagates unmodified.
//
// Call this at the end of every mutating workflow, inside the same transaction.
func AssertLoanConsistency(tx *gorm.DB, loan *models.Loan) error {
	var sums loanPaidSums
	err := tx.Raw(`
		SELECT
			COALESCE(SUM(principal_paid), 0) AS principal_paid,
			COALESCE(SUM(interest_paid), 0)  AS interest_paid,
			COALESCE(SUM(penalty_paid), 0)   AS penalty_paid
		FROM loan_schedule_rows
		WHERE loan_id = ?
	`, loan.ID).Scan(&sums).Error
	if err != nil {
		return err
	}

	if sums.PrincipalPaid != loan.TotalPrincipalPaid.Centavos() {
		return utils.NewConsistencyError("LOAN_PRINCIPAL",
			"loan %d: sum(row.principal_paid)=%d != loan.total_principal_paid=%d",
			loan.ID, sums.PrincipalPaid, loan.TotalPrincipalPaid.Centavos())
	}
	if sums.InterestPaid != loan.TotalInterestPaid.Centavos() {
		return utils.NewConsistencyError("LOAN_INTEREST",
			"loan %d: sum(row.interest_paid)=%d != loan.total_interest_paid=%d",
			loan.ID, sums.InterestPaid, loan.TotalInterestPaid.Centavos())
	}
	if sums.PenaltyPaid != loan.TotalPenaltyPaid.Centavos() {
		return utils.NewConsistencyError("LOAN_PENALTY_PAID",
			"loan %d: sum(row.penalty_paid)=%d != loan.total_penalty_paid=%d",
			loan.ID, sums.PenaltyPaid, loan.TotalPenaltyPaid.Centavos())
	}

	expectedOutstanding := loan.PrincipalAmount.Sub(loan.TotalPrincipalPaid)
	if loan.OutstandingBalance != expectedOutstanding {
		return utils.NewConsistencyError("LOAN_BALANCE",
			"loan %d: outstanding_balance=%d != principal_amount-total_principal_paid=%d",
			loan.ID, loan.OutstandingBalance.Centavos(), expectedOutstanding.Centavos())
	}
	if loan.OutstandingBalance.IsNegative() {
		return utils.NewConsistencyError("LOAN_BALANCE",
			"loan %d: outstanding_balance=%d is negative",
			loan.ID, loan.OutstandingBalance.Centavos())
	}

	var penaltyOutstanding int64
	err = tx.Raw(`
		SELECT COALESCE(SUM(penalty_amount - waived_amount - paid_amount), 0)
		FROM loan_penalties
		WHERE loan_id = ? AND is_paid = 0
	`, loan.ID).Scan(&penaltyOutstanding).Error
	if err != nil {
		return err
	}
	if penaltyOutstanding != loan.TotalPenaltiesOutstanding.Centavos() {
		return utils.NewConsistencyError("LOAN_PENALTY",
			"loan %d: sum(open penalty outstanding)=%d != loan.total_penalties_outstanding=%d",
			loan.ID, penaltyOutstanding, loan.TotalPenaltiesOutstanding.Centavos())
	}

	return nil
}

// RunLoanReconciliationChecks sweeps every loan of a store and writes mismatch
// rows to reconciliation_reports. Intended to run on a schedule (nightly) or
// via an admin trigger; the in-transaction assertions should make these
// reports empty, so any row here is a bug report.
func RunLoanReconciliationChecks(ctx context.Context, storeId string) (correlationId string, err error) {
	if ctx == nil {
		ctx = context.Background()
	}
	db := config.GetDB()
	if db == nil {
		return "", fmt.Errorf("db is nil")
	}
	logger := config.GetLogger()

	cid, ok := utils.GetCorrelationIdFromContext(ctx)
	if !ok || cid == "" {
		cid = uuid.NewString()
	}
	now := time.Now().UTC()

	type loanMismatch struct {
		LoanId   int
		Expected int64
		Actual   int64
	}

	// 1) loan.total_principal_paid vs sum(schedule rows)
	var principalMismatches []loanMismatch
	if err := db.WithContext(ctx).Raw(`
		SELECT
			l.id AS loan_id,
			l.total_principal_paid AS expected,
			COALESCE(SUM(r.principal_paid), 0) AS actual
		FROM loans l
		LEFT JOIN loan_schedule_rows r ON r.loan_id = l.id
		WHERE l.store_id = ?
		GROUP BY l.id
		HAVING l.total_principal_paid <> COALESCE(SUM(r.principal_paid), 0)
	`, storeId).Scan(&principalMismatches).Error; err != nil {
		return cid, err
	}
	for _, m := range principalMismatches {
		cerr := db.WithContext(ctx).Create(&models.ReconciliationReport{
			StoreId:       storeId,
			CheckType:     "LOAN_PRINCIPAL",
			EntityType:    "Loan",
			EntityId:      m.LoanId,
			Details:       fmt.Sprintf("total_principal_paid=%d != sum(row.principal_paid)=%d", m.Expected, m.Actual),
			CorrelationId: cid,
			CreatedAt:     now,
		}).Error
		if cerr != nil {
			config.LogError(logger, "ledgerProjection.go", "RunLoanReconciliationChecks", "CreateReport", m.LoanId, cerr)
		}
	}

	// 2) loan.outstanding_balance vs principal - total_principal_paid
	var balanceMismatches []loanMismatch
	if err := db.WithContext(ctx).Raw(`
		SELECT
			l.id AS loan_id,
			l.principal_amount - l.total_principal_paid AS expected,
			l.outstanding_balance AS actual
		FROM loans l
		WHERE l.store_id = ?
		  AND (l.outstanding_balance <> l.principal_amount - l.total_principal_paid
		       OR l.outstanding_balance < 0)
	`, storeId).Scan(&balanceMismatches).Error; err != nil {
		return cid, err
	}
	for _, m := range balanceMismatches {
		cerr := db.WithContext(ctx).Create(&models.ReconciliationReport{
			StoreId:       storeId,
			CheckType:     "LOAN_BALANCE",
			EntityType:    "Loan",
			EntityId:      m.LoanId,
			Details:       fmt.Sprintf("outstanding_balance=%d != principal-total_principal_paid=%d", m.Actual, m.Expected),
			CorrelationId: cid,
			CreatedAt:     now,
		}).Error
		if cerr != nil {
			config.LogError(logger, "ledgerProjection.go", "RunLoanReconciliationChecks", "CreateReport", m.LoanId, cerr)
		}
	}

	// 3) loan.total_penalties_outstanding vs sum(open penalties)
	var penaltyMismatches []loanMismatch
	if err := db.WithContext(ctx).Raw(`
		SELECT
			l.id AS loan_id,
			l.total_penalties_outstanding AS expected,
			COALESCE(SUM(p.penalty_amount - p.waived_amount - p.paid_amount), 0) AS actual
		FROM loans l
		LEFT JOIN loan_penalties p ON p.loan_id = l.id AND p.is_paid = 0
		WHERE l.store_id = ?
		GROUP BY l.id
		HAVING l.total_penalties_outstanding <> COALESCE(SUM(p.penalty_amount - p.waived_amount - p.paid_amount), 0)
	`, storeId).Scan(&penaltyMismatches).Error; err != nil {
		return cid, err
	}
	for _, m := range penaltyMismatches {
		cerr := db.WithContext(ctx).Create(&models.ReconciliationReport{
			StoreId:       storeId,
			CheckType:     "LOAN_PENALTY",
			EntityType:    "Loan",
			EntityId:      m.LoanId,
			Details:       fmt.Sprintf("total_penalties_outstanding=%d != sum(open penalty outstanding)=%d", m.Expected, m.Actual),
			CorrelationId: cid,
			CreatedAt:     now,
		}).Error
		if cerr != nil {
			config.LogError(logger, "ledgerProjection.go", "RunLoanReconciliationChecks", "CreateReport", m.LoanId, cerr)
		}
	}

	if logger != nil {
		logger.WithFields(logrus.Fields{
			"field":               "LoanReconciliationChecks",
			"store_id":            storeId,
			"correlation_id":      cid,
			"principal_mismatch":  len(principalMismatches),
			"balance_mismatch":    len(balanceMismatches),
			"penalty_mismatch":    len(penaltyMismatches),
		}).Info("loan reconciliation checks completed")
	}
	return cid, nil
}
