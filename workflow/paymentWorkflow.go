package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/coop_backend/config"
	"bitbucket.org/mmdatafocus/coop_backend/models"
	"bitbucket.org/mmdatafocus/coop_backend/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// NewPayment is the request body for recording a payment against a loan.
type NewPayment struct {
	Amount          int64                `json:"amount" binding:"required,gt=0"`
	Method          models.PaymentMethod `json:"method" binding:"required"`
	ReferenceNumber string               `json:"reference_number"`
	PaymentDate     *time.Time           `json:"payment_date"`
}

// rowAllocation is the outcome of the waterfall for one schedule row before
// persistence.
type rowAllocation struct {
	Row              *models.LoanScheduleRow
	Penalty          *models.LoanPenalty
	PrincipalApplied models.MoneyAmount
	InterestApplied  models.MoneyAmount
	PenaltyApplied   models.MoneyAmount
	RowStatusBefore  models.ScheduleRowStatus
	PaidDateBefore   *time.Time
}

// record builds the persisted allocation row for this outcome.
func (a rowAllocation) record(paymentId int) models.LoanPaymentAllocation {
	rec := models.LoanPaymentAllocation{
		LoanPaymentId:    paymentId,
		PrincipalApplied: a.PrincipalApplied,
		InterestApplied:  a.InterestApplied,
		PenaltyApplied:   a.PenaltyApplied,
		RowStatusBefore:  a.RowStatusBefore,
		PaidDateBefore:   a.PaidDateBefore,
	}
	if a.Row != nil {
		rec.ScheduleRowId = a.Row.ID
	}
	if a.Penalty != nil {
		rec.LoanPenaltyId = a.Penalty.ID
	}
	return rec
}

// allocatePayment runs the waterfall over the loan's open penalties and
// schedule rows. Strictly row by row, oldest first: the row's penalties, then
// its interest, then its principal; funds spill to the next row only once the
// current row is fully exhausted. Penalties whose row is already settled have
// nothing else to collect on that row and go first, oldest applied date first.
// Pure over its inputs; nothing is mutated here, the caller applies and
// persists the results.
func allocatePayment(amount models.MoneyAmount, rows []*models.LoanScheduleRow, penalties []*models.LoanPenalty) ([]rowAllocation, models.MoneyAmount) {
	remaining := amount
	allocations := make([]rowAllocation, 0, 4)

	rowById := make(map[int]*models.LoanScheduleRow, len(rows))
	for _, row := range rows {
		rowById[row.ID] = row
	}
	penaltiesByRow := make(map[int][]*models.LoanPenalty, len(penalties))
	for _, p := range penalties {
		penaltiesByRow[p.ScheduleRowId] = append(penaltiesByRow[p.ScheduleRowId], p)
	}

	allocPenalty := func(p *models.LoanPenalty) {
		due := p.Outstanding()
		if !due.IsPositive() || remaining.IsZero() {
			return
		}
		applied := remaining.Min(due)
		remaining = remaining.Sub(applied)
		alloc := rowAllocation{Penalty: p, PenaltyApplied: applied}
		if row := rowById[p.ScheduleRowId]; row != nil {
			alloc.Row = row
			alloc.RowStatusBefore = row.Status
			alloc.PaidDateBefore = row.PaidDate
		}
		allocations = append(allocations, alloc)
	}

	for _, p := range penalties {
		if remaining.IsZero() {
			break
		}
		if row := rowById[p.ScheduleRowId]; row != nil && !row.IsSettled() {
			continue
		}
		allocPenalty(p)
	}

	for _, row := range rows {
		if remaining.IsZero() {
			break
		}
		if row.IsSettled() {
			continue
		}

		for _, p := range penaltiesByRow[row.ID] {
			allocPenalty(p)
		}

		statusBefore := row.Status
		paidDateBefore := row.PaidDate

		interest := remaining.Min(row.OutstandingInterest())
		remaining = remaining.Sub(interest)
		principal := remaining.Min(row.OutstandingPrincipal())
		remaining = remaining.Sub(principal)
		if interest.IsZero() && principal.IsZero() {
			continue
		}
		allocations = append(allocations, rowAllocation{
			Row:              row,
			InterestApplied:  interest,
			PrincipalApplied: principal,
			RowStatusBefore:  statusBefore,
			PaidDateBefore:   paidDateBefore,
		})
	}

	return allocations, remaining
}

// applyAllocation posts one allocation onto its row and penalty in memory.
// Only interest or principal money moves a row's status and paid date; a
// penalty-only allocation leaves the row's history untouched.
func applyAllocation(a rowAllocation, paymentDate time.Time) {
	if a.Penalty != nil && a.PenaltyApplied.IsPositive() {
		a.Penalty.PaidAmount = a.Penalty.PaidAmount.Add(a.PenaltyApplied)
		if a.Penalty.Outstanding().IsZero() {
			a.Penalty.IsPaid = true
		}
	}
	if a.Row == nil {
		return
	}
	row := a.Row
	row.PrincipalPaid = row.PrincipalPaid.Add(a.PrincipalApplied)
	row.InterestPaid = row.InterestPaid.Add(a.InterestApplied)
	row.PenaltyPaid = row.PenaltyPaid.Add(a.PenaltyApplied)
	row.TotalPaid = row.TotalPaid.Add(a.PrincipalApplied).Add(a.InterestApplied).Add(a.PenaltyApplied)
	if a.InterestApplied.IsPositive() || a.PrincipalApplied.IsPositive() {
		if row.OutstandingDue().IsZero() {
			row.Status = models.ScheduleRowStatusPaid
			row.PaidDate = &paymentDate
		} else {
			row.Status = models.ScheduleRowStatusPartial
		}
	}
}

// revertAllocation undoes one persisted allocation, restoring the row from the
// snapshot the allocation carries. Walking a payment's allocations in reverse
// order through this restores the pre-payment state exactly.
func revertAllocation(rec models.LoanPaymentAllocation, row *models.LoanScheduleRow, penalty *models.LoanPenalty) {
	if penalty != nil && rec.PenaltyApplied.IsPositive() {
		penalty.PaidAmount = penalty.PaidAmount.Sub(rec.PenaltyApplied)
		penalty.IsPaid = penalty.Outstanding().IsZero()
	}
	if row == nil {
		return
	}
	row.PrincipalPaid = row.PrincipalPaid.Sub(rec.PrincipalApplied)
	row.InterestPaid = row.InterestPaid.Sub(rec.InterestApplied)
	row.PenaltyPaid = row.PenaltyPaid.Sub(rec.PenaltyApplied)
	row.TotalPaid = row.TotalPaid.Sub(rec.PrincipalApplied).Sub(rec.InterestApplied).Sub(rec.PenaltyApplied)
	row.Status = rec.RowStatusBefore
	row.PaidDate = rec.PaidDateBefore
}

// RecordPayment posts a payment: it validates the tender, runs the waterfall,
// writes the payment with one allocation record per touched row, updates the
// rows, penalties and loan totals, and closes the loan when it reaches zero.
// Everything happens in one transaction under the loan's posting lock.
func RecordPayment(ctx context.Context, loanId int, input NewPayment) (*models.LoanPayment, error) {
	db := config.GetDB()
	logger := config.GetLogger()
	receivedBy, _ := utils.GetUserIdFromContext(ctx)

	amount := models.NewMoneyFromCentavos(input.Amount)
	if !amount.IsPositive() {
		return nil, utils.NewBusinessRuleError("payment.record", "payment amount must be positive")
	}
	paymentDate := time.Now().UTC()
	if input.PaymentDate != nil {
		paymentDate = *input.PaymentDate
	}
	if !config.AllowBackdatedPayments() {
		today := time.Now().UTC().Truncate(24 * time.Hour)
		if paymentDate.Before(today) {
			return nil, utils.NewBusinessRuleError("payment.record",
				"backdated payments are disabled; payment date %s is in the past", paymentDate.Format("2006-01-02"))
		}
	}

	var payment *models.LoanPayment
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := AcquireLoanPostingLock(tx, loanId); err != nil {
			return err
		}
		defer ReleaseLoanPostingLock(tx, loanId)

		loan, err := models.GetLoanForUpdate(tx, loanId)
		if err != nil {
			return err
		}
		if !loanStatusIn(loan, models.LoanStatusActive, models.LoanStatusDisbursed) {
			return illegalTransition("payment", loan, models.LoanStatusActive, models.LoanStatusDisbursed)
		}

		rows, err := models.GetScheduleRowsForUpdate(tx, loanId)
		if err != nil {
			return err
		}
		penalties, err := models.GetOpenPenaltiesForUpdate(tx, loanId)
		if err != nil {
			return err
		}

		var collectible models.MoneyAmount
		for _, penalty := range penalties {
			collectible = collectible.Add(penalty.Outstanding())
		}
		for _, row := range rows {
			if !row.IsSettled() {
				collectible = collectible.Add(row.OutstandingDue())
			}
		}
		if amount > collectible {
			return utils.NewBusinessRuleError("payment.record",
				"payment %s exceeds the %s still collectible on loan %s",
				amount, collectible, loan.LoanNumber)
		}

		allocations, leftover := allocatePayment(amount, rows, penalties)
		if !leftover.IsZero() {
			return utils.NewConsistencyError("payment.allocation",
				"waterfall left %s of %s unallocated on loan %d", leftover, amount, loan.ID)
		}

		balanceBefore := loan.OutstandingBalance
		var principalTotal, interestTotal, penaltyTotal models.MoneyAmount

		payment = &models.LoanPayment{
			StoreId:         loan.StoreId,
			LoanId:          loan.ID,
			Amount:          amount,
			Method:          input.Method,
			ReferenceNumber: input.ReferenceNumber,
			PaymentDate:     paymentDate,
			ReceivedBy:      receivedBy,
			BalanceBefore:   balanceBefore,
		}
		if err := tx.Create(payment).Error; err != nil {
			return err
		}
		payment.PaymentNumber = fmt.Sprintf("PMT-%08d", payment.ID)

		for _, alloc := range allocations {
			applyAllocation(alloc, paymentDate)
			if alloc.Penalty != nil {
				if err := tx.Save(alloc.Penalty).Error; err != nil {
					return err
				}
			}
			if alloc.Row != nil {
				if err := tx.Save(alloc.Row).Error; err != nil {
					return err
				}
			}
			rec := alloc.record(payment.ID)
			if err := tx.Create(&rec).Error; err != nil {
				return err
			}
			principalTotal = principalTotal.Add(alloc.PrincipalApplied)
			interestTotal = interestTotal.Add(alloc.InterestApplied)
			penaltyTotal = penaltyTotal.Add(alloc.PenaltyApplied)
		}

		loan.TotalPrincipalPaid = loan.TotalPrincipalPaid.Add(principalTotal)
		loan.TotalInterestPaid = loan.TotalInterestPaid.Add(interestTotal)
		loan.TotalPenaltyPaid = loan.TotalPenaltyPaid.Add(penaltyTotal)
		loan.TotalPenaltiesOutstanding = loan.TotalPenaltiesOutstanding.Sub(penaltyTotal)
		loan.OutstandingBalance = loan.OutstandingBalance.Sub(principalTotal)

		payment.PrincipalPortion = principalTotal
		payment.InterestPortion = interestTotal
		payment.PenaltyPortion = penaltyTotal
		payment.BalanceAfter = loan.OutstandingBalance
		if err := tx.Save(payment).Error; err != nil {
			return err
		}

		if loan.OutstandingBalance.IsZero() && loan.TotalPenaltiesOutstanding.IsZero() {
			allSettled := true
			for _, row := range rows {
				if !row.IsSettled() {
					allSettled = false
					break
				}
			}
			if allSettled {
				loan.Status = models.LoanStatusClosed
			}
		}
		if err := tx.Save(loan).Error; err != nil {
			return err
		}
		return AssertLoanConsistency(tx, loan)
	})
	if err != nil {
		if !utils.IsBusinessRuleError(err) {
			config.LogError(logger, "paymentWorkflow.go", "RecordPayment", "Post", loanId, err)
		}
		return nil, err
	}
	return payment, nil
}

// ReversePayment undoes the most recent non-reversed payment by walking its
// allocation records backwards through revertAllocation. Older payments cannot
// be reversed while a newer open payment sits on top of them. The payment
// record stays in the ledger, flagged.
func ReversePayment(ctx context.Context, paymentId int, reason string) (*models.LoanPayment, error) {
	db := config.GetDB()
	logger := config.GetLogger()
	reversedBy, _ := utils.GetUserIdFromContext(ctx)

	if strings.TrimSpace(reason) == "" {
		return nil, utils.NewBusinessRuleError("payment.reverse", "a reversal reason is required")
	}

	var payment *models.LoanPayment
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target models.LoanPayment
		if err := tx.First(&target, paymentId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}

		if err := AcquireLoanPostingLock(tx, target.LoanId); err != nil {
			return err
		}
		defer ReleaseLoanPostingLock(tx, target.LoanId)

		loan, err := models.GetLoanForUpdate(tx, target.LoanId)
		if err != nil {
			return err
		}

		latest, err := models.GetLatestOpenPayment(tx, target.LoanId)
		if err != nil {
			return err
		}
		if latest == nil || latest.ID != target.ID {
			return utils.NewBusinessRuleError("payment.reverse",
				"payment %d is not the latest open payment on loan %s; reverse newer payments first", paymentId, loan.LoanNumber)
		}
		payment = latest

		for i := len(payment.Allocations) - 1; i >= 0; i-- {
			rec := payment.Allocations[i]

			var penalty *models.LoanPenalty
			if rec.LoanPenaltyId != 0 {
				var p models.LoanPenalty
				if err := tx.First(&p, rec.LoanPenaltyId).Error; err != nil {
					return err
				}
				penalty = &p
			}
			var row *models.LoanScheduleRow
			if rec.ScheduleRowId != 0 {
				var r models.LoanScheduleRow
				if err := tx.First(&r, rec.ScheduleRowId).Error; err != nil {
					return err
				}
				row = &r
			}

			revertAllocation(rec, row, penalty)

			if penalty != nil {
				if err := tx.Save(penalty).Error; err != nil {
					return err
				}
			}
			if row != nil {
				if err := tx.Save(row).Error; err != nil {
					return err
				}
			}
		}

		loan.TotalPrincipalPaid = loan.TotalPrincipalPaid.Sub(payment.PrincipalPortion)
		loan.TotalInterestPaid = loan.TotalInterestPaid.Sub(payment.InterestPortion)
		loan.TotalPenaltyPaid = loan.TotalPenaltyPaid.Sub(payment.PenaltyPortion)
		loan.TotalPenaltiesOutstanding = loan.TotalPenaltiesOutstanding.Add(payment.PenaltyPortion)
		loan.OutstandingBalance = loan.OutstandingBalance.Add(payment.PrincipalPortion)
		if loan.Status == models.LoanStatusClosed {
			loan.Status = models.LoanStatusActive
		}
		if err := tx.Save(loan).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		payment.IsReversed = true
		payment.ReversedBy = reversedBy
		payment.ReversedAt = &now
		payment.ReversalReason = reason
		if err := tx.Omit(clause.Associations).Save(payment).Error; err != nil {
			return err
		}
		return AssertLoanConsistency(tx, loan)
	})
	if err != nil {
		if !utils.IsBusinessRuleError(err) {
			config.LogError(logger, "paymentWorkflow.go", "ReversePayment", "Reverse", paymentId, err)
		}
		return nil, err
	}
	return payment, nil
}
