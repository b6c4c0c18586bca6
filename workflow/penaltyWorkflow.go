package workflow

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/coop_backend/config"
	"bitbucket.org/mmdatafocus/coop_backend/models"
	"bitbucket.org/mmdatafocus/coop_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

var thirtyDays = decimal.NewFromInt(30)

// penaltyForRow prorates the loan's monthly penalty rate by days overdue over
// a 30-day month and applies it to the row's unpaid due.
func penaltyForRow(outstandingDue models.MoneyAmount, rate decimal.Decimal, daysOverdue int) models.MoneyAmount {
	prorated := rate.Mul(decimal.NewFromInt(int64(daysOverdue))).Div(thirtyDays)
	return outstandingDue.MulRate(prorated)
}

// planPenalty decides whether a schedule row earns a penalty as of asOfDate
// and returns the record to charge, or nil when nothing is due: the row is
// settled, not yet strictly past due, already charged for this date, or the
// prorated amount rounds to zero. asOfDate must be truncated to midnight UTC.
func planPenalty(row *models.LoanScheduleRow, loan *models.Loan, asOfDate time.Time, alreadyCharged bool) *models.LoanPenalty {
	if alreadyCharged || row.IsSettled() || !row.DueDate.Before(asOfDate) {
		return nil
	}
	outstanding := row.OutstandingDue()
	if !outstanding.IsPositive() {
		return nil
	}
	daysOverdue := int(asOfDate.Sub(row.DueDate).Hours() / 24)
	amount := penaltyForRow(outstanding, loan.PenaltyRate, daysOverdue)
	if !amount.IsPositive() {
		return nil
	}
	return &models.LoanPenalty{
		StoreId:       loan.StoreId,
		LoanId:        loan.ID,
		ScheduleRowId: row.ID,
		AppliedDate:   asOfDate,
		PenaltyRate:   loan.PenaltyRate,
		DaysOverdue:   daysOverdue,
		PenaltyAmount: amount,
	}
}

// AccruePenalties charges late penalties on every schedule row of the loan
// that is past due as of asOf. One penalty record per row per as-of date; the
// unique index makes the whole sweep idempotent, so the nightly job can be
// re-run for the same day without double charging.
func AccruePenalties(ctx context.Context, loanId int, asOf time.Time) ([]*models.LoanPenalty, error) {
	db := config.GetDB()
	logger := config.GetLogger()

	asOfDate := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)

	var created []*models.LoanPenalty
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
			return illegalTransition("penalty.accrue", loan, models.LoanStatusActive, models.LoanStatusDisbursed)
		}
		if loan.PenaltyRate.IsZero() {
			return nil
		}

		rows, err := models.GetScheduleRowsForUpdate(tx, loanId)
		if err != nil {
			return err
		}

		var accrued models.MoneyAmount
		for _, row := range rows {
			var existing int64
			err := tx.Model(&models.LoanPenalty{}).
				Where("schedule_row_id = ? AND applied_date = ?", row.ID, asOfDate).
				Count(&existing).Error
			if err != nil {
				return err
			}

			penalty := planPenalty(row, loan, asOfDate, existing > 0)
			if penalty == nil {
				continue
			}
			if err := tx.Create(penalty).Error; err != nil {
				return err
			}
			created = append(created, penalty)
			accrued = accrued.Add(penalty.PenaltyAmount)

			if row.Status != models.ScheduleRowStatusOverdue {
				row.Status = models.ScheduleRowStatusOverdue
				if err := tx.Save(row).Error; err != nil {
					return err
				}
			}
		}

		if accrued.IsZero() {
			return nil
		}
		loan.TotalPenaltiesOutstanding = loan.TotalPenaltiesOutstanding.Add(accrued)
		if err := tx.Save(loan).Error; err != nil {
			return err
		}
		return AssertLoanConsistency(tx, loan)
	})
	if err != nil {
		if !utils.IsBusinessRuleError(err) {
			config.LogError(logger, "penaltyWorkflow.go", "AccruePenalties", "Accrue", loanId, err)
		}
		return nil, err
	}
	return created, nil
}

// WaivePenalty forgives part or all of a penalty. The waiver is bounded by
// what has not already been waived; it never touches the paid amount.
func WaivePenalty(ctx context.Context, penaltyId int, waiveCentavos int64, reason string) (*models.LoanPenalty, error) {
	db := config.GetDB()
	logger := config.GetLogger()
	waivedBy, _ := utils.GetUserIdFromContext(ctx)

	if strings.TrimSpace(reason) == "" {
		return nil, utils.NewBusinessRuleError("penalty.waive", "a waiver reason is required")
	}
	waive := models.NewMoneyFromCentavos(waiveCentavos)
	if !waive.IsPositive() {
		return nil, utils.NewBusinessRuleError("penalty.waive", "waiver amount must be positive")
	}

	var penalty *models.LoanPenalty
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p models.LoanPenalty
		if err := tx.First(&p, penaltyId).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.ErrorRecordNotFound
			}
			return err
		}

		if err := AcquireLoanPostingLock(tx, p.LoanId); err != nil {
			return err
		}
		defer ReleaseLoanPostingLock(tx, p.LoanId)

		loan, err := models.GetLoanForUpdate(tx, p.LoanId)
		if err != nil {
			return err
		}
		if err := tx.First(&p, penaltyId).Error; err != nil {
			return err
		}

		waivable := p.PenaltyAmount.Sub(p.WaivedAmount).Sub(p.PaidAmount)
		if waive > waivable {
			return utils.NewBusinessRuleError("penalty.waive",
				"waiver %s exceeds the %s still waivable on penalty %d", waive, waivable, p.ID)
		}

		now := time.Now().UTC()
		p.WaivedAmount = p.WaivedAmount.Add(waive)
		p.WaivedBy = waivedBy
		p.WaivedAt = &now
		p.WaiverReason = reason
		if p.Outstanding().IsZero() {
			p.IsPaid = true
		}
		if err := tx.Save(&p).Error; err != nil {
			return err
		}

		loan.TotalPenaltiesOutstanding = loan.TotalPenaltiesOutstanding.Sub(waive)
		if err := tx.Save(loan).Error; err != nil {
			return err
		}
		penalty = &p
		return AssertLoanConsistency(tx, loan)
	})
	if err != nil {
		if !utils.IsBusinessRuleError(err) {
			config.LogError(logger, "penaltyWorkflow.go", "WaivePenalty", "Waive", penaltyId, err)
		}
		return nil, err
	}
	return penalty, nil
}
