package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"bitbucket.org/mmdatafocus/coop_backend/config"
	"bitbucket.org/mmdatafocus/coop_backend/models"
)

// StatementEntry is one line of a loan statement: a dated event with the
// amount split and the outstanding balance after the event where it applies.
type StatementEntry struct {
	Date        time.Time                `json:"date"`
	EntryType   models.StatementEntryType `json:"entry_type"`
	Description string                   `json:"description"`
	Principal   models.MoneyAmount       `json:"principal"`
	Interest    models.MoneyAmount       `json:"interest"`
	Penalty     models.MoneyAmount       `json:"penalty"`
	Amount      models.MoneyAmount       `json:"amount"`
	Balance     models.MoneyAmount       `json:"balance"`
}

// LoanStatement is the customer-facing account history of one loan.
type LoanStatement struct {
	Loan    *models.Loan     `json:"loan"`
	From    time.Time        `json:"from"`
	To      time.Time        `json:"to"`
	Entries []StatementEntry `json:"entries"`
}

// GetLoanStatement assembles the chronological history of a loan between two
// dates: disbursement, schedule dues, payments (reversals shown as their own
// entries), penalty accruals and waivers. It is a pure read over the ledger;
// nothing is mutated.
func GetLoanStatement(ctx context.Context, loanId int, from, to time.Time) (*LoanStatement, error) {
	db := config.GetDB()

	loan, err := models.GetLoanById(ctx, loanId)
	if err != nil {
		return nil, err
	}

	entries := make([]StatementEntry, 0, len(loan.ScheduleRows)+8)

	if loan.DisbursementDate != nil {
		entries = append(entries, StatementEntry{
			Date:        *loan.DisbursementDate,
			EntryType:   models.StatementEntryDisbursement,
			Description: fmt.Sprintf("Loan %s disbursed", loan.LoanNumber),
			Principal:   loan.PrincipalAmount,
			Amount:      loan.PrincipalAmount,
			Balance:     loan.PrincipalAmount,
		})
	}

	for _, row := range loan.ScheduleRows {
		entries = append(entries, StatementEntry{
			Date:        row.DueDate,
			EntryType:   models.StatementEntryScheduleDue,
			Description: fmt.Sprintf("Installment %d due", row.PaymentNumber),
			Principal:   row.PrincipalDue,
			Interest:    row.InterestDue,
			Amount:      row.TotalDue,
			Balance:     row.EndingBalance,
		})
	}

	var payments []*models.LoanPayment
	if err := db.WithContext(ctx).Where("loan_id = ?", loanId).Order("id").Find(&payments).Error; err != nil {
		return nil, err
	}
	for _, p := range payments {
		entries = append(entries, StatementEntry{
			Date:        p.PaymentDate,
			EntryType:   models.StatementEntryPayment,
			Description: fmt.Sprintf("Payment %s (%s)", p.PaymentNumber, p.Method),
			Principal:   p.PrincipalPortion,
			Interest:    p.InterestPortion,
			Penalty:     p.PenaltyPortion,
			Amount:      p.Amount,
			Balance:     p.BalanceAfter,
		})
		if p.IsReversed && p.ReversedAt != nil {
			entries = append(entries, StatementEntry{
				Date:        *p.ReversedAt,
				EntryType:   models.StatementEntryReversal,
				Description: fmt.Sprintf("Reversal of payment %s: %s", p.PaymentNumber, p.ReversalReason),
				Principal:   -p.PrincipalPortion,
				Interest:    -p.InterestPortion,
				Penalty:     -p.PenaltyPortion,
				Amount:      -p.Amount,
				Balance:     p.BalanceBefore,
			})
		}
	}

	var penalties []*models.LoanPenalty
	if err := db.WithContext(ctx).Where("loan_id = ?", loanId).Order("applied_date, id").Find(&penalties).Error; err != nil {
		return nil, err
	}
	for _, pen := range penalties {
		entries = append(entries, StatementEntry{
			Date:        pen.AppliedDate,
			EntryType:   models.StatementEntryPenalty,
			Description: fmt.Sprintf("Late penalty, %d days overdue", pen.DaysOverdue),
			Penalty:     pen.PenaltyAmount,
			Amount:      pen.PenaltyAmount,
		})
		if pen.WaivedAmount.IsPositive() && pen.WaivedAt != nil {
			entries = append(entries, StatementEntry{
				Date:        *pen.WaivedAt,
				EntryType:   models.StatementEntryPenaltyWaiver,
				Description: fmt.Sprintf("Penalty waiver: %s", pen.WaiverReason),
				Penalty:     -pen.WaivedAmount,
				Amount:      -pen.WaivedAmount,
			})
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Date.Before(entries[j].Date)
	})

	if !from.IsZero() || !to.IsZero() {
		filtered := entries[:0]
		for _, e := range entries {
			if !from.IsZero() && e.Date.Before(from) {
				continue
			}
			if !to.IsZero() && e.Date.After(to) {
				continue
			}
			filtered = append(filtered, e)
		}
		entries = filtered
	}

	return &LoanStatement{Loan: loan, From: from, To: to, Entries: entries}, nil
}
