package models

import (
	"time"

	"gorm.io/gorm"
)

// LoanScheduleRow is one amortization period of a loan, ordered by
// payment_number (1-based). Rows are created in one batch at disbursement and
// mutated only by the payment and penalty workflows; they are never reordered.
//
// Invariants: ending_balance == beginning_balance - principal_due; row N's
// beginning_balance equals row N-1's ending_balance; the final row ends at
// exactly zero (rounding remainder is absorbed there).
type LoanScheduleRow struct {
	ID            int       `gorm:"primary_key" json:"id"`
	StoreId       string    `gorm:"index;not null" json:"store_id"`
	LoanId        int       `gorm:"index;not null;uniqueIndex:uidx_schedule_loan_row" json:"loan_id"`
	PaymentNumber int       `gorm:"not null;uniqueIndex:uidx_schedule_loan_row" json:"payment_number"`
	DueDate       time.Time `gorm:"index;not null" json:"due_date"`

	BeginningBalance MoneyAmount `gorm:"type:bigint;not null" json:"beginning_balance"`
	PrincipalDue     MoneyAmount `gorm:"type:bigint;not null" json:"principal_due"`
	InterestDue      MoneyAmount `gorm:"type:bigint;not null" json:"interest_due"`
	TotalDue         MoneyAmount `gorm:"type:bigint;not null" json:"total_due"`
	EndingBalance    MoneyAmount `gorm:"type:bigint;not null" json:"ending_balance"`

	PrincipalPaid MoneyAmount `gorm:"type:bigint;default:0" json:"principal_paid"`
	InterestPaid  MoneyAmount `gorm:"type:bigint;default:0" json:"interest_paid"`
	PenaltyPaid   MoneyAmount `gorm:"type:bigint;default:0" json:"penalty_paid"`
	TotalPaid     MoneyAmount `gorm:"type:bigint;default:0" json:"total_paid"`

	PaidDate *time.Time        `json:"paid_date"`
	Status   ScheduleRowStatus `gorm:"type:enum('Pending','Partial','Paid','Overdue','Waived');not null;default:'Pending'" json:"status"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (r *LoanScheduleRow) OutstandingInterest() MoneyAmount {
	return r.InterestDue.Sub(r.InterestPaid)
}

func (r *LoanScheduleRow) OutstandingPrincipal() MoneyAmount {
	return r.PrincipalDue.Sub(r.PrincipalPaid)
}

// OutstandingDue is the unpaid interest+principal of the row, the base on
// which late penalties accrue.
func (r *LoanScheduleRow) OutstandingDue() MoneyAmount {
	return r.OutstandingInterest().Add(r.OutstandingPrincipal())
}

func (r *LoanScheduleRow) IsSettled() bool {
	return r.Status == ScheduleRowStatusPaid || r.Status == ScheduleRowStatusWaived
}

// GetScheduleRowsForUpdate loads a loan's schedule rows in payment order under
// the caller's transaction. The loan row itself must already be locked.
func GetScheduleRowsForUpdate(tx *gorm.DB, loanId int) ([]*LoanScheduleRow, error) {
	var rows []*LoanScheduleRow
	if err := tx.Where("loan_id = ?", loanId).Order("payment_number").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
