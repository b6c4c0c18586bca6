package models

import (
	"time"

	"gorm.io/gorm"
)

// LoanPayment is an immutable ledger entry: one record per tendered payment,
// carrying the aggregate split across however many schedule rows it touched.
// The ledger is append-only; a mis-recorded payment is corrected by flagging it
// is_reversed and restoring the touched rows, never by deletion.
type LoanPayment struct {
	ID            int    `gorm:"primary_key" json:"id"`
	StoreId       string `gorm:"index;not null" json:"store_id"`
	LoanId        int    `gorm:"index;not null" json:"loan_id"`
	PaymentNumber string `gorm:"size:64;index;not null" json:"payment_number"`

	Amount           MoneyAmount `gorm:"type:bigint;not null" json:"amount"`
	PrincipalPortion MoneyAmount `gorm:"type:bigint;default:0" json:"principal_portion"`
	InterestPortion  MoneyAmount `gorm:"type:bigint;default:0" json:"interest_portion"`
	PenaltyPortion   MoneyAmount `gorm:"type:bigint;default:0" json:"penalty_portion"`

	BalanceBefore MoneyAmount `gorm:"type:bigint;not null" json:"balance_before"`
	BalanceAfter  MoneyAmount `gorm:"type:bigint;not null" json:"balance_after"`

	Method          PaymentMethod `gorm:"type:enum('Cash','Check','Bank Transfer','Salary Deduction');not null;default:'Cash'" json:"method"`
	ReferenceNumber string        `gorm:"size:100" json:"reference_number"`
	PaymentDate     time.Time     `gorm:"index;not null" json:"payment_date"`
	ReceivedBy      int           `gorm:"default:0" json:"received_by"`

	IsReversed     bool       `gorm:"index;default:false" json:"is_reversed"`
	ReversedBy     int        `gorm:"default:0" json:"reversed_by"`
	ReversedAt     *time.Time `json:"reversed_at"`
	ReversalReason string     `gorm:"type:text" json:"reversal_reason"`

	Allocations []LoanPaymentAllocation `gorm:"foreignKey:LoanPaymentId" json:"allocations"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// LoanPaymentAllocation records how much of a payment landed on one schedule
// row (and, for penalty portions, on which penalty). Reversal walks these in
// reverse order to restore row state exactly; the *Before fields snapshot the
// row as it was when this allocation first touched it.
type LoanPaymentAllocation struct {
	ID            int `gorm:"primary_key" json:"id"`
	LoanPaymentId int `gorm:"index;not null" json:"loan_payment_id"`
	ScheduleRowId int `gorm:"index;not null" json:"schedule_row_id"`
	LoanPenaltyId int `gorm:"index;default:0" json:"loan_penalty_id"`

	PrincipalApplied MoneyAmount `gorm:"type:bigint;default:0" json:"principal_applied"`
	InterestApplied  MoneyAmount `gorm:"type:bigint;default:0" json:"interest_applied"`
	PenaltyApplied   MoneyAmount `gorm:"type:bigint;default:0" json:"penalty_applied"`

	RowStatusBefore ScheduleRowStatus `gorm:"type:enum('Pending','Partial','Paid','Overdue','Waived');not null" json:"row_status_before"`
	PaidDateBefore  *time.Time        `json:"paid_date_before"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// GetLatestOpenPayment returns the most recent non-reversed payment on a loan,
// or nil if there is none.
func GetLatestOpenPayment(tx *gorm.DB, loanId int) (*LoanPayment, error) {
	var payments []*LoanPayment
	err := tx.Where("loan_id = ? AND is_reversed = ?", loanId, false).
		Order("id DESC").
		Limit(1).
		Preload("Allocations", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, nil
	}
	return payments[0], nil
}
