package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LoanPenalty is a late charge accrued against one schedule row for one
// as-of date. The unique index on (schedule_row_id, applied_date) is what makes
// re-running the accrual for the same day a no-op instead of a double charge.
type LoanPenalty struct {
	ID            int       `gorm:"primary_key" json:"id"`
	StoreId       string    `gorm:"index;not null" json:"store_id"`
	LoanId        int       `gorm:"index;not null" json:"loan_id"`
	ScheduleRowId int       `gorm:"not null;uniqueIndex:uidx_penalty_row_date" json:"schedule_row_id"`
	AppliedDate   time.Time `gorm:"type:date;not null;uniqueIndex:uidx_penalty_row_date" json:"applied_date"`

	PenaltyRate   decimal.Decimal `gorm:"type:decimal(10,6);not null" json:"penalty_rate"`
	DaysOverdue   int             `gorm:"not null" json:"days_overdue"`
	PenaltyAmount MoneyAmount     `gorm:"type:bigint;not null" json:"penalty_amount"`
	WaivedAmount  MoneyAmount     `gorm:"type:bigint;default:0" json:"waived_amount"`
	PaidAmount    MoneyAmount     `gorm:"type:bigint;default:0" json:"paid_amount"`
	IsPaid        bool            `gorm:"default:false" json:"is_paid"`

	WaivedBy     int        `gorm:"default:0" json:"waived_by"`
	WaivedAt     *time.Time `json:"waived_at"`
	WaiverReason string     `gorm:"type:text" json:"waiver_reason"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NetPenalty is the charge after waivers.
func (p *LoanPenalty) NetPenalty() MoneyAmount {
	return p.PenaltyAmount.Sub(p.WaivedAmount)
}

// Outstanding is what is still collectible on this penalty.
func (p *LoanPenalty) Outstanding() MoneyAmount {
	return p.NetPenalty().Sub(p.PaidAmount)
}

// GetOpenPenaltiesForUpdate loads the loan's unsettled penalties oldest first,
// under the caller's transaction.
func GetOpenPenaltiesForUpdate(tx *gorm.DB, loanId int) ([]*LoanPenalty, error) {
	var penalties []*LoanPenalty
	err := tx.Where("loan_id = ? AND is_paid = ?", loanId, false).
		Order("applied_date, id").
		Find(&penalties).Error
	if err != nil {
		return nil, err
	}
	return penalties, nil
}
