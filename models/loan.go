package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/mmdatafocus/coop_backend/config"
	"bitbucket.org/mmdatafocus/coop_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Loan is the aggregate root of the lending module. The running totals are a
// denormalized projection of the schedule rows, payments and penalties; they
// are recomputed and asserted after every mutating workflow, inside the same
// transaction.
//
// Invariant: outstanding_balance == principal_amount - total_principal_paid,
// and outstanding_balance >= 0, at all times.
type Loan struct {
	ID            int    `gorm:"primary_key" json:"id"`
	StoreId       string `gorm:"index;not null" json:"store_id" binding:"required"`
	LoanNumber    string `gorm:"size:50;index;not null" json:"loan_number"`
	CustomerId    int    `gorm:"index;not null" json:"customer_id" binding:"required"`
	LoanProductId int    `gorm:"index;not null" json:"loan_product_id" binding:"required"`

	// Financial terms, snapshotted from the product at application time.
	PrincipalAmount     MoneyAmount     `gorm:"type:bigint;not null" json:"principal_amount" binding:"required"`
	MonthlyInterestRate decimal.Decimal `gorm:"type:decimal(10,6);not null" json:"monthly_interest_rate"`
	PenaltyRate         decimal.Decimal `gorm:"type:decimal(10,6);default:0" json:"penalty_rate"`
	ProcessingFeeRate   decimal.Decimal `gorm:"type:decimal(10,6);default:0" json:"processing_fee_rate"`
	TermMonths          int             `gorm:"not null" json:"term_months" binding:"required"`
	PaymentInterval     PaymentInterval `gorm:"type:enum('Weekly','SemiMonthly','Monthly');not null;default:'Monthly'" json:"payment_interval"`

	Purpose               string `gorm:"type:text" json:"purpose"`
	CollateralDescription string `gorm:"type:text" json:"collateral_description"`

	// Computed at disbursement.
	ProcessingFee      MoneyAmount `gorm:"type:bigint;default:0" json:"processing_fee"`
	ServiceFee         MoneyAmount `gorm:"type:bigint;default:0" json:"service_fee"`
	NetProceeds        MoneyAmount `gorm:"type:bigint;default:0" json:"net_proceeds"`
	TotalInterest      MoneyAmount `gorm:"type:bigint;default:0" json:"total_interest"`
	TotalPayable       MoneyAmount `gorm:"type:bigint;default:0" json:"total_payable"`
	AmortizationAmount MoneyAmount `gorm:"type:bigint;default:0" json:"amortization_amount"`

	// Running totals (ledger projection).
	OutstandingBalance        MoneyAmount `gorm:"type:bigint;default:0" json:"outstanding_balance"`
	TotalPrincipalPaid        MoneyAmount `gorm:"type:bigint;default:0" json:"total_principal_paid"`
	TotalInterestPaid         MoneyAmount `gorm:"type:bigint;default:0" json:"total_interest_paid"`
	TotalPenaltyPaid          MoneyAmount `gorm:"type:bigint;default:0" json:"total_penalty_paid"`
	TotalPenaltiesOutstanding MoneyAmount `gorm:"type:bigint;default:0" json:"total_penalties_outstanding"`

	ApplicationDate  time.Time  `gorm:"not null" json:"application_date"`
	ApprovalDate     *time.Time `json:"approval_date"`
	DisbursementDate *time.Time `json:"disbursement_date"`
	FirstPaymentDate *time.Time `json:"first_payment_date"`
	MaturityDate     *time.Time `json:"maturity_date"`

	Status                 LoanStatus `gorm:"type:enum('Pending','Under Review','Approved','Rejected','Disbursed','Active','Closed','Written Off');not null;default:'Pending'" json:"status"`
	ApprovedBy             int        `gorm:"default:0" json:"approved_by"`
	RejectionReason        string     `gorm:"type:text" json:"rejection_reason"`
	WriteOffReason         string     `gorm:"type:text" json:"write_off_reason"`
	WriteOffDate           *time.Time `json:"write_off_date"`
	RestructuredFromLoanId *int       `gorm:"index" json:"restructured_from_loan_id"`

	ScheduleRows []LoanScheduleRow `gorm:"foreignKey:LoanId" json:"schedule_rows"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewLoanApplication is the request body for applying for a loan.
// Amounts cross the boundary as integer centavos.
type NewLoanApplication struct {
	CustomerId             int             `json:"customer_id" binding:"required"`
	LoanProductId          int             `json:"loan_product_id" binding:"required"`
	PrincipalAmount        int64           `json:"principal_amount" binding:"required,gt=0"`
	TermMonths             int             `json:"term_months" binding:"required,gt=0"`
	PaymentInterval        PaymentInterval `json:"payment_interval" binding:"required,payment_interval"`
	Purpose                string          `json:"purpose"`
	CollateralDescription  string          `json:"collateral_description"`
	RestructuredFromLoanId *int            `json:"restructured_from_loan_id"`
}

// EditLoanApplication carries the fields a pending application may still change.
// Financial terms are immutable once applied.
type EditLoanApplication struct {
	Purpose               *string `json:"purpose"`
	CollateralDescription *string `json:"collateral_description"`
}

func GetLoanById(ctx context.Context, loanId int) (*Loan, error) {
	db := config.GetDB()
	var loan Loan
	err := db.WithContext(ctx).
		Preload("ScheduleRows", func(db *gorm.DB) *gorm.DB {
			return db.Order("payment_number")
		}).
		First(&loan, loanId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &loan, nil
}

// GetLoanForUpdate loads the loan row under a row lock. Every mutating workflow
// goes through this so concurrent operations on the same loan serialize.
func GetLoanForUpdate(tx *gorm.DB, loanId int) (*Loan, error) {
	var loan Loan
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&loan, loanId).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &loan, nil
}

// ListLoansByStatus returns the store's loans in the given statuses. A page
// number of 1 or higher returns one config.SearchLimit sized page; zero
// returns everything.
func ListLoansByStatus(ctx context.Context, page int, statuses ...LoanStatus) ([]*Loan, error) {
	db := config.GetDB()
	var loans []*Loan
	query := db.WithContext(ctx).Where("status IN ?", statuses).Order("id")
	if page > 0 {
		query = query.Offset((page - 1) * config.SearchLimit).Limit(config.SearchLimit)
	}
	if err := query.Find(&loans).Error; err != nil {
		return nil, err
	}
	return loans, nil
}

// NextLoanNumber builds the display number for a newly created loan. The
// per-store prefix is cached in redis with a plain default; the sequence is the
// loan's own id, so numbers are unique without a counter table.
func NextLoanNumber(storeId string, loanId int) string {
	prefix := "LN"
	var cached string
	redisKey := "loanNumberPrefix:" + storeId
	if exists, err := config.GetRedisObject(redisKey, &cached); err == nil && exists && cached != "" {
		prefix = cached
	} else {
		_ = config.SetRedisObject(redisKey, prefix, 0)
	}
	return fmt.Sprintf("%s-%06d", prefix, loanId)
}
