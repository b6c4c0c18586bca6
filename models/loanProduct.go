package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/coop_backend/config"
	"bitbucket.org/mmdatafocus/coop_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// LoanProduct is an administrator-defined template for loans. Its values are
// copied onto the loan at application time and never re-read afterwards, so a
// later product change cannot alter a running loan.
type LoanProduct struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	StoreId             string          `gorm:"index;not null" json:"store_id" binding:"required"`
	Code                string          `gorm:"size:50;not null;uniqueIndex:uidx_loan_product_code" json:"code" binding:"required"`
	Name                string          `gorm:"size:100;not null" json:"name" binding:"required"`
	MonthlyInterestRate decimal.Decimal `gorm:"type:decimal(10,6);not null" json:"monthly_interest_rate" binding:"required"`
	InterestMethod      InterestMethod  `gorm:"type:enum('Diminishing');not null;default:'Diminishing'" json:"interest_method"`
	MaxTermMonths       int             `gorm:"not null" json:"max_term_months" binding:"required"`
	MinPrincipal        MoneyAmount     `gorm:"type:bigint;not null" json:"min_principal" binding:"required"`
	MaxPrincipal        MoneyAmount     `gorm:"type:bigint;not null" json:"max_principal" binding:"required"`
	ProcessingFeeRate   decimal.Decimal `gorm:"type:decimal(10,6);default:0" json:"processing_fee_rate"`
	ServiceFee          MoneyAmount     `gorm:"type:bigint;default:0" json:"service_fee"`
	PenaltyRate         decimal.Decimal `gorm:"type:decimal(10,6);default:0" json:"penalty_rate"`
	IsActive            *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewLoanProduct struct {
	Code                string          `json:"code" binding:"required"`
	Name                string          `json:"name" binding:"required"`
	MonthlyInterestRate decimal.Decimal `json:"monthly_interest_rate" binding:"required"`
	MaxTermMonths       int             `json:"max_term_months" binding:"required,gt=0"`
	MinPrincipal        int64           `json:"min_principal" binding:"required,gt=0"`
	MaxPrincipal        int64           `json:"max_principal" binding:"required,gt=0"`
	ProcessingFeeRate   decimal.Decimal `json:"processing_fee_rate"`
	ServiceFee          int64           `json:"service_fee"`
	PenaltyRate         decimal.Decimal `json:"penalty_rate"`
}

func CreateLoanProduct(ctx context.Context, storeId string, input NewLoanProduct) (*LoanProduct, error) {
	db := config.GetDB()
	product := LoanProduct{
		StoreId:             storeId,
		Code:                input.Code,
		Name:                input.Name,
		MonthlyInterestRate: input.MonthlyInterestRate,
		InterestMethod:      InterestMethodDiminishing,
		MaxTermMonths:       input.MaxTermMonths,
		MinPrincipal:        NewMoneyFromCentavos(input.MinPrincipal),
		MaxPrincipal:        NewMoneyFromCentavos(input.MaxPrincipal),
		ProcessingFeeRate:   input.ProcessingFeeRate,
		ServiceFee:          NewMoneyFromCentavos(input.ServiceFee),
		PenaltyRate:         input.PenaltyRate,
	}
	if err := db.WithContext(ctx).Create(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func GetLoanProductById(ctx context.Context, productId int) (*LoanProduct, error) {
	db := config.GetDB()
	var product LoanProduct
	if err := db.WithContext(ctx).First(&product, productId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &product, nil
}

func ListLoanProducts(ctx context.Context) ([]*LoanProduct, error) {
	db := config.GetDB()
	var products []*LoanProduct
	if err := db.WithContext(ctx).Order("code").Find(&products).Error; err != nil {
		return nil, err
	}
	return products, nil
}
