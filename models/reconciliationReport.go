package models

import "time"

// Drift detection output for the loan ledger (nightly/admin-triggered).
type ReconciliationReport struct {
	ID            int       `gorm:"primary_key" json:"id"`
	StoreId       string    `gorm:"index;not null" json:"store_id"`
	CheckType     string    `gorm:"size:50;index;not null" json:"check_type"`  // e.g. LOAN_PRINCIPAL, LOAN_BALANCE, LOAN_PENALTY
	EntityType    string    `gorm:"size:50;index;not null" json:"entity_type"` // e.g. Loan
	EntityId      int       `gorm:"index;not null" json:"entity_id"`
	Details       string    `gorm:"type:text" json:"details"` // human-readable mismatch detail
	CorrelationId string    `gorm:"size:64;index" json:"correlation_id"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
}
