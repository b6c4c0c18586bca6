package models

import (
	"context"
	"errors"
	"time"

	"bitbucket.org/mmdatafocus/coop_backend/config"
	"bitbucket.org/mmdatafocus/coop_backend/utils"
	"gorm.io/gorm"
)

// Customer is a cooperative member. Membership administration lives in its own
// module; the loan engine only needs an identity to attribute loans to.
type Customer struct {
	ID           int       `gorm:"primary_key" json:"id"`
	StoreId      string    `gorm:"index;not null" json:"store_id" binding:"required"`
	MemberNumber string    `gorm:"size:50;index;not null" json:"member_number" binding:"required"`
	Name         string    `gorm:"size:100;not null" json:"name" binding:"required"`
	Phone        string    `gorm:"size:20" json:"phone"`
	IsActive     *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func GetCustomerById(ctx context.Context, customerId int) (*Customer, error) {
	db := config.GetDB()
	var customer Customer
	if err := db.WithContext(ctx).First(&customer, customerId).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.ErrorRecordNotFound
		}
		return nil, err
	}
	return &customer, nil
}
