package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// PartnerType enum constants
const (
	PartnerTypeCustomer = "CUSTOMER"
	PartnerTypeSupplier = "SUPPLIER"
	PartnerTypeBoth     = "BOTH"
)

// DefaultCustomerName names the placeholder partner created when a quote
// arrives without a customer in an organization that has none.
const DefaultCustomerName = "Default Customer"

// Partner represents a customer, supplier, or both. Group is the customer
// group that customer pricing rules target.
type Partner struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID      `gorm:"type:uuid;not null;index" json:"organization_id"`
	Name           string         `gorm:"type:varchar(255);not null" json:"name"`
	Type           string         `gorm:"type:varchar(20);not null;default:'CUSTOMER';index" json:"type"`
	Group          string         `gorm:"column:customer_group;type:varchar(100);index" json:"group"`
	Email          string         `gorm:"type:varchar(255)" json:"email"`
	Phone          string         `gorm:"type:varchar(50)" json:"phone"`
	IsActive       bool           `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"`
}
