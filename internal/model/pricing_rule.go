package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PricingRule is a percentage discount owned by an organization. Kind is
// one of category, customer, volume; Target is read according to Kind.
type PricingRule struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID       `gorm:"type:uuid;not null;index" json:"organization_id"`
	Name           string          `gorm:"type:varchar(255);not null" json:"name"`
	Kind           string          `gorm:"type:varchar(20);not null;index" json:"kind"`
	Target         string          `gorm:"type:varchar(255);not null" json:"target"`
	Percent        decimal.Decimal `gorm:"type:decimal(6,2);not null" json:"percent"` // 8 = 8%
	Description    string          `gorm:"type:text" json:"description"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}
