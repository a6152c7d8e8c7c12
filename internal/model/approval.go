package model

import (
	"time"

	"github.com/google/uuid"
)

// ApprovalInstance is the single approval workflow attached to a quote.
// It is reused across resubmissions; its steps are not.
type ApprovalInstance struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID      `gorm:"type:uuid;not null;index" json:"organization_id"`
	QuoteID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex" json:"quote_id"`
	Quote          *Quote         `gorm:"foreignKey:QuoteID" json:"-"`
	Status         string         `gorm:"type:varchar(20);not null;default:'Waiting';index" json:"status"`
	Steps          []ApprovalStep `gorm:"foreignKey:InstanceID;constraint:OnDelete:CASCADE" json:"steps"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// ApprovalStep is one role's checkpoint inside an instance.
type ApprovalStep struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	InstanceID uuid.UUID  `gorm:"type:uuid;not null;index" json:"instance_id"`
	Position   int        `gorm:"not null" json:"position"`
	Role       string     `gorm:"type:varchar(20);not null;index" json:"role"` // Sales, Manager, Finance
	Status     string     `gorm:"type:varchar(20);not null;default:'Waiting';index" json:"status"`
	Comment    string     `gorm:"type:text" json:"comment"`
	ActedBy    *uuid.UUID `gorm:"type:uuid" json:"acted_by"`
	UpdatedAt  time.Time  `json:"updated_at"`
}
