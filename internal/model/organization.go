package model

import (
	"time"

	"github.com/google/uuid"
)

// Document types that draw numbers from a NumberRange
const (
	DocTypeQuote   = "QUOTE"
	DocTypeOrder   = "ORDER"
	DocTypeInvoice = "INVOICE"
)

// Organization is the tenant boundary; every business row belongs to one.
type Organization struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NumberRange is a per-organization, per-document-type counter.
// Current is the next value to hand out.
type NumberRange struct {
	ID             uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_number_ranges_org_doc" json:"organization_id"`
	DocType        string    `gorm:"type:varchar(20);not null;uniqueIndex:idx_number_ranges_org_doc" json:"doc_type"` // QUOTE, ORDER, INVOICE
	Prefix         string    `gorm:"type:varchar(20);not null;default:'Q-'" json:"prefix"`
	Current        int64     `gorm:"not null;default:1" json:"current"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}
