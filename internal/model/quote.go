package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuoteStatus enum constants
const (
	QuoteStatusDraft       = "Draft"
	QuoteStatusSent        = "Sent"
	QuoteStatusUnderReview = "Under Review"
	QuoteStatusApproved    = "Approved"
	QuoteStatusRejected    = "Rejected"
	QuoteStatusConverted   = "Converted"
)

const DefaultCurrency = "USD"

// Quote is a priced sales offer. Subtotal, DiscountTotal, TaxTotal and
// Total are derived by the pricing engine and never written from input.
type Quote struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID       `gorm:"type:uuid;not null;index" json:"organization_id"`
	Number         string          `gorm:"type:varchar(50);not null;index" json:"number"`
	CustomerID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"customer_id"`
	Customer       *Partner        `gorm:"foreignKey:CustomerID" json:"customer,omitempty"`
	OpportunityID  *uuid.UUID      `gorm:"type:uuid" json:"opportunity_id"`
	OwnerID        *uuid.UUID      `gorm:"type:uuid;index" json:"owner_id"`
	Owner          *User           `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Status         string          `gorm:"type:varchar(20);not null;default:'Draft';index" json:"status"`
	ValidUntil     *time.Time      `gorm:"type:date" json:"valid_until"`
	Subtotal       decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"subtotal"`
	DiscountTotal  decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"discount_total"`
	TaxTotal       decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"tax_total"`
	Total          decimal.Decimal `gorm:"type:decimal(14,2);not null;default:0" json:"total"`
	Currency       string          `gorm:"type:varchar(10);not null;default:'USD'" json:"currency"`
	PaymentTerms   string          `gorm:"type:varchar(255)" json:"payment_terms"`
	DeliveryTerms  string          `gorm:"type:varchar(255)" json:"delivery_terms"`
	Notes          string          `gorm:"type:text" json:"notes"`
	Lines          []QuoteLine     `gorm:"foreignKey:QuoteID;constraint:OnDelete:CASCADE" json:"lines"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// QuoteLine is owned by its Quote and replaced wholesale on update.
type QuoteLine struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	QuoteID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"quote_id"`
	ProductID       *uuid.UUID      `gorm:"type:uuid;index" json:"product_id"`
	Product         *Product        `gorm:"foreignKey:ProductID" json:"-"`
	Position        int             `gorm:"not null;default:0" json:"position"`
	Name            string          `gorm:"type:varchar(255);not null" json:"name"`
	Quantity        decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"quantity"`
	UnitPrice       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	DiscountPercent decimal.Decimal `gorm:"type:decimal(6,2);not null;default:0" json:"discount_percent"`
	TaxPercent      decimal.Decimal `gorm:"type:decimal(6,2);not null;default:0" json:"tax_percent"`
}
