package model

import (
	"time"

	"github.com/google/uuid"
)

// Audited entities
const (
	EntityQuote       = "Quote"
	EntityPricingRule = "PricingRule"
	EntityPartner     = "Partner"
)

// Audit actions. Approval decisions are recorded as
// "approved_<role>" / "rejected_<role>".
const (
	ActionCreated         = "created"
	ActionUpdated         = "updated"
	ActionDeleted         = "deleted"
	ActionSent            = "sent"
	ActionConverted       = "converted"
	ActionRequestApproval = "request_approval"
	ActionResubmitted     = "resubmitted"
	ActionApprovedPrefix  = "approved_"
	ActionRejectedPrefix  = "rejected_"
)

// AuditLog tracks Who, What, and When for critical changes
type AuditLog struct {
	ID             uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID  `gorm:"type:uuid;not null;index:idx_audit_logs_org_entity" json:"organization_id"`
	Entity         string     `gorm:"type:varchar(50);not null;index:idx_audit_logs_org_entity" json:"entity"`
	EntityID       string     `gorm:"type:varchar(50);index" json:"entity_id"`
	Action         string     `gorm:"type:varchar(50);not null;index" json:"action"`
	Field          string     `gorm:"type:varchar(120)" json:"field,omitempty"`
	OldValue       string     `gorm:"type:text" json:"old_value,omitempty"`
	NewValue       string     `gorm:"type:text" json:"new_value,omitempty"`
	UserID         *uuid.UUID `gorm:"type:uuid;index" json:"user_id"` // nil for automated actors
	User           *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	CreatedAt      time.Time  `gorm:"index" json:"created_at"`
}
