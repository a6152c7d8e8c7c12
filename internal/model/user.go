package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User is the acting identity. Role holds the role name (Sales, Manager,
// Finance, Admin); credentials live with the external identity provider.
type User struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizationID uuid.UUID      `gorm:"type:uuid;index" json:"organization_id"`
	Username       string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"username"`
	Email          string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Role           string         `gorm:"type:varchar(50);not null" json:"role"`
	IsActive       bool           `gorm:"default:true" json:"is_active"`
	CreatedAt      time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"-"` // GORM soft delete
}
