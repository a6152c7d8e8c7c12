package model

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// assignID gives a new row a random UUID unless the caller already set one.
func assignID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}

func (o *Organization) BeforeCreate(tx *gorm.DB) error     { assignID(&o.ID); return nil }
func (n *NumberRange) BeforeCreate(tx *gorm.DB) error      { assignID(&n.ID); return nil }
func (u *User) BeforeCreate(tx *gorm.DB) error             { assignID(&u.ID); return nil }
func (r *Role) BeforeCreate(tx *gorm.DB) error             { assignID(&r.ID); return nil }
func (p *Permission) BeforeCreate(tx *gorm.DB) error       { assignID(&p.ID); return nil }
func (p *Partner) BeforeCreate(tx *gorm.DB) error          { assignID(&p.ID); return nil }
func (p *Product) BeforeCreate(tx *gorm.DB) error          { assignID(&p.ID); return nil }
func (p *PricingRule) BeforeCreate(tx *gorm.DB) error      { assignID(&p.ID); return nil }
func (q *Quote) BeforeCreate(tx *gorm.DB) error            { assignID(&q.ID); return nil }
func (l *QuoteLine) BeforeCreate(tx *gorm.DB) error        { assignID(&l.ID); return nil }
func (a *ApprovalInstance) BeforeCreate(tx *gorm.DB) error { assignID(&a.ID); return nil }
func (s *ApprovalStep) BeforeCreate(tx *gorm.DB) error     { assignID(&s.ID); return nil }
func (a *AuditLog) BeforeCreate(tx *gorm.DB) error         { assignID(&a.ID); return nil }

// All lists every persisted model in migration order.
func All() []interface{} {
	return []interface{}{
		&Organization{},
		&NumberRange{},
		&User{},
		&Role{},
		&Permission{},
		&Partner{},
		&Product{},
		&PricingRule{},
		&Quote{},
		&QuoteLine{},
		&ApprovalInstance{},
		&ApprovalStep{},
		&AuditLog{},
	}
}
