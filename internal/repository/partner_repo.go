package repository

import (
	"context"

	"crm/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PartnerRepository interface {
	Create(ctx context.Context, partner *model.Partner) error
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*model.Partner, error)
	// FindFirst returns the oldest partner of the organization.
	FindFirst(ctx context.Context, orgID uuid.UUID) (*model.Partner, error)
}

type partnerRepository struct {
	db *gorm.DB
}

func NewPartnerRepository(db *gorm.DB) PartnerRepository {
	return &partnerRepository{db: db}
}

func (r *partnerRepository) Create(ctx context.Context, partner *model.Partner) error {
	return GetDB(ctx, r.db).Create(partner).Error
}

func (r *partnerRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*model.Partner, error) {
	var partner model.Partner
	if err := GetDB(ctx, r.db).Where("organization_id = ?", orgID).First(&partner, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &partner, nil
}

func (r *partnerRepository) FindFirst(ctx context.Context, orgID uuid.UUID) (*model.Partner, error) {
	var partner model.Partner
	if err := GetDB(ctx, r.db).Where("organization_id = ?", orgID).Order("created_at ASC").First(&partner).Error; err != nil {
		return nil, err
	}
	return &partner, nil
}
