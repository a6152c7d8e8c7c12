package repository

import (
	"context"

	"crm/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PricingRuleRepository interface {
	Create(ctx context.Context, rule *model.PricingRule) error
	Update(ctx context.Context, rule *model.PricingRule) error
	Delete(ctx context.Context, orgID, id uuid.UUID) error
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*model.PricingRule, error)
	// ListByOrganization returns the organization's full catalog in creation order.
	ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]model.PricingRule, error)
	List(ctx context.Context, orgID uuid.UUID, kind string, page, limit int) ([]model.PricingRule, int64, error)
}

type pricingRuleRepository struct {
	db *gorm.DB
}

func NewPricingRuleRepository(db *gorm.DB) PricingRuleRepository {
	return &pricingRuleRepository{db: db}
}

func (r *pricingRuleRepository) Create(ctx context.Context, rule *model.PricingRule) error {
	return GetDB(ctx, r.db).Create(rule).Error
}

func (r *pricingRuleRepository) Update(ctx context.Context, rule *model.PricingRule) error {
	return GetDB(ctx, r.db).Save(rule).Error
}

func (r *pricingRuleRepository) Delete(ctx context.Context, orgID, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("organization_id = ? AND id = ?", orgID, id).Delete(&model.PricingRule{}).Error
}

func (r *pricingRuleRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*model.PricingRule, error) {
	var rule model.PricingRule
	if err := GetDB(ctx, r.db).Where("organization_id = ?", orgID).First(&rule, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rule, nil
}

func (r *pricingRuleRepository) ListByOrganization(ctx context.Context, orgID uuid.UUID) ([]model.PricingRule, error) {
	var rules []model.PricingRule
	if err := GetDB(ctx, r.db).Where("organization_id = ?", orgID).Order("created_at ASC").Find(&rules).Error; err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *pricingRuleRepository) List(ctx context.Context, orgID uuid.UUID, kind string, page, limit int) ([]model.PricingRule, int64, error) {
	var rules []model.PricingRule
	var total int64

	query := GetDB(ctx, r.db).Model(&model.PricingRule{}).Where("organization_id = ?", orgID)
	if kind != "" {
		query = query.Where("kind = ?", kind)
	}

	query = query.Session(&gorm.Session{})

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.Order("created_at DESC").Offset(offset).Limit(limit).Find(&rules).Error; err != nil {
		return nil, 0, err
	}

	return rules, total, nil
}
