package repository

import (
	"context"

	"crm/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NumberRangeRepository interface {
	// FindForUpdate locks the (org, docType) row until the surrounding transaction ends.
	FindForUpdate(ctx context.Context, orgID uuid.UUID, docType string) (*model.NumberRange, error)
	// CreateIfMissing inserts nr unless a row for the same (org, docType) exists.
	CreateIfMissing(ctx context.Context, nr *model.NumberRange) error
	Advance(ctx context.Context, id uuid.UUID, next int64) error
}

type numberRangeRepository struct {
	db *gorm.DB
}

func NewNumberRangeRepository(db *gorm.DB) NumberRangeRepository {
	return &numberRangeRepository{db: db}
}

func (r *numberRangeRepository) FindForUpdate(ctx context.Context, orgID uuid.UUID, docType string) (*model.NumberRange, error) {
	var nr model.NumberRange
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ? AND doc_type = ?", orgID, docType).
		First(&nr).Error; err != nil {
		return nil, err
	}
	return &nr, nil
}

func (r *numberRangeRepository) CreateIfMissing(ctx context.Context, nr *model.NumberRange) error {
	return GetDB(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "organization_id"}, {Name: "doc_type"}},
		DoNothing: true,
	}).Create(nr).Error
}

func (r *numberRangeRepository) Advance(ctx context.Context, id uuid.UUID, next int64) error {
	return GetDB(ctx, r.db).Model(&model.NumberRange{}).Where("id = ?", id).Update("current", next).Error
}
