package repository

import (
	"context"

	"crm/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ProductRepository interface {
	Create(ctx context.Context, product *model.Product) error
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*model.Product, error)
	// CategoriesByIDs maps product id to category for the given products.
	CategoriesByIDs(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]string, error)
}

type productRepository struct {
	db *gorm.DB
}

func NewProductRepository(db *gorm.DB) ProductRepository {
	return &productRepository{db: db}
}

func (r *productRepository) Create(ctx context.Context, product *model.Product) error {
	return GetDB(ctx, r.db).Create(product).Error
}

func (r *productRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*model.Product, error) {
	var product model.Product
	if err := GetDB(ctx, r.db).Where("organization_id = ?", orgID).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *productRepository) CategoriesByIDs(ctx context.Context, orgID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	categories := make(map[uuid.UUID]string, len(ids))
	if len(ids) == 0 {
		return categories, nil
	}
	var products []model.Product
	if err := GetDB(ctx, r.db).Select("id", "category").
		Where("organization_id = ? AND id IN ?", orgID, ids).
		Find(&products).Error; err != nil {
		return nil, err
	}
	for _, p := range products {
		categories[p.ID] = p.Category
	}
	return categories, nil
}
