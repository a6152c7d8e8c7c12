package repository

import (
	"context"
	"strings"
	"time"

	"crm/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// QuoteFilter narrows List. A nil OwnerID lists every owner.
type QuoteFilter struct {
	OrganizationID uuid.UUID
	OwnerID        *uuid.UUID
	Status         string
	Search         string
	Page           int
	Limit          int
}

type QuoteRepository interface {
	Create(ctx context.Context, quote *model.Quote) error
	Save(ctx context.Context, quote *model.Quote) error
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*model.Quote, error)
	// FindByIDForUpdate locks the quote row until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, orgID, id uuid.UUID) (*model.Quote, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error
	UpdateTotals(ctx context.Context, id uuid.UUID, subtotal, discount, tax, total decimal.Decimal) error
	ReplaceLines(ctx context.Context, quoteID uuid.UUID, lines []model.QuoteLine) error
	FindLines(ctx context.Context, quoteID uuid.UUID) ([]model.QuoteLine, error)
	List(ctx context.Context, filter QuoteFilter) ([]model.Quote, int64, error)
	// StatusSummary groups quotes created in [from, to] by status.
	StatusSummary(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]model.StatusBucket, error)
	TopCustomers(ctx context.Context, orgID uuid.UUID, from, to time.Time, limit int) ([]model.CustomerRanking, error)
}

type quoteRepository struct {
	db *gorm.DB
}

func NewQuoteRepository(db *gorm.DB) QuoteRepository {
	return &quoteRepository{db: db}
}

func (r *quoteRepository) Create(ctx context.Context, quote *model.Quote) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Create(quote).Error
}

func (r *quoteRepository) Save(ctx context.Context, quote *model.Quote) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Save(quote).Error
}

func (r *quoteRepository) FindByID(ctx context.Context, orgID, id uuid.UUID) (*model.Quote, error) {
	var quote model.Quote
	if err := GetDB(ctx, r.db).
		Preload("Lines", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Customer").
		Where("organization_id = ?", orgID).
		First(&quote, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *quoteRepository) FindByIDForUpdate(ctx context.Context, orgID, id uuid.UUID) (*model.Quote, error) {
	var quote model.Quote
	if err := GetDB(ctx, r.db).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("organization_id = ? AND id = ?", orgID, id).First(&quote).Error; err != nil {
		return nil, err
	}
	return &quote, nil
}

func (r *quoteRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	return GetDB(ctx, r.db).Model(&model.Quote{}).Where("id = ?", id).Update("status", status).Error
}

func (r *quoteRepository) UpdateTotals(ctx context.Context, id uuid.UUID, subtotal, discount, tax, total decimal.Decimal) error {
	return GetDB(ctx, r.db).Model(&model.Quote{}).Where("id = ?", id).Updates(map[string]interface{}{
		"subtotal":       subtotal,
		"discount_total": discount,
		"tax_total":      tax,
		"total":          total,
	}).Error
}

func (r *quoteRepository) ReplaceLines(ctx context.Context, quoteID uuid.UUID, lines []model.QuoteLine) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("quote_id = ?", quoteID).Delete(&model.QuoteLine{}).Error; err != nil {
		return err
	}
	if len(lines) == 0 {
		return nil
	}
	for i := range lines {
		lines[i].QuoteID = quoteID
		lines[i].Position = i
	}
	return db.Omit(clause.Associations).Create(&lines).Error
}

func (r *quoteRepository) FindLines(ctx context.Context, quoteID uuid.UUID) ([]model.QuoteLine, error) {
	var lines []model.QuoteLine
	if err := GetDB(ctx, r.db).Preload("Product").Where("quote_id = ?", quoteID).Order("position ASC").Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *quoteRepository) List(ctx context.Context, filter QuoteFilter) ([]model.Quote, int64, error) {
	var quotes []model.Quote
	var total int64

	query := GetDB(ctx, r.db).Model(&model.Quote{}).Where("organization_id = ?", filter.OrganizationID)
	if filter.OwnerID != nil {
		query = query.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		query = query.Where("LOWER(number) LIKE ?", "%"+strings.ToLower(filter.Search)+"%")
	}

	query = query.Session(&gorm.Session{})

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := query.Preload("Customer").Order("created_at DESC").Offset(offset).Limit(filter.Limit).Find(&quotes).Error; err != nil {
		return nil, 0, err
	}

	return quotes, total, nil
}

func (r *quoteRepository) StatusSummary(ctx context.Context, orgID uuid.UUID, from, to time.Time) ([]model.StatusBucket, error) {
	var buckets []model.StatusBucket
	err := GetDB(ctx, r.db).Model(&model.Quote{}).
		Select("status, COUNT(*) AS count, COALESCE(SUM(total), 0) AS value").
		Where("organization_id = ? AND created_at >= ? AND created_at <= ?", orgID, from, to).
		Group("status").
		Order("status ASC").
		Scan(&buckets).Error
	if err != nil {
		return nil, err
	}
	return buckets, nil
}

func (r *quoteRepository) TopCustomers(ctx context.Context, orgID uuid.UUID, from, to time.Time, limit int) ([]model.CustomerRanking, error) {
	var ranking []model.CustomerRanking
	err := GetDB(ctx, r.db).Table("quotes").
		Select("partners.id AS customer_id, partners.name AS customer_name, COUNT(quotes.id) AS quote_count, COALESCE(SUM(quotes.total), 0) AS total_value").
		Joins("JOIN partners ON partners.id = quotes.customer_id").
		Where("quotes.organization_id = ? AND quotes.created_at >= ? AND quotes.created_at <= ?", orgID, from, to).
		Group("partners.id, partners.name").
		Order("total_value DESC").
		Limit(limit).
		Scan(&ranking).Error
	if err != nil {
		return nil, err
	}
	return ranking, nil
}
