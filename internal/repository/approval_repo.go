package repository

import (
	"context"
	"time"

	"crm/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PendingStep is a Waiting approval step joined with its quote.
type PendingStep struct {
	ID          uuid.UUID `json:"id"`
	InstanceID  uuid.UUID `json:"instance_id"`
	QuoteID     uuid.UUID `json:"quote_id"`
	QuoteNumber string    `json:"quote_number"`
	QuoteStatus string    `json:"quote_status"`
	Role        string    `json:"role"`
	Status      string    `json:"status"`
	Comment     string    `json:"comment"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ApprovalRepository interface {
	FindInstanceByQuote(ctx context.Context, quoteID uuid.UUID) (*model.ApprovalInstance, error)
	FindStep(ctx context.Context, orgID, stepID uuid.UUID) (*model.ApprovalStep, *model.ApprovalInstance, error)
	CreateInstance(ctx context.Context, instance *model.ApprovalInstance) error
	UpdateInstanceStatus(ctx context.Context, id uuid.UUID, status string) error
	// ReplaceSteps deletes every step of the instance and inserts steps.
	ReplaceSteps(ctx context.Context, instanceID uuid.UUID, steps []model.ApprovalStep) error
	SaveSteps(ctx context.Context, steps []model.ApprovalStep) error
	ListPendingSteps(ctx context.Context, orgID uuid.UUID, role string, page, limit int) ([]PendingStep, int64, error)
}

type approvalRepository struct {
	db *gorm.DB
}

func NewApprovalRepository(db *gorm.DB) ApprovalRepository {
	return &approvalRepository{db: db}
}

func (r *approvalRepository) FindInstanceByQuote(ctx context.Context, quoteID uuid.UUID) (*model.ApprovalInstance, error) {
	var instance model.ApprovalInstance
	if err := GetDB(ctx, r.db).
		Preload("Steps", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		First(&instance, "quote_id = ?", quoteID).Error; err != nil {
		return nil, err
	}
	return &instance, nil
}

func (r *approvalRepository) FindStep(ctx context.Context, orgID, stepID uuid.UUID) (*model.ApprovalStep, *model.ApprovalInstance, error) {
	db := GetDB(ctx, r.db)
	var step model.ApprovalStep
	if err := db.First(&step, "id = ?", stepID).Error; err != nil {
		return nil, nil, err
	}
	var instance model.ApprovalInstance
	if err := db.Where("organization_id = ?", orgID).First(&instance, "id = ?", step.InstanceID).Error; err != nil {
		return nil, nil, err
	}
	return &step, &instance, nil
}

func (r *approvalRepository) CreateInstance(ctx context.Context, instance *model.ApprovalInstance) error {
	return GetDB(ctx, r.db).Omit(clause.Associations).Create(instance).Error
}

func (r *approvalRepository) UpdateInstanceStatus(ctx context.Context, id uuid.UUID, status string) error {
	return GetDB(ctx, r.db).Model(&model.ApprovalInstance{}).Where("id = ?", id).Update("status", status).Error
}

func (r *approvalRepository) ReplaceSteps(ctx context.Context, instanceID uuid.UUID, steps []model.ApprovalStep) error {
	db := GetDB(ctx, r.db)
	if err := db.Where("instance_id = ?", instanceID).Delete(&model.ApprovalStep{}).Error; err != nil {
		return err
	}
	if len(steps) == 0 {
		return nil
	}
	for i := range steps {
		steps[i].InstanceID = instanceID
	}
	return db.Create(&steps).Error
}

func (r *approvalRepository) SaveSteps(ctx context.Context, steps []model.ApprovalStep) error {
	db := GetDB(ctx, r.db)
	for i := range steps {
		if err := db.Save(&steps[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

func (r *approvalRepository) ListPendingSteps(ctx context.Context, orgID uuid.UUID, role string, page, limit int) ([]PendingStep, int64, error) {
	var rows []PendingStep
	var total int64

	query := GetDB(ctx, r.db).Table("approval_steps AS s").
		Joins("JOIN approval_instances AS i ON i.id = s.instance_id").
		Joins("JOIN quotes AS q ON q.id = i.quote_id").
		Where("i.organization_id = ? AND s.role = ? AND s.status = ?", orgID, role, "Waiting")

	query = query.Session(&gorm.Session{})

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * limit
	if err := query.
		Select("s.id, s.instance_id, i.quote_id, q.number AS quote_number, q.status AS quote_status, s.role, s.status, s.comment, s.updated_at").
		Order("s.updated_at ASC").Offset(offset).Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, 0, err
	}

	return rows, total, nil
}
