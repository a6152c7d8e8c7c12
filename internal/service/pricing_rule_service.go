package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crm/internal/apperror"
	"crm/internal/model"
	"crm/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// --- DTOs ---

type PricingRuleRequest struct {
	Name        string           `json:"name" validate:"required,max=255"`
	Kind        string           `json:"kind" validate:"required,oneof=category customer volume"`
	Target      string           `json:"target" validate:"required,max=255"`
	Percent     *decimal.Decimal `json:"percent" validate:"required"` // 8 = 8%
	Description string           `json:"description"`
}

type PricingRuleResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	Target      string `json:"target"`
	Percent     string `json:"percent"`
	Description string `json:"description"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

var maxPercent = decimal.NewFromInt(100)

// --- Interface ---

type PricingRuleService interface {
	ListRules(ctx context.Context, actor Identity, kind string, page, limit int) ([]PricingRuleResponse, int64, error)
	GetRule(ctx context.Context, actor Identity, id uuid.UUID) (PricingRuleResponse, error)
	CreateRule(ctx context.Context, actor Identity, req PricingRuleRequest) (PricingRuleResponse, error)
	UpdateRule(ctx context.Context, actor Identity, id uuid.UUID, req PricingRuleRequest) (PricingRuleResponse, error)
	DeleteRule(ctx context.Context, actor Identity, id uuid.UUID) error
}

type pricingRuleService struct {
	repo    repository.PricingRuleRepository
	catalog RuleCatalog
	audit   AuditSink
	log     *zap.Logger
}

func NewPricingRuleService(repo repository.PricingRuleRepository, catalog RuleCatalog, audit AuditSink, log *zap.Logger) PricingRuleService {
	if log == nil {
		log = zap.NewNop()
	}
	return &pricingRuleService{repo: repo, catalog: catalog, audit: audit, log: log.Named("pricing_rules")}
}

// --- Implementation ---

func (s *pricingRuleService) ListRules(ctx context.Context, actor Identity, kind string, page, limit int) ([]PricingRuleResponse, int64, error) {
	rules, total, err := s.repo.List(ctx, actor.OrganizationID, kind, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch pricing rules: %w", err)
	}
	res := make([]PricingRuleResponse, 0, len(rules))
	for _, r := range rules {
		res = append(res, toPricingRuleResponse(r))
	}
	return res, total, nil
}

func (s *pricingRuleService) GetRule(ctx context.Context, actor Identity, id uuid.UUID) (PricingRuleResponse, error) {
	rule, err := s.find(ctx, actor, id)
	if err != nil {
		return PricingRuleResponse{}, err
	}
	return toPricingRuleResponse(*rule), nil
}

func (s *pricingRuleService) CreateRule(ctx context.Context, actor Identity, req PricingRuleRequest) (PricingRuleResponse, error) {
	if err := validateRuleRequest(req); err != nil {
		return PricingRuleResponse{}, err
	}

	rule := model.PricingRule{
		OrganizationID: actor.OrganizationID,
		Name:           req.Name,
		Kind:           req.Kind,
		Target:         req.Target,
		Percent:        *req.Percent,
		Description:    req.Description,
	}
	if err := s.repo.Create(ctx, &rule); err != nil {
		return PricingRuleResponse{}, fmt.Errorf("failed to create pricing rule: %w", err)
	}

	s.catalog.Invalidate(ctx, actor.OrganizationID)
	s.audit.Record(AuditEntry{
		OrganizationID: actor.OrganizationID,
		Entity:         model.EntityPricingRule,
		EntityID:       rule.ID.String(),
		Action:         model.ActionCreated,
		NewValue:       rule.Kind + ":" + rule.Target + " " + rule.Percent.StringFixed(2),
		UserID:         actor.UserID,
	})
	s.log.Info("pricing rule created",
		zap.String("rule_id", rule.ID.String()),
		zap.String("kind", rule.Kind),
		zap.String("target", rule.Target))

	return toPricingRuleResponse(rule), nil
}

func (s *pricingRuleService) UpdateRule(ctx context.Context, actor Identity, id uuid.UUID, req PricingRuleRequest) (PricingRuleResponse, error) {
	if err := validateRuleRequest(req); err != nil {
		return PricingRuleResponse{}, err
	}
	rule, err := s.find(ctx, actor, id)
	if err != nil {
		return PricingRuleResponse{}, err
	}

	changes := ruleChanges(*rule, req)
	rule.Name = req.Name
	rule.Kind = req.Kind
	rule.Target = req.Target
	rule.Percent = *req.Percent
	rule.Description = req.Description

	if err := s.repo.Update(ctx, rule); err != nil {
		return PricingRuleResponse{}, fmt.Errorf("failed to update pricing rule: %w", err)
	}

	s.catalog.Invalidate(ctx, actor.OrganizationID)
	for _, ch := range changes {
		s.audit.Record(AuditEntry{
			OrganizationID: actor.OrganizationID,
			Entity:         model.EntityPricingRule,
			EntityID:       rule.ID.String(),
			Action:         model.ActionUpdated,
			Field:          ch.field,
			OldValue:       ch.old,
			NewValue:       ch.new,
			UserID:         actor.UserID,
		})
	}

	return toPricingRuleResponse(*rule), nil
}

func (s *pricingRuleService) DeleteRule(ctx context.Context, actor Identity, id uuid.UUID) error {
	rule, err := s.find(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, actor.OrganizationID, id); err != nil {
		return fmt.Errorf("failed to delete pricing rule: %w", err)
	}

	s.catalog.Invalidate(ctx, actor.OrganizationID)
	s.audit.Record(AuditEntry{
		OrganizationID: actor.OrganizationID,
		Entity:         model.EntityPricingRule,
		EntityID:       rule.ID.String(),
		Action:         model.ActionDeleted,
		OldValue:       rule.Kind + ":" + rule.Target + " " + rule.Percent.StringFixed(2),
		UserID:         actor.UserID,
	})
	return nil
}

// --- Helpers ---

func (s *pricingRuleService) find(ctx context.Context, actor Identity, id uuid.UUID) (*model.PricingRule, error) {
	rule, err := s.repo.FindByID(ctx, actor.OrganizationID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrRuleNotFound
		}
		return nil, fmt.Errorf("failed to fetch pricing rule: %w", err)
	}
	return rule, nil
}

func validateRuleRequest(req PricingRuleRequest) error {
	if err := validateStruct(req); err != nil {
		return err
	}
	if req.Percent.IsNegative() || req.Percent.GreaterThan(maxPercent) {
		return apperror.ErrInvalidInput.WithMessage("percent: Must be between 0 and 100")
	}
	return nil
}

type fieldChange struct {
	field, old, new string
}

func ruleChanges(r model.PricingRule, req PricingRuleRequest) []fieldChange {
	var out []fieldChange
	add := func(field, old, new string) {
		if old != new {
			out = append(out, fieldChange{field: field, old: old, new: new})
		}
	}
	add("name", r.Name, req.Name)
	add("kind", r.Kind, req.Kind)
	add("target", r.Target, req.Target)
	add("percent", r.Percent.StringFixed(2), req.Percent.StringFixed(2))
	add("description", r.Description, req.Description)
	return out
}

func toPricingRuleResponse(r model.PricingRule) PricingRuleResponse {
	return PricingRuleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		Kind:        r.Kind,
		Target:      r.Target,
		Percent:     r.Percent.StringFixed(2),
		Description: r.Description,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:   r.UpdatedAt.Format(time.RFC3339),
	}
}
