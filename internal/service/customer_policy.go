package service

import (
	"context"
	"errors"
	"fmt"

	"crm/internal/apperror"
	"crm/internal/model"
	"crm/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CustomerPolicy decides which partner a new quote is addressed to.
type CustomerPolicy interface {
	// Resolve returns the requested partner when id is set. Otherwise it
	// falls back to the organization's oldest partner, and creates a
	// placeholder named model.DefaultCustomerName when there is none.
	// created reports whether a placeholder was inserted.
	Resolve(ctx context.Context, orgID uuid.UUID, id *uuid.UUID) (partner *model.Partner, created bool, err error)
}

type customerPolicy struct {
	partners repository.PartnerRepository
}

func NewCustomerPolicy(partners repository.PartnerRepository) CustomerPolicy {
	return &customerPolicy{partners: partners}
}

func (p *customerPolicy) Resolve(ctx context.Context, orgID uuid.UUID, id *uuid.UUID) (*model.Partner, bool, error) {
	if id != nil && *id != uuid.Nil {
		partner, err := p.partners.FindByID(ctx, orgID, *id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, false, apperror.ErrInvalidInput.WithMessage("customer not found")
			}
			return nil, false, fmt.Errorf("failed to fetch customer: %w", err)
		}
		return partner, false, nil
	}

	partner, err := p.partners.FindFirst(ctx, orgID)
	if err == nil {
		return partner, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to fetch fallback customer: %w", err)
	}

	placeholder := &model.Partner{
		OrganizationID: orgID,
		Name:           model.DefaultCustomerName,
		Type:           model.PartnerTypeCustomer,
		IsActive:       true,
	}
	if err := p.partners.Create(ctx, placeholder); err != nil {
		return nil, false, fmt.Errorf("failed to create default customer: %w", err)
	}
	return placeholder, true, nil
}
