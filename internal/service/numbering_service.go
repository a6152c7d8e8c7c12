package service

import (
	"context"
	"errors"
	"fmt"

	"crm/internal/apperror"
	"crm/internal/metrics"
	"crm/internal/model"
	"crm/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DefaultPrefixes are used when a number range is created on first use.
var DefaultPrefixes = map[string]string{
	model.DocTypeQuote:   "Q-",
	model.DocTypeOrder:   "SO-",
	model.DocTypeInvoice: "INV-",
}

// NumberingService hands out document numbers from per-organization
// counters.
type NumberingService interface {
	// AllocateNext returns prefix+current and advances the counter by one.
	// The allocation commits on its own, so a number is never reused even
	// when the caller's transaction later rolls back.
	AllocateNext(ctx context.Context, orgID uuid.UUID, docType string) (string, error)
}

type numberingService struct {
	tm       repository.TransactionManager
	ranges   repository.NumberRangeRepository
	prefixes map[string]string
	metrics  *metrics.Recorder
}

// NewNumberingService creates the service. prefixes override
// DefaultPrefixes per document type.
func NewNumberingService(tm repository.TransactionManager, ranges repository.NumberRangeRepository, prefixes map[string]string, rec *metrics.Recorder) NumberingService {
	merged := make(map[string]string, len(DefaultPrefixes))
	for k, v := range DefaultPrefixes {
		merged[k] = v
	}
	for k, v := range prefixes {
		if v != "" {
			merged[k] = v
		}
	}
	return &numberingService{tm: tm, ranges: ranges, prefixes: merged, metrics: rec}
}

func (s *numberingService) AllocateNext(ctx context.Context, orgID uuid.UUID, docType string) (string, error) {
	prefix, ok := s.prefixes[docType]
	if !ok {
		return "", apperror.ErrInvalidInput.WithMessage(fmt.Sprintf("unknown document type %q", docType))
	}

	var number string
	err := s.tm.RunInNewTx(ctx, func(txCtx context.Context) error {
		nr, err := s.ranges.FindForUpdate(txCtx, orgID, docType)
		if errors.Is(err, gorm.ErrRecordNotFound) {
			seed := &model.NumberRange{OrganizationID: orgID, DocType: docType, Prefix: prefix, Current: 1}
			if err := s.ranges.CreateIfMissing(txCtx, seed); err != nil {
				return fmt.Errorf("failed to create number range: %w", err)
			}
			nr, err = s.ranges.FindForUpdate(txCtx, orgID, docType)
		}
		if err != nil {
			return fmt.Errorf("failed to lock number range: %w", err)
		}

		number = fmt.Sprintf("%s%d", nr.Prefix, nr.Current)
		if err := s.ranges.Advance(txCtx, nr.ID, nr.Current+1); err != nil {
			return fmt.Errorf("failed to advance number range: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.metrics.NumberAllocated(docType)
	return number, nil
}
