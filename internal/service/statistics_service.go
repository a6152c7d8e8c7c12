package service

import (
	"context"
	"fmt"
	"time"

	"crm/internal/apperror"
	"crm/internal/model"
	"crm/internal/repository"

	"github.com/shopspring/decimal"
)

const topCustomerLimit = 5

type StatisticsService interface {
	GetQuoteStatistics(ctx context.Context, actor Identity, startDate, endDate time.Time) (model.QuoteStatistics, error)
}

type statisticsService struct {
	quotes repository.QuoteRepository
}

func NewStatisticsService(quotes repository.QuoteRepository) StatisticsService {
	return &statisticsService{quotes: quotes}
}

// GetQuoteStatistics aggregates quotes created between startDate and
// endDate, inclusive.
func (s *statisticsService) GetQuoteStatistics(ctx context.Context, actor Identity, startDate, endDate time.Time) (model.QuoteStatistics, error) {
	if endDate.Before(startDate) {
		return model.QuoteStatistics{}, apperror.ErrInvalidInput.WithMessage("end_date must not be before start_date")
	}

	stats := model.QuoteStatistics{
		QuotedValue:        decimal.Zero,
		ApprovedValue:      decimal.Zero,
		ConvertedValue:     decimal.Zero,
		TimeRangeStartDate: startDate,
		TimeRangeEndDate:   endDate,
	}

	buckets, err := s.quotes.StatusSummary(ctx, actor.OrganizationID, startDate, endDate)
	if err != nil {
		return stats, fmt.Errorf("failed to summarize quotes: %w", err)
	}
	stats.ByStatus = buckets
	for _, b := range buckets {
		stats.TotalQuotes += b.Count
		stats.QuotedValue = stats.QuotedValue.Add(b.Value)
		switch b.Status {
		case model.QuoteStatusApproved:
			stats.ApprovedValue = stats.ApprovedValue.Add(b.Value)
		case model.QuoteStatusConverted:
			stats.ConvertedValue = stats.ConvertedValue.Add(b.Value)
		}
	}

	top, err := s.quotes.TopCustomers(ctx, actor.OrganizationID, startDate, endDate, topCustomerLimit)
	if err != nil {
		return stats, fmt.Errorf("failed to rank customers: %w", err)
	}
	stats.TopCustomers = top

	return stats, nil
}
