package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// QuoteStatistics summarizes the quote pipeline of an organization over a
// time range.
type QuoteStatistics struct {
	TotalQuotes        int64             `json:"total_quotes"`
	QuotedValue        decimal.Decimal   `json:"quoted_value"`
	ApprovedValue      decimal.Decimal   `json:"approved_value"`
	ConvertedValue     decimal.Decimal   `json:"converted_value"`
	ByStatus           []StatusBucket    `json:"by_status"`
	TopCustomers       []CustomerRanking `json:"top_customers"`
	TimeRangeStartDate time.Time         `json:"time_range_start_date"`
	TimeRangeEndDate   time.Time         `json:"time_range_end_date"`
}

// StatusBucket counts the quotes in one status.
type StatusBucket struct {
	Status string          `json:"status"`
	Count  int64           `json:"count"`
	Value  decimal.Decimal `json:"value"`
}

// CustomerRanking ranks a customer by accumulated quote totals
type CustomerRanking struct {
	CustomerID   string          `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	QuoteCount   int64           `json:"quote_count"`
	TotalValue   decimal.Decimal `json:"total_value"`
}
