// Package pricing computes quote totals from line items and a stack of
// percentage pricing rules. It performs no I/O.
package pricing

import (
	"github.com/shopspring/decimal"
)

// DefaultTaxRate is the flat rate applied to the post-discount base.
var DefaultTaxRate = decimal.RequireFromString("0.18")

// DefaultScale is the number of decimal places kept on computed totals.
const DefaultScale int32 = 2

// Line is one priceable row. TaxPercent is carried for display and the
// per-line total but does not take part in Calculate.
type Line struct {
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	TaxPercent      decimal.Decimal
	Category        string
}

// Base returns quantity * unit price.
func (l Line) Base() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// Input is everything Calculate needs.
type Input struct {
	Lines         []Line
	CustomerGroup string
	Rules         []Rule
}

// Totals are the four derived money amounts of a quote.
type Totals struct {
	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	Total         decimal.Decimal `json:"total"`
}

// Source of an Adjustment: a line discount or one of the rule kinds.
const SourceLineDiscount = "line_discount"

// Adjustment records a single discount contribution.
type Adjustment struct {
	Source    string          `json:"source"`
	RuleID    string          `json:"rule_id,omitempty"`
	Target    string          `json:"target,omitempty"`
	LineIndex int             `json:"line_index"` // -1 for quote-level rules
	Percent   decimal.Decimal `json:"percent"`
	Amount    decimal.Decimal `json:"amount"`
}

// Result is the outcome of Calculate.
type Result struct {
	Totals
	Adjustments []Adjustment `json:"applied_rules"`
}

// Engine holds the tax rate and rounding scale. The zero value is not
// usable; construct with NewEngine.
type Engine struct {
	taxRate decimal.Decimal
	scale   int32
}

// Option configures an Engine.
type Option func(*Engine)

// WithTaxRate overrides DefaultTaxRate, e.g. 0.18 for 18%.
func WithTaxRate(rate decimal.Decimal) Option {
	return func(e *Engine) { e.taxRate = rate }
}

// WithScale overrides DefaultScale.
func WithScale(scale int32) Option {
	return func(e *Engine) { e.scale = scale }
}

func NewEngine(opts ...Option) *Engine {
	e := &Engine{taxRate: DefaultTaxRate, scale: DefaultScale}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Calculate derives subtotal, discount, tax and total.
//
// Discounts accumulate in a fixed order: per-line discounts, then category
// rules per matching line, then customer-group rules and volume rules, both
// against the undiscounted subtotal. Every matching rule stacks; there is no
// precedence and no cap. Amounts are computed exactly and rounded once at
// the end; Total is derived from the rounded parts so that
// Total == Subtotal - DiscountTotal + TaxTotal always holds.
func (e *Engine) Calculate(in Input) Result {
	var adjustments []Adjustment

	subtotal := decimal.Zero
	discount := decimal.Zero
	for i, line := range in.Lines {
		base := line.Base()
		subtotal = subtotal.Add(base)
		if line.DiscountPercent.IsZero() {
			continue
		}
		amount := base.Mul(line.DiscountPercent.Shift(-2))
		discount = discount.Add(amount)
		adjustments = append(adjustments, Adjustment{
			Source:    SourceLineDiscount,
			LineIndex: i,
			Percent:   line.DiscountPercent,
			Amount:    amount,
		})
	}

	for i, line := range in.Lines {
		if line.Category == "" {
			continue
		}
		base := line.Base()
		for _, r := range in.Rules {
			if r.Kind != KindCategory || r.Target != line.Category {
				continue
			}
			amount := base.Mul(r.Percent.Shift(-2))
			discount = discount.Add(amount)
			adjustments = append(adjustments, ruleAdjustment(r, i, amount))
		}
	}

	if in.CustomerGroup != "" {
		for _, r := range in.Rules {
			if r.Kind != KindCustomer || r.Target != in.CustomerGroup {
				continue
			}
			amount := subtotal.Mul(r.Percent.Shift(-2))
			discount = discount.Add(amount)
			adjustments = append(adjustments, ruleAdjustment(r, -1, amount))
		}
	}

	for _, r := range in.Rules {
		if r.Kind != KindVolume {
			continue
		}
		if subtotal.LessThan(VolumeThreshold(r.Target)) {
			continue
		}
		amount := subtotal.Mul(r.Percent.Shift(-2))
		discount = discount.Add(amount)
		adjustments = append(adjustments, ruleAdjustment(r, -1, amount))
	}

	tax := subtotal.Sub(discount).Mul(e.taxRate)

	totals := Totals{
		Subtotal:      subtotal.Round(e.scale),
		DiscountTotal: discount.Round(e.scale),
		TaxTotal:      tax.Round(e.scale),
	}
	totals.Total = totals.Subtotal.Sub(totals.DiscountTotal).Add(totals.TaxTotal)

	for i := range adjustments {
		adjustments[i].Amount = adjustments[i].Amount.Round(e.scale)
	}

	return Result{Totals: totals, Adjustments: adjustments}
}

func ruleAdjustment(r Rule, lineIndex int, amount decimal.Decimal) Adjustment {
	return Adjustment{
		Source:    string(r.Kind),
		RuleID:    r.ID,
		Target:    r.Target,
		LineIndex: lineIndex,
		Percent:   r.Percent,
		Amount:    amount,
	}
}
