package service

import (
	"encoding/json"
	"strings"
	"time"

	"crm/internal/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Line defaults applied when a field is absent.
const DefaultLineName = "Line"

var defaultLineQuantity = decimal.NewFromInt(1)

// lineScale is the number of decimal places stored for line quantities,
// prices and percents.
const lineScale = 2

// QuoteLinePayload is one incoming quote line. Alternate client field
// names are accepted: productId for product, productName for name, qty
// for quantity, unitPrice for unit_price, discount_percent and
// tax_percent for discount and tax.
type QuoteLinePayload struct {
	ProductID       string
	Name            string
	Quantity        *decimal.Decimal
	UnitPrice       *decimal.Decimal
	DiscountPercent *decimal.Decimal
	TaxPercent      *decimal.Decimal
	// Category is only read by previews; persisted lines take it from
	// their product.
	Category string

	empty bool
}

func (p *QuoteLinePayload) UnmarshalJSON(data []byte) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	if len(keys) == 0 {
		p.empty = true
		return nil
	}

	var raw struct {
		Product         string           `json:"product"`
		ProductIDSnake  string           `json:"product_id"`
		ProductIDCamel  string           `json:"productId"`
		Name            string           `json:"name"`
		ProductName     string           `json:"productName"`
		Quantity        *decimal.Decimal `json:"quantity"`
		Qty             *decimal.Decimal `json:"qty"`
		UnitPrice       *decimal.Decimal `json:"unit_price"`
		UnitPriceCamel  *decimal.Decimal `json:"unitPrice"`
		Discount        *decimal.Decimal `json:"discount"`
		DiscountPercent *decimal.Decimal `json:"discount_percent"`
		Tax             *decimal.Decimal `json:"tax"`
		TaxPercent      *decimal.Decimal `json:"tax_percent"`
		Category        string           `json:"category"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return apperror.ErrInvalidInput.WithMessage("invalid line: " + err.Error())
	}

	*p = QuoteLinePayload{
		ProductID:       firstString(raw.Product, raw.ProductIDSnake, raw.ProductIDCamel),
		Name:            firstString(raw.Name, raw.ProductName),
		Quantity:        firstDecimal(raw.Quantity, raw.Qty),
		UnitPrice:       firstDecimal(raw.UnitPrice, raw.UnitPriceCamel),
		DiscountPercent: firstDecimal(raw.Discount, raw.DiscountPercent),
		TaxPercent:      firstDecimal(raw.Tax, raw.TaxPercent),
		Category:        raw.Category,
	}
	return nil
}

// Empty reports whether the line was sent as an empty object.
func (p QuoteLinePayload) Empty() bool {
	return p.empty
}

// QuotePayload is the body of quote create and update. Nil fields are
// left unchanged on update. Lines replaces every existing line whenever
// it is present, even when empty. Client-supplied totals and status are
// not part of the payload and are ignored.
//
// Accepted aliases: customerId for customer, validUntil for valid_until,
// payment and delivery for payment_terms and delivery_terms.
type QuotePayload struct {
	CustomerID    *string
	OpportunityID *string
	OwnerID       *string
	ValidUntil    *string // YYYY-MM-DD, empty clears
	Currency      *string
	PaymentTerms  *string
	DeliveryTerms *string
	Notes         *string
	Lines         *[]QuoteLinePayload
}

func (p *QuotePayload) UnmarshalJSON(data []byte) error {
	var raw struct {
		Customer           *string             `json:"customer"`
		CustomerIDSnake    *string             `json:"customer_id"`
		CustomerIDCamel    *string             `json:"customerId"`
		Opportunity        *string             `json:"opportunity"`
		OpportunityIDSnake *string             `json:"opportunity_id"`
		Owner              *string             `json:"owner"`
		OwnerIDSnake       *string             `json:"owner_id"`
		ValidUntil         *string             `json:"valid_until"`
		ValidUntilCamel    *string             `json:"validUntil"`
		Currency           *string             `json:"currency"`
		PaymentTerms       *string             `json:"payment_terms"`
		Payment            *string             `json:"payment"`
		DeliveryTerms      *string             `json:"delivery_terms"`
		Delivery           *string             `json:"delivery"`
		Notes              *string             `json:"notes"`
		Lines              *[]QuoteLinePayload `json:"lines"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = QuotePayload{
		CustomerID:    firstStringPtr(raw.Customer, raw.CustomerIDSnake, raw.CustomerIDCamel),
		OpportunityID: firstStringPtr(raw.Opportunity, raw.OpportunityIDSnake),
		OwnerID:       firstStringPtr(raw.Owner, raw.OwnerIDSnake),
		ValidUntil:    firstStringPtr(raw.ValidUntil, raw.ValidUntilCamel),
		Currency:      raw.Currency,
		PaymentTerms:  firstStringPtr(raw.PaymentTerms, raw.Payment),
		DeliveryTerms: firstStringPtr(raw.DeliveryTerms, raw.Delivery),
		Notes:         raw.Notes,
		Lines:         raw.Lines,
	}
	return nil
}

// PreviewRequest prices unsaved lines. customer_group is also accepted as
// customerGroup.
type PreviewRequest struct {
	CustomerGroup string
	Lines         []QuoteLinePayload
}

func (p *PreviewRequest) UnmarshalJSON(data []byte) error {
	var raw struct {
		CustomerGroup      string             `json:"customer_group"`
		CustomerGroupCamel string             `json:"customerGroup"`
		Lines              []QuoteLinePayload `json:"lines"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	p.CustomerGroup = firstString(raw.CustomerGroup, raw.CustomerGroupCamel)
	p.Lines = raw.Lines
	return nil
}

func firstString(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstStringPtr(vals ...*string) *string {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func firstDecimal(vals ...*decimal.Decimal) *decimal.Decimal {
	for _, v := range vals {
		if v != nil {
			return v
		}
	}
	return nil
}

func decimalOr(v *decimal.Decimal, def decimal.Decimal) decimal.Decimal {
	if v == nil {
		return def
	}
	return *v
}

// parseOptionalUUID treats nil and blank as absent.
func parseOptionalUUID(field string, v *string) (*uuid.UUID, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil, nil
	}
	id, err := uuid.Parse(strings.TrimSpace(*v))
	if err != nil {
		return nil, apperror.ErrInvalidInput.WithMessage(field + ": Invalid UUID format")
	}
	return &id, nil
}

func parseOptionalDate(field string, v *string) (*time.Time, error) {
	if v == nil || strings.TrimSpace(*v) == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", strings.TrimSpace(*v))
	if err != nil {
		return nil, apperror.ErrInvalidInput.WithMessage(field + ": expected YYYY-MM-DD")
	}
	return &t, nil
}
