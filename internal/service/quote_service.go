package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"crm/internal/apperror"
	"crm/internal/approval"
	"crm/internal/metrics"
	"crm/internal/model"
	"crm/internal/pricing"
	"crm/internal/repository"
	"crm/internal/websocket"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Quote transitions accepted by Transition.
const (
	ActionSend    = "send"
	ActionConvert = "convert"
)

// Notifier receives quote and approval events. Publish must not block.
type Notifier interface {
	Publish(ev websocket.Event)
}

type nopNotifier struct{}

func (nopNotifier) Publish(websocket.Event) {}

// --- DTOs ---

// QuoteQuery narrows ListQuotes.
type QuoteQuery struct {
	Status string
	Search string
	Page   int
	Limit  int
}

// TransitionResult mirrors the status keyword returned to clients.
type TransitionResult struct {
	Status string `json:"status"`
}

// --- Interface ---

type QuoteService interface {
	CreateQuote(ctx context.Context, actor Identity, payload QuotePayload) (*model.Quote, error)
	UpdateQuote(ctx context.Context, actor Identity, id uuid.UUID, payload QuotePayload) (*model.Quote, error)
	GetQuote(ctx context.Context, actor Identity, id uuid.UUID) (*model.Quote, error)
	ListQuotes(ctx context.Context, actor Identity, q QuoteQuery) ([]model.Quote, int64, error)
	// Recalculate reprices a stored quote and persists its totals.
	Recalculate(ctx context.Context, actor Identity, id uuid.UUID) (pricing.Result, error)
	// Preview prices unsaved lines without touching storage.
	Preview(ctx context.Context, actor Identity, req PreviewRequest) (pricing.Result, error)
	Transition(ctx context.Context, actor Identity, id uuid.UUID, action string) (TransitionResult, error)
}

// QuoteDeps groups the collaborators of the quote service.
type QuoteDeps struct {
	TM        repository.TransactionManager
	Quotes    repository.QuoteRepository
	Partners  repository.PartnerRepository
	Products  repository.ProductRepository
	Catalog   RuleCatalog
	Numbering NumberingService
	Customers CustomerPolicy
	Engine    *pricing.Engine
	Audit     AuditSink
	Notifier  Notifier
	Metrics   *metrics.Recorder
	Log       *zap.Logger
	// Currency applied when a new quote names none.
	Currency string
}

type quoteService struct {
	QuoteDeps
}

func NewQuoteService(deps QuoteDeps) QuoteService {
	if deps.Engine == nil {
		deps.Engine = pricing.NewEngine()
	}
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Currency == "" {
		deps.Currency = model.DefaultCurrency
	}
	deps.Log = deps.Log.Named("quotes")
	return &quoteService{QuoteDeps: deps}
}

// --- Implementation ---

func (s *quoteService) CreateQuote(ctx context.Context, actor Identity, payload QuotePayload) (*model.Quote, error) {
	if actor.OrganizationID == uuid.Nil {
		return nil, apperror.ErrNoOrganization
	}
	customerID, err := parseOptionalUUID("customer", payload.CustomerID)
	if err != nil {
		return nil, err
	}
	lines, err := s.buildLines(ctx, actor.OrganizationID, payload.Lines)
	if err != nil {
		return nil, err
	}

	quote := &model.Quote{
		OrganizationID: actor.OrganizationID,
		Status:         model.QuoteStatusDraft,
		Currency:       s.Currency,
	}
	if _, err := applyQuoteFields(quote, payload); err != nil {
		return nil, err
	}
	if quote.OwnerID == nil {
		owner := actor.UserID
		quote.OwnerID = &owner
	}

	// The number is taken outside the quote transaction so that it stays
	// consumed if the quote fails to persist.
	number, err := s.Numbering.AllocateNext(ctx, actor.OrganizationID, model.DocTypeQuote)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate quote number: %w", err)
	}
	quote.Number = number

	var placeholder *model.Partner
	err = s.TM.RunInTx(ctx, func(txCtx context.Context) error {
		customer, created, err := s.Customers.Resolve(txCtx, actor.OrganizationID, customerID)
		if err != nil {
			return err
		}
		if created {
			placeholder = customer
		}
		quote.CustomerID = customer.ID

		if err := s.Quotes.Create(txCtx, quote); err != nil {
			return fmt.Errorf("failed to create quote: %w", err)
		}
		if err := s.Quotes.ReplaceLines(txCtx, quote.ID, lines); err != nil {
			return fmt.Errorf("failed to create quote lines: %w", err)
		}
		_, err = s.recompute(txCtx, quote)
		return err
	})
	if err != nil {
		return nil, err
	}

	if placeholder != nil {
		s.Audit.Record(AuditEntry{
			OrganizationID: actor.OrganizationID,
			Entity:         model.EntityPartner,
			EntityID:       placeholder.ID.String(),
			Action:         model.ActionCreated,
			NewValue:       placeholder.Name,
			UserID:         actor.UserID,
		})
	}
	s.Audit.Record(AuditEntry{
		OrganizationID: actor.OrganizationID,
		Entity:         model.EntityQuote,
		EntityID:       quote.ID.String(),
		Action:         model.ActionCreated,
		NewValue:       quote.Number,
		UserID:         actor.UserID,
	})
	s.Log.Info("quote created",
		zap.String("quote_id", quote.ID.String()),
		zap.String("number", quote.Number),
		zap.String("total", quote.Total.StringFixed(2)))

	return s.GetQuote(ctx, actor, quote.ID)
}

func (s *quoteService) UpdateQuote(ctx context.Context, actor Identity, id uuid.UUID, payload QuotePayload) (*model.Quote, error) {
	customerID, err := parseOptionalUUID("customer", payload.CustomerID)
	if err != nil {
		return nil, err
	}
	var lines []model.QuoteLine
	if payload.Lines != nil {
		if lines, err = s.buildLines(ctx, actor.OrganizationID, payload.Lines); err != nil {
			return nil, err
		}
	}

	var changes []fieldChange
	err = s.TM.RunInTx(ctx, func(txCtx context.Context) error {
		quote, err := s.lockQuote(txCtx, actor, id)
		if err != nil {
			return err
		}

		if customerID != nil && *customerID != quote.CustomerID {
			customer, _, err := s.Customers.Resolve(txCtx, actor.OrganizationID, customerID)
			if err != nil {
				return err
			}
			changes = append(changes, fieldChange{field: "customer", old: quote.CustomerID.String(), new: customer.ID.String()})
			quote.CustomerID = customer.ID
		}
		fieldChanges, err := applyQuoteFields(quote, payload)
		if err != nil {
			return err
		}
		changes = append(changes, fieldChanges...)

		if err := s.Quotes.Save(txCtx, quote); err != nil {
			return fmt.Errorf("failed to update quote: %w", err)
		}
		if payload.Lines != nil {
			if err := s.Quotes.ReplaceLines(txCtx, quote.ID, lines); err != nil {
				return fmt.Errorf("failed to replace quote lines: %w", err)
			}
			changes = append(changes, fieldChange{field: "lines", new: strconv.Itoa(len(lines))})
		}

		old := quote.Total
		if _, err := s.recompute(txCtx, quote); err != nil {
			return err
		}
		if !old.Equal(quote.Total) {
			changes = append(changes, fieldChange{field: "total", old: old.StringFixed(2), new: quote.Total.StringFixed(2)})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, ch := range changes {
		s.Audit.Record(AuditEntry{
			OrganizationID: actor.OrganizationID,
			Entity:         model.EntityQuote,
			EntityID:       id.String(),
			Action:         model.ActionUpdated,
			Field:          ch.field,
			OldValue:       ch.old,
			NewValue:       ch.new,
			UserID:         actor.UserID,
		})
	}

	return s.GetQuote(ctx, actor, id)
}

func (s *quoteService) GetQuote(ctx context.Context, actor Identity, id uuid.UUID) (*model.Quote, error) {
	quote, err := s.Quotes.FindByID(ctx, actor.OrganizationID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrQuoteNotFound
		}
		return nil, fmt.Errorf("failed to fetch quote: %w", err)
	}
	return quote, nil
}

// ListQuotes shows Sales and Finance users only the quotes they own;
// Managers and privileged users see the whole organization.
func (s *quoteService) ListQuotes(ctx context.Context, actor Identity, q QuoteQuery) ([]model.Quote, int64, error) {
	filter := repository.QuoteFilter{
		OrganizationID: actor.OrganizationID,
		Status:         q.Status,
		Search:         q.Search,
		Page:           q.Page,
		Limit:          q.Limit,
	}
	if !actor.Privileged && actor.Role != string(approval.RoleManager) {
		owner := actor.UserID
		filter.OwnerID = &owner
	}
	quotes, total, err := s.Quotes.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list quotes: %w", err)
	}
	return quotes, total, nil
}

func (s *quoteService) Recalculate(ctx context.Context, actor Identity, id uuid.UUID) (pricing.Result, error) {
	var result pricing.Result
	err := s.TM.RunInTx(ctx, func(txCtx context.Context) error {
		quote, err := s.lockQuote(txCtx, actor, id)
		if err != nil {
			return err
		}
		result, err = s.recompute(txCtx, quote)
		return err
	})
	return result, err
}

func (s *quoteService) Preview(ctx context.Context, actor Identity, req PreviewRequest) (pricing.Result, error) {
	start := time.Now()

	var productIDs []uuid.UUID
	productOf := make([]*uuid.UUID, len(req.Lines))
	for i, l := range req.Lines {
		if l.Empty() || l.Category != "" {
			continue
		}
		pid, err := parseOptionalUUID("product", &req.Lines[i].ProductID)
		if err != nil {
			return pricing.Result{}, err
		}
		if pid != nil {
			productOf[i] = pid
			productIDs = append(productIDs, *pid)
		}
	}
	categories := map[uuid.UUID]string{}
	if len(productIDs) > 0 {
		var err error
		if categories, err = s.Products.CategoriesByIDs(ctx, actor.OrganizationID, productIDs); err != nil {
			return pricing.Result{}, fmt.Errorf("failed to fetch product categories: %w", err)
		}
	}

	in := pricing.Input{CustomerGroup: req.CustomerGroup}
	for i, l := range req.Lines {
		if l.Empty() {
			continue
		}
		line, err := toPricingLine(l)
		if err != nil {
			return pricing.Result{}, err
		}
		if line.Category == "" && productOf[i] != nil {
			line.Category = categories[*productOf[i]]
		}
		in.Lines = append(in.Lines, line)
	}

	rules, err := s.Catalog.Rules(ctx, actor.OrganizationID)
	if err != nil {
		return pricing.Result{}, fmt.Errorf("failed to load pricing rules: %w", err)
	}
	in.Rules = rules

	result := s.Engine.Calculate(in)
	s.Metrics.ObserveRecalculation(metrics.PathPreview, time.Since(start))
	return result, nil
}

// Transition sets the quote status for send and convert. Totals are not
// touched.
func (s *quoteService) Transition(ctx context.Context, actor Identity, id uuid.UUID, action string) (TransitionResult, error) {
	var status, auditAction, event string
	switch action {
	case ActionSend:
		status, auditAction, event = model.QuoteStatusSent, model.ActionSent, websocket.EventQuoteSent
	case ActionConvert:
		status, auditAction, event = model.QuoteStatusConverted, model.ActionConverted, websocket.EventQuoteConverted
	default:
		return TransitionResult{}, apperror.ErrInvalidAction.WithMessage(fmt.Sprintf("unknown quote action %q", action))
	}

	var quote *model.Quote
	var previous string
	err := s.TM.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if quote, err = s.lockQuote(txCtx, actor, id); err != nil {
			return err
		}
		previous = quote.Status
		if err := s.Quotes.UpdateStatus(txCtx, quote.ID, status); err != nil {
			return fmt.Errorf("failed to update quote status: %w", err)
		}
		return nil
	})
	if err != nil {
		return TransitionResult{}, err
	}

	s.Audit.Record(AuditEntry{
		OrganizationID: actor.OrganizationID,
		Entity:         model.EntityQuote,
		EntityID:       id.String(),
		Action:         auditAction,
		Field:          "status",
		OldValue:       previous,
		NewValue:       status,
		UserID:         actor.UserID,
	})
	s.Notifier.Publish(websocket.Event{
		Type:           event,
		OrganizationID: actor.OrganizationID,
		QuoteID:        id,
		Number:         quote.Number,
		Status:         status,
		ActorID:        actor.UserID,
	})
	return TransitionResult{Status: auditAction}, nil
}

// --- Helpers ---

func (s *quoteService) lockQuote(ctx context.Context, actor Identity, id uuid.UUID) (*model.Quote, error) {
	quote, err := s.Quotes.FindByIDForUpdate(ctx, actor.OrganizationID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrQuoteNotFound
		}
		return nil, fmt.Errorf("failed to lock quote: %w", err)
	}
	return quote, nil
}

// recompute prices the quote's stored lines and writes the four totals.
// It must run inside the transaction that wrote the lines.
func (s *quoteService) recompute(ctx context.Context, quote *model.Quote) (pricing.Result, error) {
	start := time.Now()

	lines, err := s.Quotes.FindLines(ctx, quote.ID)
	if err != nil {
		return pricing.Result{}, fmt.Errorf("failed to fetch quote lines: %w", err)
	}

	in := pricing.Input{Lines: make([]pricing.Line, 0, len(lines))}
	for _, l := range lines {
		line := pricing.Line{
			Quantity:        l.Quantity,
			UnitPrice:       l.UnitPrice,
			DiscountPercent: l.DiscountPercent,
			TaxPercent:      l.TaxPercent,
		}
		if l.Product != nil {
			line.Category = l.Product.Category
		}
		in.Lines = append(in.Lines, line)
	}

	customer, err := s.Partners.FindByID(ctx, quote.OrganizationID, quote.CustomerID)
	switch {
	case err == nil:
		in.CustomerGroup = customer.Group
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return pricing.Result{}, fmt.Errorf("failed to fetch customer: %w", err)
	}

	if in.Rules, err = s.Catalog.Rules(ctx, quote.OrganizationID); err != nil {
		return pricing.Result{}, fmt.Errorf("failed to load pricing rules: %w", err)
	}

	result := s.Engine.Calculate(in)
	t := result.Totals
	if err := s.Quotes.UpdateTotals(ctx, quote.ID, t.Subtotal, t.DiscountTotal, t.TaxTotal, t.Total); err != nil {
		return pricing.Result{}, fmt.Errorf("failed to update quote totals: %w", err)
	}
	quote.Subtotal, quote.DiscountTotal, quote.TaxTotal, quote.Total = t.Subtotal, t.DiscountTotal, t.TaxTotal, t.Total

	s.Metrics.ObserveRecalculation(metrics.PathPersisted, time.Since(start))
	return result, nil
}

// buildLines converts payload lines to models, skipping empty objects and
// applying defaults. Product references must belong to orgID.
func (s *quoteService) buildLines(ctx context.Context, orgID uuid.UUID, payload *[]QuoteLinePayload) ([]model.QuoteLine, error) {
	if payload == nil {
		return nil, nil
	}
	lines := make([]model.QuoteLine, 0, len(*payload))
	for i := range *payload {
		p := (*payload)[i]
		if p.Empty() {
			continue
		}
		priced, err := toPricingLine(p)
		if err != nil {
			return nil, err
		}
		productID, err := parseOptionalUUID("product", &p.ProductID)
		if err != nil {
			return nil, err
		}
		if productID != nil {
			if _, err := s.Products.FindByID(ctx, orgID, *productID); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, apperror.ErrInvalidInput.WithMessage("product not found: " + productID.String())
				}
				return nil, fmt.Errorf("failed to fetch product: %w", err)
			}
		}
		name := p.Name
		if name == "" {
			name = DefaultLineName
		}
		lines = append(lines, model.QuoteLine{
			ProductID:       productID,
			Name:            name,
			Quantity:        priced.Quantity,
			UnitPrice:       priced.UnitPrice,
			DiscountPercent: priced.DiscountPercent,
			TaxPercent:      priced.TaxPercent,
		})
	}
	return lines, nil
}

// toPricingLine applies line defaults and range checks. Values are rounded
// to the scale of the quote_lines columns so a preview prices exactly what
// a save would persist.
func toPricingLine(p QuoteLinePayload) (pricing.Line, error) {
	line := pricing.Line{
		Quantity:        decimalOr(p.Quantity, defaultLineQuantity).Round(lineScale),
		UnitPrice:       decimalOr(p.UnitPrice, decimal.Zero).Round(lineScale),
		DiscountPercent: decimalOr(p.DiscountPercent, decimal.Zero).Round(lineScale),
		TaxPercent:      decimalOr(p.TaxPercent, decimal.Zero).Round(lineScale),
		Category:        p.Category,
	}
	switch {
	case line.Quantity.IsNegative():
		return line, apperror.ErrInvalidInput.WithMessage("quantity: Must be greater than or equal to 0")
	case line.UnitPrice.IsNegative():
		return line, apperror.ErrInvalidInput.WithMessage("unit_price: Must be greater than or equal to 0")
	case line.DiscountPercent.IsNegative() || line.DiscountPercent.GreaterThan(maxPercent):
		return line, apperror.ErrInvalidInput.WithMessage("discount: Must be between 0 and 100")
	case line.TaxPercent.IsNegative() || line.TaxPercent.GreaterThan(maxPercent):
		return line, apperror.ErrInvalidInput.WithMessage("tax: Must be between 0 and 100")
	}
	return line, nil
}

// applyQuoteFields copies the scalar fields present in payload onto quote
// and reports what changed. Customer is handled by the caller.
func applyQuoteFields(quote *model.Quote, payload QuotePayload) ([]fieldChange, error) {
	var changes []fieldChange
	setString := func(field string, dst *string, src *string) {
		if src != nil && *src != *dst {
			changes = append(changes, fieldChange{field: field, old: *dst, new: *src})
			*dst = *src
		}
	}

	if payload.OpportunityID != nil {
		id, err := parseOptionalUUID("opportunity", payload.OpportunityID)
		if err != nil {
			return nil, err
		}
		if uuidString(quote.OpportunityID) != uuidString(id) {
			changes = append(changes, fieldChange{field: "opportunity", old: uuidString(quote.OpportunityID), new: uuidString(id)})
		}
		quote.OpportunityID = id
	}
	if payload.OwnerID != nil {
		id, err := parseOptionalUUID("owner", payload.OwnerID)
		if err != nil {
			return nil, err
		}
		if id != nil {
			if uuidString(quote.OwnerID) != id.String() {
				changes = append(changes, fieldChange{field: "owner", old: uuidString(quote.OwnerID), new: id.String()})
			}
			quote.OwnerID = id
		}
	}
	if payload.ValidUntil != nil {
		t, err := parseOptionalDate("valid_until", payload.ValidUntil)
		if err != nil {
			return nil, err
		}
		if dateString(quote.ValidUntil) != dateString(t) {
			changes = append(changes, fieldChange{field: "valid_until", old: dateString(quote.ValidUntil), new: dateString(t)})
		}
		quote.ValidUntil = t
	}
	if payload.Currency != nil && *payload.Currency != "" {
		setString("currency", &quote.Currency, payload.Currency)
	}
	setString("payment_terms", &quote.PaymentTerms, payload.PaymentTerms)
	setString("delivery_terms", &quote.DeliveryTerms, payload.DeliveryTerms)
	setString("notes", &quote.Notes, payload.Notes)
	return changes, nil
}

func uuidString(id *uuid.UUID) string {
	if id == nil {
		return ""
	}
	return id.String()
}

func dateString(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
