package service

import (
	"context"
	"testing"

	"crm/internal/metrics"
	"crm/internal/model"
	"crm/internal/pricing"
	"crm/internal/repository"
	"crm/internal/testutil"
	"crm/internal/websocket"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// recordingNotifier keeps published events for assertions.
type recordingNotifier struct {
	events []websocket.Event
}

func (n *recordingNotifier) Publish(ev websocket.Event) {
	n.events = append(n.events, ev)
}

func (n *recordingNotifier) types() []string {
	out := make([]string, 0, len(n.events))
	for _, ev := range n.events {
		out = append(out, ev.Type)
	}
	return out
}

type harness struct {
	db        *gorm.DB
	tn        testutil.Tenant
	sink      *AsyncAuditSink
	audits    repository.AuditRepository
	notifier  *recordingNotifier
	numbering NumberingService
	quotes    QuoteService
	approvals ApprovalService
	rules     PricingRuleService
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	tn := testutil.SeedTenant(t, db)

	tm := repository.NewTransactionManager(db)
	quoteRepo := repository.NewQuoteRepository(db)
	ruleRepo := repository.NewPricingRuleRepository(db)
	audits := repository.NewAuditRepository(db)
	rec := metrics.New()

	sink := NewAsyncAuditSink(audits, 64, nil, rec)
	sink.Start()
	t.Cleanup(sink.Stop)

	notifier := &recordingNotifier{}
	catalog := NewRuleCatalog(ruleRepo, nil, 0, nil)
	numbering := NewNumberingService(tm, repository.NewNumberRangeRepository(db), nil, rec)

	h := &harness{
		db:        db,
		tn:        tn,
		sink:      sink,
		audits:    audits,
		notifier:  notifier,
		numbering: numbering,
	}
	h.quotes = NewQuoteService(QuoteDeps{
		TM:        tm,
		Quotes:    quoteRepo,
		Partners:  repository.NewPartnerRepository(db),
		Products:  repository.NewProductRepository(db),
		Catalog:   catalog,
		Numbering: numbering,
		Customers: NewCustomerPolicy(repository.NewPartnerRepository(db)),
		Engine:    pricing.NewEngine(),
		Audit:     sink,
		Notifier:  notifier,
		Metrics:   rec,
	})
	h.approvals = NewApprovalService(ApprovalDeps{
		TM:        tm,
		Quotes:    quoteRepo,
		Approvals: repository.NewApprovalRepository(db),
		Audit:     sink,
		Notifier:  notifier,
		Metrics:   rec,
	})
	h.rules = NewPricingRuleService(ruleRepo, catalog, sink, nil)
	return h
}

func identityOf(u model.User) Identity {
	return Identity{
		UserID:         u.ID,
		OrganizationID: u.OrganizationID,
		Role:           u.Role,
		Privileged:     u.Role == "Admin",
	}
}

func (h *harness) sales() Identity   { return identityOf(h.tn.Sales) }
func (h *harness) manager() Identity { return identityOf(h.tn.Manager) }
func (h *harness) finance() Identity { return identityOf(h.tn.Finance) }
func (h *harness) admin() Identity   { return identityOf(h.tn.Admin) }

// auditActions stops the sink and returns the recorded actions for entity
// in insertion order.
func (h *harness) auditActions(t *testing.T, entityID string) []string {
	t.Helper()
	h.sink.Stop()
	var rows []model.AuditLog
	require.NoError(t, h.db.Where("entity_id = ?", entityID).Order("created_at ASC").Find(&rows).Error)
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.Action)
	}
	return out
}

func ptr[T any](v T) *T { return &v }

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func assertMoney(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	assert.True(t, decimal.RequireFromString(want).Equal(got), "want %s, got %s", want, got)
}

// createQuote creates a quote for the tenant's VIP customer.
func (h *harness) createQuote(t *testing.T, lines ...QuoteLinePayload) *model.Quote {
	t.Helper()
	q, err := h.quotes.CreateQuote(context.Background(), h.sales(), QuotePayload{
		CustomerID: ptr(h.tn.Customer.ID.String()),
		Lines:      &lines,
	})
	require.NoError(t, err)
	return q
}

func standardLine() QuoteLinePayload {
	return QuoteLinePayload{
		Name:       "Widget",
		Quantity:   dec("2"),
		UnitPrice:  dec("1200"),
		TaxPercent: dec("18"),
	}
}
