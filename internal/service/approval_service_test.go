package service

import (
	"context"
	"testing"

	"crm/internal/apperror"
	"crm/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (h *harness) requestApproval(t *testing.T, q *model.Quote) *model.ApprovalInstance {
	t.Helper()
	inst, err := h.approvals.RequestApproval(context.Background(), h.sales(), q.ID)
	require.NoError(t, err)
	return inst
}

func (h *harness) quoteStatus(t *testing.T, id uuid.UUID) string {
	t.Helper()
	q, err := h.quotes.GetQuote(context.Background(), h.sales(), id)
	require.NoError(t, err)
	return q.Status
}

func (h *harness) instance(t *testing.T, quoteID uuid.UUID) *model.ApprovalInstance {
	t.Helper()
	inst, err := h.approvals.GetInstance(context.Background(), h.sales(), quoteID)
	require.NoError(t, err)
	return inst
}

func stepStatuses(inst *model.ApprovalInstance) map[string]string {
	out := make(map[string]string, len(inst.Steps))
	for _, st := range inst.Steps {
		out[st.Role] = st.Status
	}
	return out
}

func TestRequestApproval(t *testing.T) {
	h := newHarness(t)
	q := h.createQuote(t, standardLine())

	inst := h.requestApproval(t, q)

	assert.Equal(t, "Waiting", inst.Status)
	require.Len(t, inst.Steps, 3)
	assert.Equal(t, []string{"Sales", "Manager", "Finance"}, []string{inst.Steps[0].Role, inst.Steps[1].Role, inst.Steps[2].Role})
	for _, st := range inst.Steps {
		assert.Equal(t, "Waiting", st.Status)
	}
	assert.Equal(t, model.QuoteStatusUnderReview, h.quoteStatus(t, q.ID))
}

func TestApprovalChain_InOrder(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	q := h.createQuote(t, standardLine())
	h.requestApproval(t, q)

	_, err := h.approvals.Approve(ctx, h.manager(), q.ID, DecisionRequest{Role: "Manager"})
	require.ErrorIs(t, err, apperror.ErrPreviousStepPending)
	assert.Equal(t, "Waiting", stepStatuses(h.instance(t, q.ID))["Manager"], "refused approval writes nothing")

	res, err := h.approvals.Approve(ctx, h.sales(), q.ID, DecisionRequest{Role: "Sales"})
	require.NoError(t, err)
	assert.Equal(t, ApprovalDecision{Status: DecisionApproved, Role: "Sales"}, res)

	_, err = h.approvals.Approve(ctx, h.manager(), q.ID, DecisionRequest{Role: "Manager"})
	require.NoError(t, err)
	assert.Equal(t, model.QuoteStatusUnderReview, h.quoteStatus(t, q.ID))
	assert.Equal(t, "Waiting", h.instance(t, q.ID).Status)

	// An empty role defaults to the actor's own.
	_, err = h.approvals.Approve(ctx, h.finance(), q.ID, DecisionRequest{})
	require.NoError(t, err)

	inst := h.instance(t, q.ID)
	assert.Equal(t, "Approved", inst.Status)
	assert.Equal(t, model.QuoteStatusApproved, h.quoteStatus(t, q.ID))
	for _, st := range inst.Steps {
		assert.Equal(t, "Approved", st.Status)
		require.NotNil(t, st.ActedBy)
	}
	assert.Equal(t, h.tn.Finance.ID, *inst.Steps[2].ActedBy)

	actions := h.auditActions(t, q.ID.String())
	assert.Contains(t, actions, "approved_Sales")
	assert.Contains(t, actions, "approved_Manager")
	assert.Contains(t, actions, "approved_Finance")
	assert.Equal(t, []string{"approval.requested", "approval.approved", "approval.approved", "approval.approved"}, h.notifier.types())
}

func TestApprovalChain_FinanceBeforeManager(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	q := h.createQuote(t, standardLine())
	h.requestApproval(t, q)

	_, err := h.approvals.Approve(ctx, h.sales(), q.ID, DecisionRequest{Role: "Sales"})
	require.NoError(t, err)

	_, err = h.approvals.Approve(ctx, h.finance(), q.ID, DecisionRequest{Role: "Finance"})
	assert.ErrorIs(t, err, apperror.ErrPreviousStepPending)
}

func TestReject_ThenResubmit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	q := h.createQuote(t, standardLine())
	h.requestApproval(t, q)

	_, err := h.approvals.Approve(ctx, h.sales(), q.ID, DecisionRequest{Role: "Sales"})
	require.NoError(t, err)

	res, err := h.approvals.Reject(ctx, h.manager(), q.ID, DecisionRequest{Role: "Manager", Reason: "budget"})
	require.NoError(t, err)
	assert.Equal(t, ApprovalDecision{Status: DecisionRejected, Role: "Manager", Reason: "budget"}, res)

	inst := h.instance(t, q.ID)
	assert.Equal(t, "Rejected", inst.Status)
	assert.Equal(t, model.QuoteStatusRejected, h.quoteStatus(t, q.ID))
	assert.Equal(t, "budget", inst.Steps[1].Comment)
	assert.Equal(t, "Waiting", inst.Steps[2].Status)

	// The closed workflow refuses further decisions.
	_, err = h.approvals.Approve(ctx, h.finance(), q.ID, DecisionRequest{Role: "Finance"})
	assert.ErrorIs(t, err, apperror.ErrWorkflowClosed)

	res, err = h.approvals.Resubmit(ctx, h.sales(), q.ID)
	require.NoError(t, err)
	assert.Equal(t, DecisionUnderReview, res.Status)

	inst = h.instance(t, q.ID)
	assert.Equal(t, "Waiting", inst.Status)
	assert.Equal(t, model.QuoteStatusUnderReview, h.quoteStatus(t, q.ID))
	for _, st := range inst.Steps {
		assert.Equal(t, "Waiting", st.Status)
		assert.Empty(t, st.Comment)
		assert.Nil(t, st.ActedBy)
	}

	h.sink.Stop()
	var resubmitted model.AuditLog
	require.NoError(t, h.db.Where("entity_id = ? AND action = ?", q.ID.String(), model.ActionResubmitted).First(&resubmitted).Error)
	assert.Equal(t, "Sales=Approved,Manager=Rejected,Finance=Waiting", resubmitted.OldValue)

	var rejected model.AuditLog
	require.NoError(t, h.db.Where("entity_id = ? AND action = ?", q.ID.String(), "rejected_Manager").First(&rejected).Error)
	assert.Equal(t, "reason", rejected.Field)
	assert.Equal(t, "budget", rejected.NewValue)
}

func TestRequestApproval_ResetsProgress(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	q := h.createQuote(t, standardLine())
	first := h.requestApproval(t, q)

	_, err := h.approvals.Approve(ctx, h.sales(), q.ID, DecisionRequest{Role: "Sales"})
	require.NoError(t, err)

	second := h.requestApproval(t, q)
	assert.Equal(t, first.ID, second.ID, "instance is reused")
	assert.Equal(t, "Waiting", stepStatuses(second)["Sales"])
	assert.NotEqual(t, first.Steps[0].ID, second.Steps[0].ID, "steps are regenerated")

	var count int64
	require.NoError(t, h.db.Model(&model.ApprovalStep{}).Count(&count).Error)
	assert.Equal(t, int64(3), count)
}

func TestApprove_Authorization(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	q := h.createQuote(t, standardLine())
	h.requestApproval(t, q)

	_, err := h.approvals.Approve(ctx, h.sales(), q.ID, DecisionRequest{Role: "Manager"})
	assert.ErrorIs(t, err, apperror.ErrRoleMismatch)
	kind, _ := apperror.KindOf(err)
	assert.Equal(t, apperror.KindAuthorization, kind)

	_, err = h.approvals.Reject(ctx, h.finance(), q.ID, DecisionRequest{Role: "Sales", Reason: "x"})
	assert.ErrorIs(t, err, apperror.ErrRoleMismatch)

	_, err = h.approvals.Approve(ctx, h.sales(), q.ID, DecisionRequest{Role: "Legal"})
	assert.ErrorIs(t, err, apperror.ErrRoleMismatch)

	// A role outside the chain has no step: a workflow violation, not bad input.
	_, err = h.approvals.Approve(ctx, h.admin(), q.ID, DecisionRequest{Role: "Director"})
	assert.ErrorIs(t, err, apperror.ErrStepNotFound)
	kind, _ = apperror.KindOf(err)
	assert.Equal(t, apperror.KindWorkflow, kind)

	// The override role may act for any role but not skip the order.
	_, err = h.approvals.Approve(ctx, h.admin(), q.ID, DecisionRequest{Role: "Finance"})
	assert.ErrorIs(t, err, apperror.ErrPreviousStepPending)
	for _, role := range []string{"Sales", "Manager", "Finance"} {
		_, err = h.approvals.Approve(ctx, h.admin(), q.ID, DecisionRequest{Role: role})
		require.NoError(t, err, role)
	}
	assert.Equal(t, model.QuoteStatusApproved, h.quoteStatus(t, q.ID))
}

func TestApprovalActions_WithoutInstance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	q := h.createQuote(t, standardLine())

	_, err := h.approvals.Approve(ctx, h.sales(), q.ID, DecisionRequest{Role: "Sales"})
	assert.ErrorIs(t, err, apperror.ErrApprovalNotStarted)
	_, err = h.approvals.Resubmit(ctx, h.sales(), q.ID)
	assert.ErrorIs(t, err, apperror.ErrApprovalNotStarted)
	_, err = h.approvals.GetInstance(ctx, h.sales(), q.ID)
	assert.ErrorIs(t, err, apperror.ErrApprovalNotStarted)

	// The actor is authorized before the instance is looked up.
	_, err = h.approvals.Approve(ctx, h.sales(), q.ID, DecisionRequest{Role: "Finance"})
	assert.ErrorIs(t, err, apperror.ErrRoleMismatch)

	_, err = h.approvals.RequestApproval(ctx, h.sales(), uuid.New())
	assert.ErrorIs(t, err, apperror.ErrQuoteNotFound)
	assert.Equal(t, model.QuoteStatusDraft, h.quoteStatus(t, q.ID))
}

func TestActOnStep_AndPendingInbox(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	q := h.createQuote(t, standardLine())
	inst := h.requestApproval(t, q)

	pending, total, err := h.approvals.ListPending(ctx, h.sales(), 1, 20)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
	assert.Equal(t, q.Number, pending[0].QuoteNumber)
	assert.Equal(t, inst.Steps[0].ID, pending[0].ID)

	res, err := h.approvals.ActOnStep(ctx, h.sales(), pending[0].ID, StepActionRequest{Action: StepActionApprove})
	require.NoError(t, err)
	assert.Equal(t, "Sales", res.Role)

	_, total, err = h.approvals.ListPending(ctx, h.sales(), 1, 20)
	require.NoError(t, err)
	assert.Equal(t, int64(0), total)

	// The step id carries the role; the actor must still hold it.
	_, err = h.approvals.ActOnStep(ctx, h.sales(), inst.Steps[1].ID, StepActionRequest{Action: StepActionApprove})
	assert.ErrorIs(t, err, apperror.ErrRoleMismatch)

	res, err = h.approvals.ActOnStep(ctx, h.manager(), inst.Steps[1].ID, StepActionRequest{Action: StepActionReject, Comment: "too low"})
	require.NoError(t, err)
	assert.Equal(t, DecisionRejected, res.Status)
	assert.Equal(t, "too low", res.Reason)

	_, err = h.approvals.ActOnStep(ctx, h.manager(), inst.Steps[1].ID, StepActionRequest{Action: "escalate"})
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
	_, err = h.approvals.ActOnStep(ctx, h.manager(), uuid.New(), StepActionRequest{Action: StepActionApprove})
	assert.ErrorIs(t, err, apperror.ErrStepNotFound)

	pending, _, err = h.approvals.ListPending(ctx, h.admin(), 1, 20)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestActOnStep_Resubmit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	q := h.createQuote(t, standardLine())
	inst := h.requestApproval(t, q)

	_, err := h.approvals.Approve(ctx, h.sales(), q.ID, DecisionRequest{})
	require.NoError(t, err)
	_, err = h.approvals.Reject(ctx, h.manager(), q.ID, DecisionRequest{Reason: "margin"})
	require.NoError(t, err)

	res, err := h.approvals.ActOnStep(ctx, h.sales(), inst.Steps[1].ID, StepActionRequest{Action: StepActionResubmit})
	require.NoError(t, err)
	assert.Equal(t, DecisionUnderReview, res.Status)

	after := h.instance(t, q.ID)
	assert.Equal(t, "Waiting", after.Status)
	for _, st := range after.Steps {
		assert.Equal(t, "Waiting", st.Status)
		assert.Empty(t, st.Comment)
	}
	assert.Equal(t, model.QuoteStatusUnderReview, h.quoteStatus(t, q.ID))
}
