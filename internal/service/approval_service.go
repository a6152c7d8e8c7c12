package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crm/internal/apperror"
	"crm/internal/approval"
	"crm/internal/metrics"
	"crm/internal/model"
	"crm/internal/repository"
	"crm/internal/websocket"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Decision keywords returned to clients.
const (
	DecisionApproved    = "approved"
	DecisionRejected    = "rejected"
	DecisionUnderReview = "under_review"
)

// Step actions accepted by ActOnStep.
const (
	StepActionApprove  = "approve"
	StepActionReject   = "reject"
	StepActionResubmit = "resubmit"
)

// --- DTOs ---

type ApprovalDecision struct {
	Status string `json:"status"`
	Role   string `json:"role,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// DecisionRequest is the body of approve and reject. An empty role
// defaults to the actor's own role.
type DecisionRequest struct {
	Role   string `json:"role"`
	Reason string `json:"reason"`
}

// StepActionRequest decides a step addressed by its id.
type StepActionRequest struct {
	Action  string `json:"action" validate:"required,oneof=approve reject resubmit"`
	Comment string `json:"comment"`
}

// --- Interface ---

// ApprovalService keeps a quote and its approval instance consistent.
// Every mutation locks the quote row, applies one workflow transition and
// writes step, instance and quote status in the same transaction.
type ApprovalService interface {
	RequestApproval(ctx context.Context, actor Identity, quoteID uuid.UUID) (*model.ApprovalInstance, error)
	Approve(ctx context.Context, actor Identity, quoteID uuid.UUID, req DecisionRequest) (ApprovalDecision, error)
	Reject(ctx context.Context, actor Identity, quoteID uuid.UUID, req DecisionRequest) (ApprovalDecision, error)
	Resubmit(ctx context.Context, actor Identity, quoteID uuid.UUID) (ApprovalDecision, error)
	ActOnStep(ctx context.Context, actor Identity, stepID uuid.UUID, req StepActionRequest) (ApprovalDecision, error)
	GetInstance(ctx context.Context, actor Identity, quoteID uuid.UUID) (*model.ApprovalInstance, error)
	ListPending(ctx context.Context, actor Identity, page, limit int) ([]repository.PendingStep, int64, error)
}

type ApprovalDeps struct {
	TM        repository.TransactionManager
	Quotes    repository.QuoteRepository
	Approvals repository.ApprovalRepository
	Audit     AuditSink
	Notifier  Notifier
	Metrics   *metrics.Recorder
	Log       *zap.Logger
	// Now is overridable in tests.
	Now func() time.Time
}

type approvalService struct {
	ApprovalDeps
}

func NewApprovalService(deps ApprovalDeps) ApprovalService {
	if deps.Notifier == nil {
		deps.Notifier = nopNotifier{}
	}
	if deps.Log == nil {
		deps.Log = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	deps.Log = deps.Log.Named("approvals")
	return &approvalService{ApprovalDeps: deps}
}

// --- Implementation ---

// RequestApproval gets or creates the quote's instance and regenerates
// its steps, discarding any progress from an earlier cycle.
func (s *approvalService) RequestApproval(ctx context.Context, actor Identity, quoteID uuid.UUID) (*model.ApprovalInstance, error) {
	var quote *model.Quote
	var snapshot string

	err := s.TM.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		if quote, err = s.lockQuote(txCtx, actor, quoteID); err != nil {
			return err
		}

		instance, err := s.Approvals.FindInstanceByQuote(txCtx, quote.ID)
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			instance = &model.ApprovalInstance{
				OrganizationID: quote.OrganizationID,
				QuoteID:        quote.ID,
				Status:         string(approval.StatusWaiting),
			}
			if err := s.Approvals.CreateInstance(txCtx, instance); err != nil {
				return fmt.Errorf("failed to create approval instance: %w", err)
			}
		case err != nil:
			return fmt.Errorf("failed to fetch approval instance: %w", err)
		default:
			snapshot = stepSnapshot(instance.Steps)
		}

		wf := approval.New(s.Now())
		if err := s.Approvals.ReplaceSteps(txCtx, instance.ID, toStepModels(wf)); err != nil {
			return fmt.Errorf("failed to reset approval steps: %w", err)
		}
		return s.writeStatus(txCtx, quote.ID, instance.ID, wf.Status)
	})
	if err != nil {
		s.transitionFailed("request_approval", quoteID, "", actor, err)
		return nil, err
	}

	s.transitionDone("request_approval", quote, "", actor, string(approval.StatusWaiting))
	s.Audit.Record(AuditEntry{
		OrganizationID: actor.OrganizationID,
		Entity:         model.EntityQuote,
		EntityID:       quote.ID.String(),
		Action:         model.ActionRequestApproval,
		Field:          "steps",
		OldValue:       snapshot,
		NewValue:       model.QuoteStatusUnderReview,
		UserID:         actor.UserID,
	})
	s.publish(websocket.EventApprovalRequested, quote, "", actor)

	return s.loadInstance(ctx, quote.ID)
}

func (s *approvalService) Approve(ctx context.Context, actor Identity, quoteID uuid.UUID, req DecisionRequest) (ApprovalDecision, error) {
	role, err := s.decisionRole(actor, req.Role)
	if err != nil {
		s.transitionFailed(StepActionApprove, quoteID, req.Role, actor, err)
		return ApprovalDecision{}, err
	}

	var quote *model.Quote
	var final approval.Status
	err = s.mutate(ctx, actor, quoteID, func(q *model.Quote, wf *approval.Workflow) error {
		quote = q
		if err := wf.Approve(role, actor.Actor(), s.Now()); err != nil {
			return err
		}
		final = wf.Status
		return nil
	})
	if err != nil {
		s.transitionFailed(StepActionApprove, quoteID, string(role), actor, err)
		return ApprovalDecision{}, err
	}

	s.transitionDone(StepActionApprove, quote, role, actor, string(final))
	s.Audit.Record(AuditEntry{
		OrganizationID: actor.OrganizationID,
		Entity:         model.EntityQuote,
		EntityID:       quote.ID.String(),
		Action:         model.ActionApprovedPrefix + string(role),
		UserID:         actor.UserID,
	})
	s.publish(websocket.EventApprovalApproved, quote, role, actor)
	return ApprovalDecision{Status: DecisionApproved, Role: string(role)}, nil
}

func (s *approvalService) Reject(ctx context.Context, actor Identity, quoteID uuid.UUID, req DecisionRequest) (ApprovalDecision, error) {
	role, err := s.decisionRole(actor, req.Role)
	if err != nil {
		s.transitionFailed(StepActionReject, quoteID, req.Role, actor, err)
		return ApprovalDecision{}, err
	}

	var quote *model.Quote
	err = s.mutate(ctx, actor, quoteID, func(q *model.Quote, wf *approval.Workflow) error {
		quote = q
		return wf.Reject(role, actor.Actor(), req.Reason, s.Now())
	})
	if err != nil {
		s.transitionFailed(StepActionReject, quoteID, string(role), actor, err)
		return ApprovalDecision{}, err
	}

	s.transitionDone(StepActionReject, quote, role, actor, string(approval.StatusRejected))
	s.Audit.Record(AuditEntry{
		OrganizationID: actor.OrganizationID,
		Entity:         model.EntityQuote,
		EntityID:       quote.ID.String(),
		Action:         model.ActionRejectedPrefix + string(role),
		Field:          "reason",
		NewValue:       req.Reason,
		UserID:         actor.UserID,
	})
	s.publish(websocket.EventApprovalRejected, quote, role, actor)
	return ApprovalDecision{Status: DecisionRejected, Role: string(role), Reason: req.Reason}, nil
}

// Resubmit returns every step to Waiting, whatever its prior state.
func (s *approvalService) Resubmit(ctx context.Context, actor Identity, quoteID uuid.UUID) (ApprovalDecision, error) {
	var quote *model.Quote
	var snapshot string
	err := s.mutate(ctx, actor, quoteID, func(q *model.Quote, wf *approval.Workflow) error {
		quote = q
		snapshot = workflowSnapshot(wf)
		wf.Resubmit(s.Now())
		return nil
	})
	if err != nil {
		s.transitionFailed(StepActionResubmit, quoteID, "", actor, err)
		return ApprovalDecision{}, err
	}

	s.transitionDone(StepActionResubmit, quote, "", actor, string(approval.StatusWaiting))
	s.Audit.Record(AuditEntry{
		OrganizationID: actor.OrganizationID,
		Entity:         model.EntityQuote,
		EntityID:       quote.ID.String(),
		Action:         model.ActionResubmitted,
		Field:          "steps",
		OldValue:       snapshot,
		NewValue:       model.QuoteStatusUnderReview,
		UserID:         actor.UserID,
	})
	s.publish(websocket.EventApprovalResubmitted, quote, "", actor)
	return ApprovalDecision{Status: DecisionUnderReview}, nil
}

// ActOnStep resolves the step's quote and role, then approves, rejects or
// resubmits through the same checks as Approve, Reject and Resubmit.
func (s *approvalService) ActOnStep(ctx context.Context, actor Identity, stepID uuid.UUID, req StepActionRequest) (ApprovalDecision, error) {
	if err := validateStruct(req); err != nil {
		return ApprovalDecision{}, err
	}
	step, instance, err := s.Approvals.FindStep(ctx, actor.OrganizationID, stepID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ApprovalDecision{}, apperror.ErrStepNotFound.WithMessage("Approval step not found")
		}
		return ApprovalDecision{}, fmt.Errorf("failed to fetch approval step: %w", err)
	}

	decision := DecisionRequest{Role: step.Role, Reason: req.Comment}
	switch req.Action {
	case StepActionApprove:
		return s.Approve(ctx, actor, instance.QuoteID, decision)
	case StepActionResubmit:
		return s.Resubmit(ctx, actor, instance.QuoteID)
	default:
		return s.Reject(ctx, actor, instance.QuoteID, decision)
	}
}

func (s *approvalService) GetInstance(ctx context.Context, actor Identity, quoteID uuid.UUID) (*model.ApprovalInstance, error) {
	if _, err := s.Quotes.FindByID(ctx, actor.OrganizationID, quoteID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrQuoteNotFound
		}
		return nil, fmt.Errorf("failed to fetch quote: %w", err)
	}
	instance, err := s.Approvals.FindInstanceByQuote(ctx, quoteID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrApprovalNotStarted
		}
		return nil, fmt.Errorf("failed to fetch approval instance: %w", err)
	}
	return instance, nil
}

// ListPending lists the Waiting steps for the actor's role. Privileged
// actors without a chain role see nothing.
func (s *approvalService) ListPending(ctx context.Context, actor Identity, page, limit int) ([]repository.PendingStep, int64, error) {
	if !approval.Role(actor.Role).Valid() {
		return []repository.PendingStep{}, 0, nil
	}
	steps, total, err := s.Approvals.ListPendingSteps(ctx, actor.OrganizationID, actor.Role, page, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pending approvals: %w", err)
	}
	return steps, total, nil
}

// --- Helpers ---

// mutate loads the locked quote and its workflow, applies fn, and writes
// the resulting steps and statuses. Nothing is written when fn fails.
func (s *approvalService) mutate(ctx context.Context, actor Identity, quoteID uuid.UUID, fn func(*model.Quote, *approval.Workflow) error) error {
	return s.TM.RunInTx(ctx, func(txCtx context.Context) error {
		quote, err := s.lockQuote(txCtx, actor, quoteID)
		if err != nil {
			return err
		}
		instance, err := s.Approvals.FindInstanceByQuote(txCtx, quote.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperror.ErrApprovalNotStarted
			}
			return fmt.Errorf("failed to fetch approval instance: %w", err)
		}

		wf := toWorkflow(instance)
		if err := fn(quote, wf); err != nil {
			return err
		}

		applyWorkflow(instance, wf)
		if err := s.Approvals.SaveSteps(txCtx, instance.Steps); err != nil {
			return fmt.Errorf("failed to save approval steps: %w", err)
		}
		return s.writeStatus(txCtx, quote.ID, instance.ID, wf.Status)
	})
}

// writeStatus co-assigns instance and quote status.
func (s *approvalService) writeStatus(ctx context.Context, quoteID, instanceID uuid.UUID, status approval.Status) error {
	if err := s.Approvals.UpdateInstanceStatus(ctx, instanceID, string(status)); err != nil {
		return fmt.Errorf("failed to update approval status: %w", err)
	}
	if err := s.Quotes.UpdateStatus(ctx, quoteID, quoteStatusFor(status)); err != nil {
		return fmt.Errorf("failed to update quote status: %w", err)
	}
	return nil
}

func (s *approvalService) lockQuote(ctx context.Context, actor Identity, id uuid.UUID) (*model.Quote, error) {
	quote, err := s.Quotes.FindByIDForUpdate(ctx, actor.OrganizationID, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrQuoteNotFound
		}
		return nil, fmt.Errorf("failed to lock quote: %w", err)
	}
	return quote, nil
}

func (s *approvalService) loadInstance(ctx context.Context, quoteID uuid.UUID) (*model.ApprovalInstance, error) {
	instance, err := s.Approvals.FindInstanceByQuote(ctx, quoteID)
	if err != nil {
		return nil, fmt.Errorf("failed to reload approval instance: %w", err)
	}
	return instance, nil
}

// decisionRole authorizes the actor for the requested role before anything
// is loaded, then resolves it against the chain.
func (s *approvalService) decisionRole(actor Identity, requested string) (approval.Role, error) {
	requested = strings.TrimSpace(requested)
	if requested == "" {
		requested = actor.Role
	}
	if !actor.Privileged && !strings.EqualFold(requested, actor.Role) {
		return "", apperror.ErrRoleMismatch
	}
	return approval.ParseRole(requested)
}

func (s *approvalService) transitionDone(action string, quote *model.Quote, role approval.Role, actor Identity, status string) {
	s.Metrics.ApprovalTransition(action, "ok")
	s.Log.Info("approval transition",
		zap.String("action", action),
		zap.String("quote_id", quote.ID.String()),
		zap.String("role", string(role)),
		zap.String("actor_id", actor.UserID.String()),
		zap.String("status", status))
}

func (s *approvalService) transitionFailed(action string, quoteID uuid.UUID, role string, actor Identity, err error) {
	outcome := apperror.CodeOf(err)
	if outcome == "" {
		outcome = "error"
		s.Log.Error("approval transition failed",
			zap.String("action", action),
			zap.String("quote_id", quoteID.String()),
			zap.Error(err))
	} else {
		s.Log.Info("approval transition refused",
			zap.String("action", action),
			zap.String("quote_id", quoteID.String()),
			zap.String("role", role),
			zap.String("actor_id", actor.UserID.String()),
			zap.String("code", outcome))
	}
	s.Metrics.ApprovalTransition(action, outcome)
}

func (s *approvalService) publish(eventType string, quote *model.Quote, role approval.Role, actor Identity) {
	s.Notifier.Publish(websocket.Event{
		Type:           eventType,
		OrganizationID: quote.OrganizationID,
		QuoteID:        quote.ID,
		Number:         quote.Number,
		Role:           string(role),
		ActorID:        actor.UserID,
	})
}

// quoteStatusFor maps an instance status onto the quote.
func quoteStatusFor(status approval.Status) string {
	switch status {
	case approval.StatusApproved:
		return model.QuoteStatusApproved
	case approval.StatusRejected:
		return model.QuoteStatusRejected
	default:
		return model.QuoteStatusUnderReview
	}
}

func toWorkflow(instance *model.ApprovalInstance) *approval.Workflow {
	wf := &approval.Workflow{Status: approval.Status(instance.Status)}
	for _, st := range instance.Steps {
		wf.Steps = append(wf.Steps, approval.Step{
			Role:      approval.Role(st.Role),
			Status:    approval.Status(st.Status),
			Comment:   st.Comment,
			ActedBy:   st.ActedBy,
			UpdatedAt: st.UpdatedAt,
		})
	}
	return wf
}

// applyWorkflow copies step decisions back onto the persisted rows,
// matching by role.
func applyWorkflow(instance *model.ApprovalInstance, wf *approval.Workflow) {
	instance.Status = string(wf.Status)
	for i := range instance.Steps {
		st := wf.Step(approval.Role(instance.Steps[i].Role))
		if st == nil {
			continue
		}
		instance.Steps[i].Status = string(st.Status)
		instance.Steps[i].Comment = st.Comment
		instance.Steps[i].ActedBy = st.ActedBy
		instance.Steps[i].UpdatedAt = st.UpdatedAt
	}
}

func toStepModels(wf *approval.Workflow) []model.ApprovalStep {
	steps := make([]model.ApprovalStep, 0, len(wf.Steps))
	for i, st := range wf.Steps {
		steps = append(steps, model.ApprovalStep{
			Position:  i,
			Role:      string(st.Role),
			Status:    string(st.Status),
			UpdatedAt: st.UpdatedAt,
		})
	}
	return steps
}

// stepSnapshot renders steps as "Sales=Approved,Manager=Waiting,...".
func stepSnapshot(steps []model.ApprovalStep) string {
	parts := make([]string, 0, len(steps))
	for _, st := range steps {
		parts = append(parts, st.Role+"="+st.Status)
	}
	return strings.Join(parts, ",")
}

func workflowSnapshot(wf *approval.Workflow) string {
	parts := make([]string, 0, len(wf.Steps))
	for _, st := range wf.Steps {
		parts = append(parts, string(st.Role)+"="+string(st.Status))
	}
	return strings.Join(parts, ",")
}
