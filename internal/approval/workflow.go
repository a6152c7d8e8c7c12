// Package approval implements the sequential, role-gated approval chain
// attached to a quote. It holds no storage handles; callers load a
// Workflow, apply one transition and persist the result atomically.
package approval

import (
	"strings"
	"time"

	"crm/internal/apperror"

	"github.com/google/uuid"
)

// Role is a position in the approval chain.
type Role string

const (
	RoleSales   Role = "Sales"
	RoleManager Role = "Manager"
	RoleFinance Role = "Finance"
)

// Chain is the fixed approval order. The last role closes the workflow.
var Chain = []Role{RoleSales, RoleManager, RoleFinance}

// Position returns r's index in Chain, or -1.
func (r Role) Position() int {
	for i, role := range Chain {
		if role == r {
			return i
		}
	}
	return -1
}

func (r Role) Valid() bool {
	return r.Position() >= 0
}

// ParseRole accepts a chain role name, case-insensitively. Any other name
// has no step in the chain.
func ParseRole(s string) (Role, error) {
	s = strings.TrimSpace(s)
	for _, role := range Chain {
		if strings.EqualFold(string(role), s) {
			return role, nil
		}
	}
	return "", apperror.ErrStepNotFound
}

// Status applies to both steps and the workflow instance.
type Status string

const (
	StatusWaiting  Status = "Waiting"
	StatusApproved Status = "Approved"
	StatusRejected Status = "Rejected"
)

// Actor is the identity performing a transition. Privileged actors may act
// for any role but are still bound by chain order.
type Actor struct {
	ID         uuid.UUID
	Role       string
	Privileged bool
}

// CanActAs reports whether a may decide the step for role r.
func (a Actor) CanActAs(r Role) bool {
	return a.Privileged || a.Role == string(r)
}

type Step struct {
	Role      Role
	Status    Status
	Comment   string
	ActedBy   *uuid.UUID
	UpdatedAt time.Time
}

// Workflow is one approval instance and its steps.
type Workflow struct {
	Status Status
	Steps  []Step
}

// New returns a workflow with a fresh Waiting step for every chain role.
func New(now time.Time) *Workflow {
	w := &Workflow{}
	w.Restart(now)
	return w
}

// Restart discards every existing step and regenerates the chain.
func (w *Workflow) Restart(now time.Time) {
	w.Steps = make([]Step, 0, len(Chain))
	for _, role := range Chain {
		w.Steps = append(w.Steps, Step{Role: role, Status: StatusWaiting, UpdatedAt: now})
	}
	w.Status = StatusWaiting
}

// Resubmit puts every existing step back to Waiting and clears its
// decision, regardless of prior state.
func (w *Workflow) Resubmit(now time.Time) {
	for i := range w.Steps {
		w.Steps[i].Status = StatusWaiting
		w.Steps[i].Comment = ""
		w.Steps[i].ActedBy = nil
		w.Steps[i].UpdatedAt = now
	}
	w.Status = StatusWaiting
}

// Step returns the step for role, or nil.
func (w *Workflow) Step(role Role) *Step {
	for i := range w.Steps {
		if w.Steps[i].Role == role {
			return &w.Steps[i]
		}
	}
	return nil
}

// Approve marks role's step Approved. The workflow is Approved once the
// last chain role approves and stays Waiting otherwise.
func (w *Workflow) Approve(role Role, actor Actor, now time.Time) error {
	step, err := w.decidable(role, actor)
	if err != nil {
		return err
	}
	pos := role.Position()
	for _, s := range w.Steps {
		if p := s.Role.Position(); p >= 0 && p < pos && s.Status != StatusApproved {
			return apperror.ErrPreviousStepPending
		}
	}

	step.Status = StatusApproved
	step.ActedBy = actorRef(actor)
	step.UpdatedAt = now
	if pos == len(Chain)-1 {
		w.Status = StatusApproved
	} else {
		w.Status = StatusWaiting
	}
	return nil
}

// Reject marks role's step Rejected with reason and closes the workflow.
// Other steps are not consulted.
func (w *Workflow) Reject(role Role, actor Actor, reason string, now time.Time) error {
	step, err := w.decidable(role, actor)
	if err != nil {
		return err
	}
	step.Status = StatusRejected
	step.Comment = reason
	step.ActedBy = actorRef(actor)
	step.UpdatedAt = now
	w.Status = StatusRejected
	return nil
}

// decidable runs the checks shared by Approve and Reject, in order:
// actor authorization, chain membership, open workflow, step existence and
// step still pending.
func (w *Workflow) decidable(role Role, actor Actor) (*Step, error) {
	if !actor.CanActAs(role) {
		return nil, apperror.ErrRoleMismatch
	}
	if !role.Valid() {
		return nil, apperror.ErrStepNotFound
	}
	if w.Status != StatusWaiting {
		return nil, apperror.ErrWorkflowClosed
	}
	step := w.Step(role)
	if step == nil {
		return nil, apperror.ErrStepNotFound
	}
	if step.Status != StatusWaiting {
		return nil, apperror.ErrStepAlreadyDecided
	}
	return step, nil
}

func actorRef(actor Actor) *uuid.UUID {
	if actor.ID == uuid.Nil {
		return nil
	}
	id := actor.ID
	return &id
}
