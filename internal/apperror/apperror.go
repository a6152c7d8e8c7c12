package apperror

import "errors"

// Kind classifies an Error so transports can tell "you can't do this"
// apart from "this can't be done yet".
type Kind string

const (
	KindValidation    Kind = "validation"
	KindWorkflow      Kind = "workflow"
	KindAuthorization Kind = "authorization"
	KindNotFound      Kind = "not_found"
	KindConfiguration Kind = "configuration"
)

// Error is a domain-level error with a stable machine-readable code.
type Error struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches on Code so that a copy carrying a more specific message
// still satisfies errors.Is against the sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithMessage returns a copy of e with a caller-specific message.
func (e *Error) WithMessage(message string) *Error {
	return &Error{Kind: e.Kind, Code: e.Code, Message: message}
}

// KindOf reports the Kind of the first *Error in err's chain.
func KindOf(err error) (Kind, bool) {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind, true
	}
	return "", false
}

// CodeOf reports the Code of the first *Error in err's chain.
func CodeOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// Approval workflow
var (
	ErrRoleMismatch        = New(KindAuthorization, "ROLE_MISMATCH", "Role mismatch: actor may not act for this approval step")
	ErrApprovalNotStarted  = New(KindWorkflow, "APPROVAL_NOT_STARTED", "Approval not started")
	ErrStepNotFound        = New(KindWorkflow, "STEP_NOT_FOUND", "Role not in approval chain")
	ErrPreviousStepPending = New(KindWorkflow, "PREVIOUS_STEP_PENDING", "Previous step not approved")
	ErrStepAlreadyDecided  = New(KindWorkflow, "STEP_ALREADY_DECIDED", "Approval step has already been decided")
	ErrWorkflowClosed      = New(KindWorkflow, "WORKFLOW_CLOSED", "Approval workflow is closed; resubmit to start a new cycle")
)

// Quotes and pricing
var (
	ErrInvalidInput   = New(KindValidation, "INVALID_INPUT", "Invalid input provided")
	ErrInvalidAction  = New(KindValidation, "INVALID_ACTION", "Invalid action")
	ErrQuoteNotFound  = New(KindNotFound, "QUOTE_NOT_FOUND", "Quote not found")
	ErrRuleNotFound   = New(KindNotFound, "PRICING_RULE_NOT_FOUND", "Pricing rule not found")
	ErrActorNotFound  = New(KindAuthorization, "ACTOR_NOT_FOUND", "Acting user not found")
	ErrNoOrganization = New(KindConfiguration, "NO_ORGANIZATION", "No organization could be resolved for the acting user")
)
