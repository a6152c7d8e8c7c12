package handler

import (
	"context"
	"net/http"

	"crm/internal/database"
	"crm/internal/middleware"
	"crm/internal/service"
	"crm/pkg/pagination"
	"crm/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ApprovalHandler struct {
	approvalService service.ApprovalService
	identities      service.IdentityResolver
}

func NewApprovalHandler(approvalService service.ApprovalService, identities service.IdentityResolver) *ApprovalHandler {
	return &ApprovalHandler{approvalService: approvalService, identities: identities}
}

func (h *ApprovalHandler) RegisterRoutes(router *gin.RouterGroup, auth *middleware.Auth) {
	quotes := router.Group("/api/quotes")
	{
		quotes.GET("/:id/approval", auth.RequirePermission(database.PermQuotesView), h.GetInstance)
		quotes.POST("/:id/request-approval", auth.RequirePermission(database.PermQuotesApprove), h.RequestApproval)
		quotes.POST("/:id/approve", auth.RequirePermission(database.PermQuotesApprove), h.Approve)
		quotes.POST("/:id/reject", auth.RequirePermission(database.PermQuotesApprove), h.Reject)
		quotes.POST("/:id/resubmit", auth.RequirePermission(database.PermQuotesApprove), h.Resubmit)
	}

	approvals := router.Group("/api/approvals")
	{
		approvals.GET("/pending", auth.RequirePermission(database.PermApprovalsView), h.ListPending)
		approvals.POST("/steps/:id/action", auth.RequirePermission(database.PermQuotesApprove), h.ActOnStep)
	}
}

// GetInstance returns the approval instance of a quote
// @Summary      Get approval instance
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Quote ID"
// @Success      200  {object}  response.Response{data=model.ApprovalInstance}
// @Failure      409  {object}  response.Response
// @Router       /api/quotes/{id}/approval [get]
func (h *ApprovalHandler) GetInstance(c *gin.Context) {
	actor, ok := currentActor(c, h.identities)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	instance, err := h.approvalService.GetInstance(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, instance))
}

// RequestApproval starts, or restarts, the approval chain of a quote
// @Summary      Request approval
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Quote ID"
// @Success      200  {object}  response.Response{data=model.ApprovalInstance}
// @Router       /api/quotes/{id}/request-approval [post]
func (h *ApprovalHandler) RequestApproval(c *gin.Context) {
	actor, ok := currentActor(c, h.identities)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	instance, err := h.approvalService.RequestApproval(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, instance))
}

// Approve approves the step of the given role
// @Summary      Approve step
// @Description  An empty role acts for the caller's own role.
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                   true   "Quote ID"
// @Param        payload  body      service.DecisionRequest  false  "Role"
// @Success      200      {object}  response.Response{data=service.ApprovalDecision}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/quotes/{id}/approve [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	h.decide(c, h.approvalService.Approve)
}

// Reject rejects the step of the given role
// @Summary      Reject step
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                   true   "Quote ID"
// @Param        payload  body      service.DecisionRequest  false  "Role and reason"
// @Success      200      {object}  response.Response{data=service.ApprovalDecision}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/quotes/{id}/reject [post]
func (h *ApprovalHandler) Reject(c *gin.Context) {
	h.decide(c, h.approvalService.Reject)
}

// Resubmit resets every step to Waiting
// @Summary      Resubmit for approval
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Quote ID"
// @Success      200  {object}  response.Response{data=service.ApprovalDecision}
// @Router       /api/quotes/{id}/resubmit [post]
func (h *ApprovalHandler) Resubmit(c *gin.Context) {
	actor, ok := currentActor(c, h.identities)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.approvalService.Resubmit(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ListPending returns the Waiting steps for the caller's role
// @Summary      Pending approvals
// @Tags         approvals
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Items per page (default 20)"
// @Success      200    {object}  response.Response{data=response.Page}
// @Router       /api/approvals/pending [get]
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	actor, ok := currentActor(c, h.identities)
	if !ok {
		return
	}
	params := pagination.Parse(c)

	steps, total, err := h.approvalService.ListPending(c.Request.Context(), actor, params.Page, params.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, steps, total, params.Page, params.Limit))
}

// ActOnStep approves or rejects a step addressed by its id
// @Summary      Act on approval step
// @Tags         approvals
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Step ID"
// @Param        payload  body      service.StepActionRequest  true  "approve, reject or resubmit"
// @Success      200      {object}  response.Response{data=service.ApprovalDecision}
// @Failure      400      {object}  response.Response
// @Router       /api/approvals/steps/{id}/action [post]
func (h *ApprovalHandler) ActOnStep(c *gin.Context) {
	actor, ok := currentActor(c, h.identities)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.StepActionRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.approvalService.ActOnStep(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

type decideFunc func(ctx context.Context, actor service.Identity, quoteID uuid.UUID, req service.DecisionRequest) (service.ApprovalDecision, error)

func (h *ApprovalHandler) decide(c *gin.Context, fn decideFunc) {
	actor, ok := currentActor(c, h.identities)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.DecisionRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := fn(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
