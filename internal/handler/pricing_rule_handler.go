package handler

import (
	"net/http"

	"crm/internal/database"
	"crm/internal/middleware"
	"crm/internal/service"
	"crm/pkg/pagination"
	"crm/pkg/response"

	"github.com/gin-gonic/gin"
)

type PricingRuleHandler struct {
	ruleService service.PricingRuleService
	identities  service.IdentityResolver
}

func NewPricingRuleHandler(ruleService service.PricingRuleService, identities service.IdentityResolver) *PricingRuleHandler {
	return &PricingRuleHandler{ruleService: ruleService, identities: identities}
}

func (h *PricingRuleHandler) RegisterRoutes(router *gin.RouterGroup, auth *middleware.Auth) {
	rules := router.Group("/api/pricing-rules")
	{
		rules.GET("", auth.RequirePermission(database.PermQuotesView), h.ListRules)
		rules.GET("/:id", auth.RequirePermission(database.PermQuotesView), h.GetRule)
		rules.POST("", auth.RequirePermission(database.PermPricingManage), h.CreateRule)
		rules.PUT("/:id", auth.RequirePermission(database.PermPricingManage), h.UpdateRule)
		rules.DELETE("/:id", auth.RequirePermission(database.PermPricingManage), h.DeleteRule)
	}
}

// ListRules lists the organization's pricing rules
// @Summary      List pricing rules
// @Tags         pricing
// @Security     BearerAuth
// @Produce      json
// @Param        kind   query     string  false  "category, customer or volume"
// @Param        page   query     int     false  "Page number (default 1)"
// @Param        limit  query     int     false  "Items per page (default 20)"
// @Success      200    {object}  response.Response{data=response.Page}
// @Router       /api/pricing-rules [get]
func (h *PricingRuleHandler) ListRules(c *gin.Context) {
	actor, ok := currentActor(c, h.identities)
	if !ok {
		return
	}
	params := pagination.Parse(c)

	rules, total, err := h.ruleService.ListRules(c.Request.Context(), actor, c.Query("kind"), params.Page, params.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, rules, total, params.Page, params.Limit))
}

func (h *PricingRuleHandler) GetRule(c *gin.Context) {
	actor, ok := currentActor(c, h.identities)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	rule, err := h.ruleService.GetRule(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, rule))
}

// CreateRule adds a pricing rule
// @Summary      Create pricing rule
// @Tags         pricing
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.PricingRuleRequest  true  "Rule payload"
// @Success      201      {object}  response.Response{data=service.PricingRuleResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/pricing-rules [post]
func (h *PricingRuleHandler) CreateRule(c *gin.Context) {
	actor, ok := currentActor(c, h.identities)
	if !ok {
		return
	}
	var req service.PricingRuleRequest
	if !bindJSON(c, &req) {
		return
	}

	rule, err := h.ruleService.CreateRule(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, rule))
}

// UpdateRule replaces a pricing rule
// @Summary      Update pricing rule
// @Tags         pricing
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                      true  "Rule ID"
// @Param        payload  body      service.PricingRuleRequest  true  "Rule payload"
// @Success      200      {object}  response.Response{data=service.PricingRuleResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/pricing-rules/{id} [put]
func (h *PricingRuleHandler) UpdateRule(c *gin.Context) {
	actor, ok := currentActor(c, h.identities)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req service.PricingRuleRequest
	if !bindJSON(c, &req) {
		return
	}

	rule, err := h.ruleService.UpdateRule(c.Request.Context(), actor, id, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, rule))
}

// DeleteRule removes a pricing rule
// @Summary      Delete pricing rule
// @Tags         pricing
// @Security     BearerAuth
// @Param        id   path      string  true  "Rule ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/pricing-rules/{id} [delete]
func (h *PricingRuleHandler) DeleteRule(c *gin.Context) {
	actor, ok := currentActor(c, h.identities)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	if err := h.ruleService.DeleteRule(c.Request.Context(), actor, id); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Pricing rule deleted successfully"}))
}
