package handler

import (
	"net/http"

	"crm/internal/apperror"
	"crm/internal/database"
	"crm/internal/middleware"
	"crm/internal/service"
	"crm/pkg/pagination"
	"crm/pkg/response"

	"github.com/gin-gonic/gin"
)

type QuoteHandler struct {
	quoteService service.QuoteService
	identities   service.IdentityResolver
}

func NewQuoteHandler(quoteService service.QuoteService, identities service.IdentityResolver) *QuoteHandler {
	return &QuoteHandler{quoteService: quoteService, identities: identities}
}

func (h *QuoteHandler) RegisterRoutes(router *gin.RouterGroup, auth *middleware.Auth) {
	quotes := router.Group("/api/quotes")
	{
		quotes.GET("", auth.RequirePermission(database.PermQuotesView), h.ListQuotes)
		quotes.POST("", auth.RequirePermission(database.PermQuotesEdit), h.CreateQuote)
		quotes.POST("/preview", auth.RequirePermission(database.PermQuotesView), h.Preview)
		quotes.GET("/:id", auth.RequirePermission(database.PermQuotesView), h.GetQuote)
		quotes.PUT("/:id", auth.RequirePermission(database.PermQuotesEdit), h.UpdateQuote)
		quotes.POST("/:id/recalculate", auth.RequirePermission(database.PermQuotesEdit), h.Recalculate)
		quotes.POST("/:id/transition", auth.RequirePermission(database.PermQuotesEdit), h.Transition)
	}
}

type transitionRequest struct {
	Action string `json:"action" binding:"required"`
}

// ListQuotes returns quotes visible to the caller
// @Summary      List quotes
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Items per page (default 20)"
// @Param        status  query     string  false  "Filter by status"
// @Param        search  query     string  false  "Search by number"
// @Success      200     {object}  response.Response{data=response.Page}
// @Router       /api/quotes [get]
func (h *QuoteHandler) ListQuotes(c *gin.Context) {
	actor, ok := currentActor(c, h.identities)
	if !ok {
		return
	}
	params := pagination.Parse(c)

	quotes, total, err := h.quoteService.ListQuotes(c.Request.Context(), actor, service.QuoteQuery{
		Status: c.Query("status"),
		Search: c.Query("search"),
		Page:   params.Page,
		Limit:  params.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, quotes, total, params.Page, params.Limit))
}

// CreateQuote creates a Draft quote and prices it
// @Summary      Create quote
// @Description  Totals are always computed server side; client supplied totals are ignored.
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.QuotePayload  true  "Quote payload"
// @Success      201      {object}  response.Response{data=model.Quote}
// @Failure      400      {object}  response.Response
// @Router       /api/quotes [post]
func (h *QuoteHandler) CreateQuote(c *gin.Context) {
	actor, ok := currentActor(c, h.identities)
	if !ok {
		return
	}
	var payload service.QuotePayload
	if !bindJSON(c, &payload) {
		return
	}

	quote, err := h.quoteService.CreateQuote(c.Request.Context(), actor, payload)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, quote))
}

// GetQuote returns one quote with its lines
// @Summary      Get quote
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Quote ID"
// @Success      200  {object}  response.Response{data=model.Quote}
// @Failure      404  {object}  response.Response
// @Router       /api/quotes/{id} [get]
func (h *QuoteHandler) GetQuote(c *gin.Context) {
	actor, ok := currentActor(c, h.identities)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	quote, err := h.quoteService.GetQuote(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, quote))
}

// UpdateQuote edits header fields and, when lines are present, replaces them
// @Summary      Update quote
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                true  "Quote ID"
// @Param        payload  body      service.QuotePayload  true  "Quote payload"
// @Success      200      {object}  response.Response{data=model.Quote}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/quotes/{id} [put]
func (h *QuoteHandler) UpdateQuote(c *gin.Context) {
	actor, ok := currentActor(c, h.identities)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var payload service.QuotePayload
	if !bindJSON(c, &payload) {
		return
	}

	quote, err := h.quoteService.UpdateQuote(c.Request.Context(), actor, id, payload)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, quote))
}

// Recalculate reprices a stored quote
// @Summary      Recalculate quote totals
// @Tags         quotes
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Quote ID"
// @Success      200  {object}  response.Response{data=pricing.Result}
// @Router       /api/quotes/{id}/recalculate [post]
func (h *QuoteHandler) Recalculate(c *gin.Context) {
	actor, ok := currentActor(c, h.identities)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	result, err := h.quoteService.Recalculate(c.Request.Context(), actor, id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Preview prices unsaved lines
// @Summary      Preview pricing
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.PreviewRequest  true  "Lines and customer group"
// @Success      200      {object}  response.Response{data=pricing.Result}
// @Router       /api/quotes/preview [post]
func (h *QuoteHandler) Preview(c *gin.Context) {
	actor, ok := currentActor(c, h.identities)
	if !ok {
		return
	}
	var req service.PreviewRequest
	if !bindJSON(c, &req) {
		return
	}

	result, err := h.quoteService.Preview(c.Request.Context(), actor, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// Transition sends or converts a quote
// @Summary      Send or convert quote
// @Tags         quotes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string             true  "Quote ID"
// @Param        payload  body      transitionRequest  true  "send or convert"
// @Success      200      {object}  response.Response{data=service.TransitionResult}
// @Failure      400      {object}  response.Response
// @Router       /api/quotes/{id}/transition [post]
func (h *QuoteHandler) Transition(c *gin.Context) {
	actor, ok := currentActor(c, h.identities)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, apperror.ErrInvalidAction.Code, apperror.ErrInvalidAction.Message))
		return
	}

	result, err := h.quoteService.Transition(c.Request.Context(), actor, id, req.Action)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
