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

type AuditHandler struct {
	auditService service.AuditService
	identities   service.IdentityResolver
}

func NewAuditHandler(auditService service.AuditService, identities service.IdentityResolver) *AuditHandler {
	return &AuditHandler{auditService: auditService, identities: identities}
}

func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup, auth *middleware.Auth) {
	group := router.Group("/api/audit-logs")
	group.Use(auth.RequirePermission(database.PermAuditView))
	{
		group.GET("", h.GetAuditLogs)
	}
}

// GetAuditLogs retrieves paginated audit entries with their users
// @Summary      Get audit logs
// @Description  Newest first. Entries without a user are reported as "System".
// @Tags         audit
// @Security     BearerAuth
// @Produce      json
// @Param        entity     query     string  false  "Quote, PricingRule or Partner"
// @Param        entity_id  query     string  false  "Entity id"
// @Param        page       query     int     false  "Page number (default 1)"
// @Param        limit      query     int     false  "Number of items per page (default 20)"
// @Success      200        {object}  response.Response{data=response.Page}
// @Router       /api/audit-logs [get]
func (h *AuditHandler) GetAuditLogs(c *gin.Context) {
	actor, ok := currentActor(c, h.identities)
	if !ok {
		return
	}
	params := pagination.Parse(c)

	logs, total, err := h.auditService.GetAuditLogs(c.Request.Context(), actor, service.AuditQuery{
		Entity:   c.Query("entity"),
		EntityID: c.Query("entity_id"),
		Page:     params.Page,
		Limit:    params.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.SuccessWithPagination(http.StatusOK, logs, total, params.Page, params.Limit))
}
