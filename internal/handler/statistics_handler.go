package handler

import (
	"net/http"
	"time"

	"crm/internal/apperror"
	"crm/internal/database"
	"crm/internal/middleware"
	"crm/internal/service"
	"crm/pkg/response"

	"github.com/gin-gonic/gin"
)

type StatisticsHandler struct {
	statisticsService service.StatisticsService
	identities        service.IdentityResolver
}

func NewStatisticsHandler(statisticsService service.StatisticsService, identities service.IdentityResolver) *StatisticsHandler {
	return &StatisticsHandler{statisticsService: statisticsService, identities: identities}
}

func (h *StatisticsHandler) RegisterRoutes(router *gin.RouterGroup, auth *middleware.Auth) {
	statsGroup := router.Group("/api/statistics")
	{
		statsGroup.GET("/quotes", auth.RequirePermission(database.PermReportsView), h.GetQuoteStatistics)
	}
}

// @Summary      Get quote pipeline statistics
// @Description  Quote counts and totals by status and the top customers, bounded by creation time
// @Tags         Statistics
// @Produce      json
// @Param        start_date query string false "Start Date (RFC3339), defaults to the first of the month"
// @Param        end_date   query string false "End Date (RFC3339), defaults to now"
// @Success      200 {object} response.Response{data=model.QuoteStatistics}
// @Failure      400 {object} response.Response "Invalid date format"
// @Failure      401 {object} response.Response "Unauthorized"
// @Security     BearerAuth
// @Router       /api/statistics/quotes [get]
func (h *StatisticsHandler) GetQuoteStatistics(c *gin.Context) {
	actor, ok := currentActor(c, h.identities)
	if !ok {
		return
	}

	now := time.Now()
	startDate := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	endDate := now

	if raw := c.Query("start_date"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, apperror.ErrInvalidInput.Code, "invalid start_date format, expected RFC3339"))
			return
		}
		startDate = parsed
	}
	if raw := c.Query("end_date"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, apperror.ErrInvalidInput.Code, "invalid end_date format, expected RFC3339"))
			return
		}
		endDate = parsed
	}

	stats, err := h.statisticsService.GetQuoteStatistics(c.Request.Context(), actor, startDate, endDate)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}
