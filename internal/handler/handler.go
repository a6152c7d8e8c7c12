package handler

import (
	"errors"
	"net/http"

	"crm/internal/apperror"
	"crm/internal/logger"
	"crm/internal/middleware"
	"crm/internal/service"
	"crm/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// statusFor maps an error kind onto an HTTP status.
func statusFor(kind apperror.Kind) int {
	switch kind {
	case apperror.KindValidation:
		return http.StatusBadRequest
	case apperror.KindAuthorization:
		return http.StatusForbidden
	case apperror.KindNotFound:
		return http.StatusNotFound
	case apperror.KindWorkflow:
		return http.StatusConflict
	case apperror.KindConfiguration:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err using the response envelope. Errors outside the
// domain taxonomy are logged and reported as 500 without their detail.
func respondError(c *gin.Context, err error) {
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		status := statusFor(appErr.Kind)
		c.JSON(status, response.ErrorWithCode(status, appErr.Code, appErr.Message))
		return
	}

	logger.FromContext(c.Request.Context(), zap.L()).Error("request failed",
		zap.String("path", c.FullPath()),
		zap.Error(err))
	c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Internal server error"))
}

// currentActor resolves the authenticated user into an Identity. It writes
// the error response itself and reports false on failure.
func currentActor(c *gin.Context, identities service.IdentityResolver) (service.Identity, bool) {
	userID, ok := middleware.CurrentUserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User not authenticated"))
		return service.Identity{}, false
	}
	actor, err := identities.Resolve(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return service.Identity{}, false
	}
	return actor, true
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, apperror.ErrInvalidInput.Code, "Invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// bindJSON decodes the body into dst. An empty body leaves dst untouched.
func bindJSON(c *gin.Context, dst interface{}) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		c.JSON(http.StatusBadRequest, response.ErrorWithCode(http.StatusBadRequest, apperror.ErrInvalidInput.Code, "Invalid request body: "+err.Error()))
		return false
	}
	return true
}
