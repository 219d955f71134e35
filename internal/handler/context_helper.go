package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/lti-assignments-api/internal/middleware"
	"github.com/noah-isme/lti-assignments-api/internal/models"
	appErrors "github.com/noah-isme/lti-assignments-api/pkg/errors"
	"github.com/noah-isme/lti-assignments-api/pkg/response"
)

func sessionFromContext(c *gin.Context) (models.Session, bool) {
	value, exists := c.Get(middleware.ContextSessionKey)
	if !exists {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Session{}, false
	}
	claims, ok := value.(*models.SessionClaims)
	if !ok || claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return models.Session{}, false
	}
	return claims.Session, true
}

// int64Param parses a numeric path parameter, answering 400 when it is malformed.
func int64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, name+" must be a positive integer"))
		return 0, false
	}
	return id, true
}

func bindJSON(c *gin.Context, dst interface{}, message string) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, message))
		return false
	}
	return true
}
