package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/studyhall-attendance/internal/middleware"
	"github.com/noah-isme/studyhall-attendance/internal/models"
	appErrors "github.com/noah-isme/studyhall-attendance/pkg/errors"
	"github.com/noah-isme/studyhall-attendance/pkg/response"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

// tenantFromContext returns the caller's tenant or writes a 401 and reports false.
func tenantFromContext(c *gin.Context) (string, bool) {
	claims := claimsFromContext(c)
	if claims == nil || claims.TenantID == "" {
		response.Error(c, appErrors.ErrUnauthorized)
		return "", false
	}
	return claims.TenantID, true
}
