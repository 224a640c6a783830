package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/studiva/campus-portal-api/internal/middleware"
	"github.com/studiva/campus-portal-api/internal/models"
	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
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

const maxPageSize = 100

// targetUserID resolves the optional userID path parameter: users may only
// address themselves, admins may address anyone.
func targetUserID(c *gin.Context, claims *models.JWTClaims) (string, error) {
	target := c.Param("userID")
	if target == "" || target == claims.UserID {
		return claims.UserID, nil
	}
	if claims.Role != models.RoleAdmin {
		return "", appErrors.ErrForbidden
	}
	return target, nil
}

func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 20
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return page, size
}
