package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/studiva/campus-portal-api/internal/models"
	appErrors "github.com/studiva/campus-portal-api/pkg/errors"
)

type validatorStub struct {
	claims *models.JWTClaims
}

func (s *validatorStub) ValidateToken(tokenString string) (*models.JWTClaims, error) {
	if s.claims != nil && tokenString == "good-token" {
		return s.claims, nil
	}
	return nil, appErrors.ErrUnauthorized
}

func newAuthedRouter(auth tokenValidator, extra ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handlers := append([]gin.HandlerFunc{JWT(auth)}, extra...)
	handlers = append(handlers, func(c *gin.Context) {
		claims, _ := CurrentUser(c)
		c.JSON(http.StatusOK, gin.H{"user_id": claims.UserID})
	})
	r.GET("/protected", handlers...)
	return r
}

func TestJWTMissingToken(t *testing.T) {
	r := newAuthedRouter(&validatorStub{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTInvalidToken(t *testing.T) {
	r := newAuthedRouter(&validatorStub{})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer bad-token")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTValidTokenSetsClaims(t *testing.T) {
	auth := &validatorStub{claims: &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent}}
	r := newAuthedRouter(auth)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "user-1")
}

func TestRequireAdminForbidsStudents(t *testing.T) {
	auth := &validatorStub{claims: &models.JWTClaims{UserID: "user-1", Role: models.RoleStudent}}
	r := newAuthedRouter(auth, RequireAdmin())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestRequireAdminAllowsAdmins(t *testing.T) {
	auth := &validatorStub{claims: &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}}
	r := newAuthedRouter(auth, RequireAdmin())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer good-token")
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
}
