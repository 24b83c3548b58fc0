package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/openlms/lms-api/internal/models"
)

func performRBAC(t *testing.T, claims *models.JWTClaims, path string, allowed ...string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/users/:id", func(c *gin.Context) {
		if claims != nil {
			c.Set(ContextUserKey, claims)
		}
		c.Next()
	}, RBAC(allowed...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	r.ServeHTTP(w, req)
	return w
}

func TestRBACAllowsMatchingRole(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleAdmin}
	w := performRBAC(t, claims, "/users/other", "ADMIN", "TEACHER")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRBACRejectsRole(t *testing.T) {
	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleStudent}
	w := performRBAC(t, claims, "/users/other", "ADMIN", "TEACHER")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACSelfAccess(t *testing.T) {
	claims := &models.JWTClaims{UserID: "s1", Role: models.RoleStudent}

	w := performRBAC(t, claims, "/users/s1", "ADMIN", "SELF")
	assert.Equal(t, http.StatusOK, w.Code)

	w = performRBAC(t, claims, "/users/s2", "ADMIN", "SELF")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRBACMissingClaims(t *testing.T) {
	w := performRBAC(t, nil, "/users/s1", "ADMIN")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRoles(t *testing.T) {
	claims := &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher}
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/modules", func(c *gin.Context) {
		c.Set(ContextUserKey, claims)
	}, RequireRoles(models.RoleAdmin, models.RoleTeacher), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/modules", nil)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}
