package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"autosave-sync-engine/auth"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func authTestRouter(m *Auth) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(ErrorHandler())
	router.GET("/protected", m.AuthMiddleWare(), func(c *gin.Context) {
		userID, _ := c.Get("user_id")
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	router.GET("/internal", m.InternalAuthMiddleware(), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

// TestAuthMiddleware_ValidToken tests Bearer token resolution to user_id
func TestAuthMiddleware_ValidToken(t *testing.T) {
	auth.SetSecret("test-secret")
	router := authTestRouter(&Auth{})

	token, err := auth.GenerateJWT("user-1")
	assert.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "user-1")
}

// TestAuthMiddleware_QueryToken tests the ?token= fallback
func TestAuthMiddleware_QueryToken(t *testing.T) {
	auth.SetSecret("test-secret")
	router := authTestRouter(&Auth{})

	token, err := auth.GenerateJWT("user-2")
	assert.NoError(t, err)

	req := httptest.NewRequest("GET", "/protected?token="+token, nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

// TestAuthMiddleware_MissingToken tests the unauthenticated path
func TestAuthMiddleware_MissingToken(t *testing.T) {
	auth.SetSecret("test-secret")
	router := authTestRouter(&Auth{})

	req := httptest.NewRequest("GET", "/protected", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestAuthMiddleware_BadToken tests signature rejection
func TestAuthMiddleware_BadToken(t *testing.T) {
	auth.SetSecret("test-secret")
	token, err := auth.GenerateJWT("user-1")
	assert.NoError(t, err)

	// token signed with a different secret must not verify
	auth.SetSecret("rotated-secret")
	router := authTestRouter(&Auth{})

	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestInternalAuthMiddleware tests the shared-secret guard
func TestInternalAuthMiddleware(t *testing.T) {
	router := authTestRouter(&Auth{InternalSecret: "internal-secret"})

	req := httptest.NewRequest("GET", "/internal", nil)
	req.Header.Set("Authorization", "Bearer internal-secret")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest("GET", "/internal", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
