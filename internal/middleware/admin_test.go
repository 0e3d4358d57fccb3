package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestNewAdminMiddleware(t *testing.T) {
	t.Run("explicit key", func(t *testing.T) {
		t.Setenv("ADMIN_API_KEY", "from-env")
		am := NewAdminMiddleware("from-config", "production")
		assert.Equal(t, "from-config", am.apiKey)
	})

	t.Run("environment variable fallback", func(t *testing.T) {
		t.Setenv("ADMIN_API_KEY", "from-env")
		am := NewAdminMiddleware("", "production")
		assert.Equal(t, "from-env", am.apiKey)
	})

	t.Run("development default", func(t *testing.T) {
		t.Setenv("ADMIN_API_KEY", "")
		am := NewAdminMiddleware("", "development")
		assert.Equal(t, devAdminKey, am.apiKey)
		assert.True(t, am.Enabled())
	})

	t.Run("production without key is locked", func(t *testing.T) {
		t.Setenv("ADMIN_API_KEY", "")
		am := NewAdminMiddleware("", "production")
		assert.False(t, am.Enabled())
		assert.False(t, am.ValidateAdminKey(""))
		assert.False(t, am.ValidateAdminKey(devAdminKey))
	})
}

func TestAdminMiddleware_RequireAdminAuth(t *testing.T) {
	am := NewAdminMiddleware("test-admin-key", "test")
	gin.SetMode(gin.TestMode)

	createTestRouter := func() *gin.Engine {
		router := gin.New()
		router.Use(am.RequireAdminAuth())
		router.POST("/api/v1/pcr/update", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"message": "admin access granted"})
		})
		return router
	}

	tests := []struct {
		name   string
		setup  func(r *http.Request)
		target string
		want   int
	}{
		{"bearer token", func(r *http.Request) { r.Header.Set("Authorization", "Bearer test-admin-key") }, "/api/v1/pcr/update", http.StatusOK},
		{"x-api-key header", func(r *http.Request) { r.Header.Set("X-API-Key", "test-admin-key") }, "/api/v1/pcr/update", http.StatusOK},
		{"query parameter", func(r *http.Request) {}, "/api/v1/pcr/update?api_key=test-admin-key", http.StatusOK},
		{"wrong bearer", func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") }, "/api/v1/pcr/update", http.StatusUnauthorized},
		{"basic scheme", func(r *http.Request) { r.Header.Set("Authorization", "Basic test-admin-key") }, "/api/v1/pcr/update", http.StatusUnauthorized},
		{"wrong header", func(r *http.Request) { r.Header.Set("X-API-Key", "nope") }, "/api/v1/pcr/update", http.StatusUnauthorized},
		{"no credentials", func(r *http.Request) {}, "/api/v1/pcr/update", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := createTestRouter()
			req := httptest.NewRequest(http.MethodPost, tt.target, nil)
			tt.setup(req)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.want == http.StatusUnauthorized {
				assert.Contains(t, w.Body.String(), "Unauthorized")
			}
		})
	}
}

func TestAdminMiddleware_ValidateAdminKey(t *testing.T) {
	am := NewAdminMiddleware("test-admin-key", "test")
	assert.True(t, am.ValidateAdminKey("test-admin-key"))
	assert.False(t, am.ValidateAdminKey("test-admin-ke"))
	assert.False(t, am.ValidateAdminKey(""))
}
