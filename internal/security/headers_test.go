package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func doRequest(r *gin.Engine, headers map[string]string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ping", nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestHeadersMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(HeadersMiddleware())
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := doRequest(r, nil)

	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
}

func TestAdminAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	newRouter := func(secret string) *gin.Engine {
		r := gin.New()
		r.Use(AdminAuthMiddleware(secret))
		r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
		return r
	}

	t.Run("valid secret", func(t *testing.T) {
		w := doRequest(newRouter("s3cret"), map[string]string{"X-Admin-Secret": "s3cret"})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("wrong secret", func(t *testing.T) {
		w := doRequest(newRouter("s3cret"), map[string]string{"X-Admin-Secret": "nope"})
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing secret header", func(t *testing.T) {
		w := doRequest(newRouter("s3cret"), nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("admin disabled", func(t *testing.T) {
		w := doRequest(newRouter(""), map[string]string{"X-Admin-Secret": ""})
		assert.Equal(t, http.StatusForbidden, w.Code)
	})
}
