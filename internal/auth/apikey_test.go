package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func protectedRouter(key string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/v1/events", RequireKey(key), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return router
}

func TestRequireKey(t *testing.T) {
	const key = "sekrit"

	tests := []struct {
		name       string
		target     string
		header     map[string]string
		wantStatus int
	}{
		{
			name:       "no credentials",
			target:     "/v1/events",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "wrong key",
			target:     "/v1/events",
			header:     map[string]string{"X-API-Key": "guess"},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "header key accepted",
			target:     "/v1/events",
			header:     map[string]string{"X-API-Key": key},
			wantStatus: http.StatusOK,
		},
		{
			name:       "bearer token accepted",
			target:     "/v1/events",
			header:     map[string]string{"Authorization": "Bearer " + key},
			wantStatus: http.StatusOK,
		},
		{
			name:       "wrong bearer token",
			target:     "/v1/events",
			header:     map[string]string{"Authorization": "Bearer guess"},
			wantStatus: http.StatusForbidden,
		},
		{
			name:       "query parameter accepted for websocket clients",
			target:     "/v1/events?api_key=" + key,
			wantStatus: http.StatusOK,
		},
	}

	router := protectedRouter(key)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}
}

func TestRequireKey_EmptyKeyDisablesAuth(t *testing.T) {
	router := protectedRouter("")

	req := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
