package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Operator consoles send the key in the X-API-Key header. Browser
// WebSocket clients cannot set custom headers, so a bearer token or
// api_key query parameter is accepted as well.
const (
	keyHeader  = "X-API-Key"
	queryParam = "api_key"
)

// RequireKey guards a route group with a shared API key. An empty key
// leaves the group open, for development setups.
func RequireKey(key string) gin.HandlerFunc {
	expected := []byte(key)
	return func(c *gin.Context) {
		if len(expected) == 0 {
			c.Next()
			return
		}

		presented := presentedKey(c)
		if presented == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "api key required",
			})
			return
		}
		if subtle.ConstantTimeCompare([]byte(presented), expected) != 1 {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "api key rejected",
			})
			return
		}

		c.Next()
	}
}

func presentedKey(c *gin.Context) string {
	if k := c.GetHeader(keyHeader); k != "" {
		return k
	}
	if h := c.GetHeader("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return c.Query(queryParam)
}
