package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIKeyHeader is the header carrying the gateway API key.
const APIKeyHeader = "x-api-key"

// APIKey creates a middleware requiring an exact x-api-key match on
// every guarded route. An empty key disables the guard.
func APIKey(key string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		got := c.GetHeader(APIKeyHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{
				"ok":    false,
				"error": "invalid api key",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}
