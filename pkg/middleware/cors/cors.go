package cors

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	allowMethods = "GET, POST, PUT, PATCH, DELETE, OPTIONS"
	allowHeaders = "Authorization, Content-Type, X-Request-ID"
)

// New builds a CORS middleware from the configured origin allowlist. An empty
// allowlist permits any origin.
func New(allowedOrigins []string) gin.HandlerFunc {
	allowlist := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowlist = append(allowlist, normalize(origin))
	}

	return func(c *gin.Context) {
		header := c.Writer.Header()
		header.Add("Vary", "Origin")

		if origin := c.GetHeader("Origin"); origin != "" && allowed(allowlist, origin) {
			header.Set("Access-Control-Allow-Origin", origin)
			header.Set("Access-Control-Allow-Credentials", "true")
		}

		if c.Request.Method == http.MethodOptions {
			header.Set("Access-Control-Allow-Methods", allowMethods)
			header.Set("Access-Control-Allow-Headers", allowHeaders)
			header.Set("Access-Control-Max-Age", "300")
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

func allowed(allowlist []string, origin string) bool {
	if len(allowlist) == 0 {
		return true
	}

	origin = normalize(origin)
	for _, entry := range allowlist {
		if entry == "*" || entry == origin {
			return true
		}
	}
	return false
}

func normalize(origin string) string {
	return strings.TrimRight(strings.ToLower(origin), "/")
}
