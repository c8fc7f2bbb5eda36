package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/mkadenge/shulelink/internal/auth"
	"github.com/mkadenge/shulelink/internal/models"
)

const contextKeyViewer = "viewer"

// AuthMiddleware validates the Bearer token and stores the resulting
// viewer identity on the request context. Handlers downstream read it
// with GetViewer and never touch the token.
//
// WebSocket clients can't set an Authorization header from the browser
// API, so the token is also accepted as a ?token= query parameter on
// those requests.
func AuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "missing authorization",
			})
			return
		}

		claims, err := auth.ParseToken(tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "invalid or expired token",
			})
			return
		}

		c.Set(contextKeyViewer, claims.Viewer())
		c.Next()
	}
}

// RequireRole rejects viewers outside the given role with a 403. Used
// to keep parents off the admin feed and staff out of thread creation.
func RequireRole(role models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if GetViewer(c).Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "insufficient role",
			})
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

// GetViewer returns the authenticated viewer, or a zero Viewer when the
// middleware didn't run (which fails every downstream check safely).
func GetViewer(c *gin.Context) models.Viewer {
	val, exists := c.Get(contextKeyViewer)
	if !exists {
		return models.Viewer{}
	}
	viewer, ok := val.(models.Viewer)
	if !ok {
		return models.Viewer{}
	}
	return viewer
}
