package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/blbu/vr-therapy-server-go/internal/utils/jwt"
	"github.com/blbu/vr-therapy-server-go/pkg/response"
)

const claimsKey = "auth_claims"

// Dashboard staff roles.
const (
	RoleAdmin     = "admin"
	RoleTherapist = "therapist"
)

// RequireAuth validates the Bearer token and stashes its claims in the
// request context.
func RequireAuth(jwtSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			response.Error(c, http.StatusUnauthorized, "Authentication required.", nil)
			c.Abort()
			return
		}

		claims, err := jwt.ParseAccessToken(jwtSecret, strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			response.Error(c, http.StatusUnauthorized, "Invalid or expired token.", nil)
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
	}
}

// RequireRoles allows only authenticated users holding one of the given
// roles. Must run after RequireAuth.
func RequireRoles(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}

	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			response.Error(c, http.StatusUnauthorized, "Authentication required.", nil)
			c.Abort()
			return
		}

		if _, ok := allowed[claims.Role]; !ok {
			response.Error(c, http.StatusForbidden, "Insufficient permissions.", nil)
			c.Abort()
			return
		}
	}
}

// Chain composes guards into a single handler, stopping at the first
// one that aborts the request.
func Chain(handlers ...gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		for _, h := range handlers {
			h(c)
			if c.IsAborted() {
				return
			}
		}
	}
}

// GetClaims retrieves the validated token claims set by RequireAuth.
func GetClaims(c *gin.Context) (*jwt.Claims, bool) {
	value, exists := c.Get(claimsKey)
	if !exists {
		return nil, false
	}
	claims, ok := value.(*jwt.Claims)
	return claims, ok
}
