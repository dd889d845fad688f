package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	// Context keys for caller data
	ContextKeySubject = "auth_subject"
	ContextKeyClaims  = "auth_claims"
)

// Middleware creates a JWT authentication middleware
func Middleware(jwtManager *JWTManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Extract token from Authorization header
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abort(c, http.StatusUnauthorized, ErrUnauthorized.Code, "missing authorization header")
			return
		}

		// Check Bearer prefix
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			abort(c, http.StatusUnauthorized, ErrUnauthorized.Code, "invalid authorization header format")
			return
		}

		claims, err := jwtManager.ValidateToken(parts[1])
		if err != nil {
			var authErr AuthError
			if !errors.As(err, &authErr) {
				authErr = ErrInvalidToken
			}
			abort(c, http.StatusUnauthorized, authErr.Code, authErr.Message)
			return
		}

		c.Set(ContextKeySubject, claims.Subject)
		c.Set(ContextKeyClaims, claims)

		c.Next()
	}
}

// RequireScope ensures the authenticated token grants scope. It must run
// after Middleware.
func RequireScope(scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil || !claims.HasScope(scope) {
			abort(c, http.StatusForbidden, ErrForbidden.Code, scope+" scope required")
			return
		}
		c.Next()
	}
}

// GetSubject extracts the token subject from the Gin context
func GetSubject(c *gin.Context) string {
	return c.GetString(ContextKeySubject)
}

// GetClaims extracts the token claims from the Gin context
func GetClaims(c *gin.Context) *TokenClaims {
	if v, exists := c.Get(ContextKeyClaims); exists {
		if claims, ok := v.(*TokenClaims); ok {
			return claims
		}
	}
	return nil
}

func abort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"error":   code,
		"message": message,
	})
}
