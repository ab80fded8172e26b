package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/therapyassist/therapy-api/pkg/auth"
	apperrors "github.com/therapyassist/therapy-api/pkg/errors"
)

const (
	ContextSubject = "subject"
	ContextClaims  = "claims"
)

type AuthMiddleware struct {
	tokens auth.JWTService
}

func NewAuthMiddleware(tokens auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate verifies the bearer token and stores its claims in the context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			m.reject(c, "missing authorization header")
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			m.reject(c, "invalid authorization format")
			return
		}

		claims, err := m.tokens.ValidateToken(parts[1])
		if err != nil {
			m.reject(c, "invalid token")
			return
		}

		c.Set(ContextSubject, claims.Subject)
		c.Set(ContextClaims, claims)
		c.Next()
	}
}

func (m *AuthMiddleware) reject(c *gin.Context, message string) {
	appErr := apperrors.Unauthorized(nil)
	appErr.Message = message
	_ = c.Error(appErr)
	c.Abort()
}
