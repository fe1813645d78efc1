package middleware

import (
	"strings"

	"uplinkpolicy/internal/core/domain"
	"uplinkpolicy/internal/core/services"
	apperrors "uplinkpolicy/pkg/errors"

	"github.com/gin-gonic/gin"
)

const claimsKey = "operator_claims"

// AuthMiddleware requires a bearer token carrying at least the given role.
func AuthMiddleware(authService services.AuthService, required domain.OperatorRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Error(apperrors.NewUnauthorizedError("authorization header required"))
			c.Abort()
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || scheme != "Bearer" || token == "" {
			c.Error(apperrors.NewUnauthorizedError("invalid authorization header format"))
			c.Abort()
			return
		}

		claims, err := authService.ValidateToken(token)
		if err != nil {
			c.Error(apperrors.NewUnauthorizedError(err.Error()))
			c.Abort()
			return
		}
		if err := authService.Authorize(claims, required); err != nil {
			c.Error(apperrors.NewForbiddenError("insufficient permissions"))
			c.Abort()
			return
		}

		c.Set(claimsKey, claims)
		c.Next()
	}
}

// OperatorFromContext returns the operator set by AuthMiddleware.
func OperatorFromContext(c *gin.Context) (domain.OperatorID, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return "", false
	}
	claims, ok := v.(*services.Claims)
	if !ok {
		return "", false
	}
	return claims.OperatorID, true
}
