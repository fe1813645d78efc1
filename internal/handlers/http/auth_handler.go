package http

import (
	"errors"
	"net/http"
	"time"

	"uplinkpolicy/internal/core/services"
	apperrors "uplinkpolicy/pkg/errors"

	"github.com/gin-gonic/gin"
)

type AuthHandler struct {
	authService services.AuthService
}

func NewAuthHandler(authService services.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) SetupRoutes(api *gin.RouterGroup) {
	api.POST("/auth/token", h.IssueToken)
}

type TokenRequest struct {
	APIKey string `json:"api_key" binding:"required,max=256"`
}

// IssueToken trades the operator API key for a short-lived bearer token.
func (h *AuthHandler) IssueToken(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}

	token, expiresAt, err := h.authService.IssueToken(req.APIKey)
	if err != nil {
		if errors.Is(err, services.ErrInvalidAPIKey) {
			c.Error(apperrors.NewUnauthorizedError("invalid api key"))
			return
		}
		c.Error(apperrors.WrapError(err, apperrors.ErrCodeInternal, "failed to generate token", http.StatusInternalServerError))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"access_token": token,
		"token_type":   "Bearer",
		"expires_in":   int(time.Until(expiresAt) / time.Second),
	})
}
