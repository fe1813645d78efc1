package ports

import (
	"context"
	"net/http"

	"uplinkpolicy/internal/core/domain"

	"github.com/gin-gonic/gin"
)

type PolicyHTTPHandler interface {
	ListPolicies(c *gin.Context)
	GetPolicy(c *gin.Context)
	ReplacePolicy(c *gin.Context)
	DeletePolicy(c *gin.Context)
	ValidatePolicy(c *gin.Context)
	MatchPolicy(c *gin.Context)
}

type UplinkHTTPHandler interface {
	ReportUplink(c *gin.Context)
	GetDecision(c *gin.Context)
	GetHistory(c *gin.Context)
}

type WebSocketHandler interface {
	HandleWebSocket(w http.ResponseWriter, r *http.Request)
	HandleDisconnect(ctx context.Context, session domain.SessionID, sender domain.SenderID)
}
