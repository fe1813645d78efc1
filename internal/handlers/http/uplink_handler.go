package http

import (
	"net/http"

	"uplinkpolicy/internal/core/domain"
	"uplinkpolicy/internal/core/ports"
	"uplinkpolicy/internal/core/services"
	"uplinkpolicy/internal/infrastructure/middleware"
	apperrors "uplinkpolicy/pkg/errors"
	"uplinkpolicy/pkg/tracing"
	"uplinkpolicy/pkg/validation"

	"github.com/gin-gonic/gin"
)

type UplinkHandler struct {
	uplink      ports.UplinkService
	policies    ports.PolicyService
	authService services.AuthService
}

func NewUplinkHandler(uplink ports.UplinkService, policies ports.PolicyService, authService services.AuthService) *UplinkHandler {
	return &UplinkHandler{
		uplink:      uplink,
		policies:    policies,
		authService: authService,
	}
}

func (h *UplinkHandler) SetupRoutes(api *gin.RouterGroup) {
	sessions := api.Group("/sessions/:session")
	sessions.PUT("/policy", middleware.AuthMiddleware(h.authService, domain.RoleEditor), h.SetSessionPolicy)
	sessions.POST("/senders/:sender/uplink", h.ReportUplink)
	sessions.GET("/senders/:sender/decision", h.GetDecision)
	sessions.GET("/senders/:sender/history", h.GetHistory)
}

type UplinkRequest struct {
	UplinkKbps   int `json:"uplink_kbps"`
	Participants int `json:"participants"`
}

type SessionPolicyRequest struct {
	Policy string `json:"policy"`
}

func (h *UplinkHandler) ReportUplink(c *gin.Context) {
	session, sender, ok := senderParams(c)
	if !ok {
		return
	}

	var req UplinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}
	if err := validation.ValidateBitrate(req.UplinkKbps); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateParticipants(req.Participants); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	ctx, span := tracing.TraceUplinkReport(c.Request.Context(), string(session), string(sender), req.UplinkKbps)
	defer span.End()

	decision, changed, err := h.uplink.Report(ctx, domain.UplinkReport{
		Session:      session,
		Sender:       sender,
		UplinkKbps:   req.UplinkKbps,
		Participants: req.Participants,
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		c.Error(err)
		return
	}
	tracing.RecordMatchResult(ctx, decision.RuleIndex, decision.Fallback, decision.ActiveStreams.String())

	c.JSON(http.StatusOK, gin.H{
		"decision": decision,
		"changed":  changed,
	})
}

func (h *UplinkHandler) GetDecision(c *gin.Context) {
	_, sender, ok := senderParams(c)
	if !ok {
		return
	}

	decision, err := h.uplink.CurrentDecision(sender)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, decision)
}

func (h *UplinkHandler) GetHistory(c *gin.Context) {
	_, sender, ok := senderParams(c)
	if !ok {
		return
	}

	history := h.uplink.History(sender)
	if history == nil {
		c.Error(domain.ErrSenderNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{"history": history})
}

// SetSessionPolicy points a session at a stored policy; an empty name
// reverts it to the default.
func (h *UplinkHandler) SetSessionPolicy(c *gin.Context) {
	session := c.Param("session")
	if err := validation.ValidateSessionID(session); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	var req SessionPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}
	if req.Policy != "" {
		if _, err := h.policies.Describe(c.Request.Context(), req.Policy); err != nil {
			c.Error(err)
			return
		}
	}

	h.uplink.SetSessionPolicy(domain.SessionID(session), req.Policy)
	c.JSON(http.StatusOK, gin.H{"session_id": session, "policy": req.Policy})
}

func senderParams(c *gin.Context) (domain.SessionID, domain.SenderID, bool) {
	session, sender := c.Param("session"), c.Param("sender")
	if err := validation.ValidateSessionID(session); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return "", "", false
	}
	if err := validation.ValidateSenderID(sender); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return "", "", false
	}
	return domain.SessionID(session), domain.SenderID(sender), true
}

var _ ports.UplinkHTTPHandler = (*UplinkHandler)(nil)
