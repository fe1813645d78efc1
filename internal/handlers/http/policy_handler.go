package http

import (
	"net/http"
	"time"

	"uplinkpolicy/internal/core/domain"
	"uplinkpolicy/internal/core/ports"
	"uplinkpolicy/internal/core/services"
	"uplinkpolicy/internal/infrastructure/middleware"
	apperrors "uplinkpolicy/pkg/errors"
	"uplinkpolicy/pkg/tracing"
	"uplinkpolicy/pkg/validation"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type PolicyHandler struct {
	policies    ports.PolicyService
	authService services.AuthService
	logger      *zap.SugaredLogger
}

func NewPolicyHandler(policies ports.PolicyService, authService services.AuthService, logger *zap.SugaredLogger) *PolicyHandler {
	return &PolicyHandler{
		policies:    policies,
		authService: authService,
		logger:      logger,
	}
}

func (h *PolicyHandler) SetupRoutes(api *gin.RouterGroup) {
	editor := middleware.AuthMiddleware(h.authService, domain.RoleEditor)

	api.GET("/policies", h.ListPolicies)
	api.POST("/policies/validate", h.ValidatePolicy)
	api.GET("/policies/:name", h.GetPolicy)
	api.PUT("/policies/:name", editor, h.ReplacePolicy)
	api.DELETE("/policies/:name", editor, h.DeletePolicy)
	api.POST("/policies/:name/match", h.MatchPolicy)
}

type RuleView struct {
	domain.RuleDescriptor
	ActiveStreams domain.ActiveStreamSet `json:"active_streams"`
	Description   string                 `json:"description"`
}

type PolicyView struct {
	Name      string     `json:"name"`
	Version   uint64     `json:"version"`
	UpdatedAt time.Time  `json:"updated_at"`
	Rules     []RuleView `json:"rules"`
}

func newPolicyView(stored *domain.StoredPolicy) PolicyView {
	view := PolicyView{
		Name:      stored.Name,
		Version:   stored.Version,
		UpdatedAt: stored.UpdatedAt,
		Rules:     make([]RuleView, len(stored.Rules)),
	}
	for i, d := range stored.Rules {
		rule := domain.RuleFromDescriptor(d)
		view.Rules[i] = RuleView{
			RuleDescriptor: d,
			ActiveStreams:  rule.ActiveStreams(),
			Description:    rule.Describe(i),
		}
	}
	return view
}

type MatchView struct {
	Policy        string                 `json:"policy"`
	Participants  int                    `json:"participants"`
	BitrateKbps   int                    `json:"bitrate_kbps"`
	RuleIndex     int                    `json:"rule_index"`
	Fallback      bool                   `json:"fallback"`
	Tiers         domain.TierBitrates    `json:"tiers"`
	ActiveStreams domain.ActiveStreamSet `json:"active_streams"`
	Description   string                 `json:"description"`
}

type PolicyRequest struct {
	Rules []domain.RuleDescriptor `json:"rules" binding:"required,min=1,max=256"`
}

type MatchRequest struct {
	Participants int `json:"participants"`
	BitrateKbps  int `json:"bitrate_kbps"`
}

func (h *PolicyHandler) ListPolicies(c *gin.Context) {
	stored, err := h.policies.List(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	views := make([]PolicyView, len(stored))
	for i, p := range stored {
		views[i] = newPolicyView(p)
	}
	c.JSON(http.StatusOK, gin.H{"policies": views})
}

func (h *PolicyHandler) GetPolicy(c *gin.Context) {
	name, ok := policyName(c)
	if !ok {
		return
	}

	stored, err := h.policies.Describe(c.Request.Context(), name)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, newPolicyView(stored))
}

func (h *PolicyHandler) ReplacePolicy(c *gin.Context) {
	name, ok := policyName(c)
	if !ok {
		return
	}

	var req PolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("request must carry a non-empty rules list"))
		return
	}

	ctx, span := tracing.TracePolicyStore(c.Request.Context(), "replace", name)
	defer span.End()

	stored, err := h.policies.Replace(ctx, name, req.Rules)
	if err != nil {
		tracing.RecordError(ctx, err)
		c.Error(err)
		return
	}

	operator, _ := middleware.OperatorFromContext(c)
	h.logger.Infow("policy replaced over api",
		"policy", name,
		"version", stored.Version,
		"operator_id", operator,
	)
	c.JSON(http.StatusOK, newPolicyView(stored))
}

func (h *PolicyHandler) DeletePolicy(c *gin.Context) {
	name, ok := policyName(c)
	if !ok {
		return
	}

	ctx, span := tracing.TracePolicyStore(c.Request.Context(), "delete", name)
	defer span.End()

	if err := h.policies.Delete(ctx, name); err != nil {
		tracing.RecordError(ctx, err)
		c.Error(err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ValidatePolicy checks a table without storing it. Problems come back
// as a 422 listing every issue.
func (h *PolicyHandler) ValidatePolicy(c *gin.Context) {
	var req PolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("request must carry a non-empty rules list"))
		return
	}

	if err := h.policies.Validate(req.Rules); err != nil {
		c.Error(apperrors.NewInvalidPolicyError(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "rules": len(req.Rules)})
}

func (h *PolicyHandler) MatchPolicy(c *gin.Context) {
	name, ok := policyName(c)
	if !ok {
		return
	}

	var req MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.Error(apperrors.NewInvalidInputError("invalid request format"))
		return
	}
	if err := validation.ValidateParticipants(req.Participants); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}
	if err := validation.ValidateBitrate(req.BitrateKbps); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return
	}

	ctx, span := tracing.TraceMatch(c.Request.Context(), name, req.Participants, req.BitrateKbps)
	defer span.End()

	result, err := h.policies.Test(ctx, name, req.Participants, req.BitrateKbps)
	if err != nil {
		tracing.RecordError(ctx, err)
		c.Error(err)
		return
	}
	tracing.RecordMatchResult(ctx, result.Index, result.Fallback, result.ActiveStreams().String())

	c.JSON(http.StatusOK, MatchView{
		Policy:        name,
		Participants:  req.Participants,
		BitrateKbps:   req.BitrateKbps,
		RuleIndex:     result.Index,
		Fallback:      result.Fallback,
		Tiers:         result.Rule.Tiers(),
		ActiveStreams: result.ActiveStreams(),
		Description:   result.Describe(),
	})
}

func policyName(c *gin.Context) (string, bool) {
	name := c.Param("name")
	if err := validation.ValidatePolicyName(name); err != nil {
		c.Error(apperrors.NewInvalidInputError(err.Error()))
		return "", false
	}
	return name, true
}

var _ ports.PolicyHTTPHandler = (*PolicyHandler)(nil)
