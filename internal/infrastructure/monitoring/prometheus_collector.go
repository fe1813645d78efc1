package monitoring

import (
	"strconv"

	"uplinkpolicy/internal/core/domain"
	"uplinkpolicy/internal/core/ports"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/atomic"
)

const fallbackRuleLabel = "fallback"

type PrometheusCollector struct {
	matchesTotal         *prometheus.CounterVec
	fallbacksTotal       *prometheus.CounterVec
	decisionChangesTotal *prometheus.CounterVec
	targetBitrateKbps    *prometheus.GaugeVec
	policyReplacements   *prometheus.CounterVec

	sendersConnected atomic.Int64
}

// NewPrometheusCollector registers the policy metrics on reg.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	p := &PrometheusCollector{
		matchesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "uplinkpolicy_matches_total",
			Help: "Policy lookups by matched rule index",
		}, []string{"policy", "rule"}),

		fallbacksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "uplinkpolicy_fallbacks_total",
			Help: "Policy lookups that matched no rule and used the fallback",
		}, []string{"policy"}),

		decisionChangesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "uplinkpolicy_decision_changes_total",
			Help: "Applied simulcast decision changes by resulting stream set",
		}, []string{"active_streams"}),

		targetBitrateKbps: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "uplinkpolicy_target_bitrate_kbps",
			Help: "Current target bitrate per sender and simulcast tier",
		}, []string{"session", "sender", "tier"}),

		policyReplacements: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "uplinkpolicy_policy_replacements_total",
			Help: "Policy tables stored or replaced",
		}, []string{"policy"}),
	}

	factory.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "uplinkpolicy_senders_connected",
		Help: "Senders connected over the websocket channel",
	}, func() float64 {
		return float64(p.sendersConnected.Load())
	})

	return p
}

func (p *PrometheusCollector) RecordMatch(policy string, result domain.MatchResult) {
	rule := fallbackRuleLabel
	if !result.Fallback {
		rule = strconv.Itoa(result.Index)
	}
	p.matchesTotal.WithLabelValues(policy, rule).Inc()
	if result.Fallback {
		p.fallbacksTotal.WithLabelValues(policy).Inc()
	}
}

func (p *PrometheusCollector) RecordPolicyReplaced(policy string) {
	p.policyReplacements.WithLabelValues(policy).Inc()
}

func (p *PrometheusCollector) RecordDecision(decision domain.Decision, changed bool) {
	if !changed {
		return
	}
	p.decisionChangesTotal.WithLabelValues(decision.ActiveStreams.String()).Inc()

	session, sender := string(decision.Session), string(decision.Sender)
	p.targetBitrateKbps.WithLabelValues(session, sender, "low").Set(float64(decision.Tiers.LowKbps))
	p.targetBitrateKbps.WithLabelValues(session, sender, "medium").Set(float64(decision.Tiers.MediumKbps))
	p.targetBitrateKbps.WithLabelValues(session, sender, "high").Set(float64(decision.Tiers.HighKbps))
}

func (p *PrometheusCollector) RecordSenderLeft(session domain.SessionID, sender domain.SenderID) {
	for _, tier := range []string{"low", "medium", "high"} {
		p.targetBitrateKbps.DeleteLabelValues(string(session), string(sender), tier)
	}
}

func (p *PrometheusCollector) SenderConnected() {
	p.sendersConnected.Inc()
}

func (p *PrometheusCollector) SenderDisconnected() {
	p.sendersConnected.Dec()
}

var _ ports.MatchRecorder = (*PrometheusCollector)(nil)
