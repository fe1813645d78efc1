package services

import (
	"uplinkpolicy/internal/core/domain"

	"go.uber.org/zap"
)

// Rough uplink rates at which WebRTC itself drops simulcast layers.
const (
	MidDisabledRateKbps = 240
	HiDisabledRateKbps  = 700
)

// DefaultRules approximates the fixed-threshold uplink policy this table
// replaced. Row order decides boundary inputs, so keep it as is.
func DefaultRules() []domain.Rule {
	var (
		open = domain.Unbounded()
		at   = domain.Bounded
	)
	return []domain.Rule{
		// Two senders or fewer: simulcast off, high layer only.
		domain.NewRule(at(2), open, 0, 0, 1200),

		domain.NewRule(at(4), at(MidDisabledRateKbps), 300, 0, 0),
		domain.NewRule(at(4), at(350), 150, 600, 0),
		domain.NewRule(at(4), at(HiDisabledRateKbps), 200, 600, 0),
		domain.NewRule(at(4), open, 300, 0, 1200),

		domain.NewRule(at(6), at(MidDisabledRateKbps), 300, 0, 0),
		domain.NewRule(at(6), at(350), 150, 600, 0),
		domain.NewRule(at(6), open, 200, 600, 0),

		domain.NewRule(open, at(MidDisabledRateKbps), 300, 0, 0),
		domain.NewRule(open, at(350), 150, 350, 0),
		domain.NewRule(open, open, 200, 600, 0),
	}
}

func DefaultRuleDescriptors() []domain.RuleDescriptor {
	rules := DefaultRules()
	descriptors := make([]domain.RuleDescriptor, len(rules))
	for i, rule := range rules {
		descriptors[i] = rule.Descriptor()
	}
	return descriptors
}

// DefaultPolicy builds the built-in table under the default policy name.
func DefaultPolicy(logger *zap.SugaredLogger) *BandwidthPolicy {
	return NewBandwidthPolicy(domain.DefaultPolicyName, DefaultRules(), logger)
}
