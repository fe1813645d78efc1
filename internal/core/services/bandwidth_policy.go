package services

import (
	"uplinkpolicy/internal/core/domain"

	"go.uber.org/zap"
)

// Fallback rule handed out when a table has no row for the inputs. A table
// whose last row is unbounded in both ceilings never reaches it.
const (
	fallbackMaxParticipants = 99
	fallbackMaxBitrateKbps  = 99
	fallbackLowKbps         = 100
)

// FallbackRule is the low quality rule returned when no row matches.
func FallbackRule() domain.Rule {
	return domain.NewRule(
		domain.Bounded(fallbackMaxParticipants),
		domain.Bounded(fallbackMaxBitrateKbps),
		fallbackLowKbps, 0, 0,
	)
}

// BandwidthPolicy is an ordered rule table searched first-match-wins.
//
// Rows are evaluated in the order they were given, so tables must run from the
// most restrictive ceilings to the least restrictive. The table is never sorted
// and there is no best-fit comparison between matching rows. A BandwidthPolicy
// is immutable and safe for concurrent use.
type BandwidthPolicy struct {
	name   string
	rules  []domain.Rule
	logger *zap.SugaredLogger
}

// NewBandwidthPolicy copies rules; later changes to the slice do not affect the policy.
func NewBandwidthPolicy(name string, rules []domain.Rule, logger *zap.SugaredLogger) *BandwidthPolicy {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	owned := make([]domain.Rule, len(rules))
	copy(owned, rules)
	return &BandwidthPolicy{
		name:   name,
		rules:  owned,
		logger: logger.With("policy", name),
	}
}

func NewBandwidthPolicyFromDescriptors(name string, descriptors []domain.RuleDescriptor, logger *zap.SugaredLogger) *BandwidthPolicy {
	return NewBandwidthPolicy(name, domain.RulesFromDescriptors(descriptors), logger)
}

func (p *BandwidthPolicy) Name() string {
	return p.name
}

// Rules returns a copy of the table in evaluation order.
func (p *BandwidthPolicy) Rules() []domain.Rule {
	rules := make([]domain.Rule, len(p.rules))
	copy(rules, p.rules)
	return rules
}

func (p *BandwidthPolicy) Descriptors() []domain.RuleDescriptor {
	descriptors := make([]domain.RuleDescriptor, len(p.rules))
	for i, rule := range p.rules {
		descriptors[i] = rule.Descriptor()
	}
	return descriptors
}

func (p *BandwidthPolicy) Len() int {
	return len(p.rules)
}

// FindMatch returns the first rule whose ceilings admit both inputs, with its
// 0-based position. Negative inputs are treated as zero. When nothing matches
// the fallback rule is returned with Fallback set.
func (p *BandwidthPolicy) FindMatch(participants, bitrateKbps int) domain.MatchResult {
	participants = clampNonNegative(participants)
	bitrateKbps = clampNonNegative(bitrateKbps)

	for i, rule := range p.rules {
		if rule.Match(participants, bitrateKbps) {
			result := domain.MatchResult{Rule: rule, Index: i}
			p.logger.Debugw("bandwidth policy match",
				"participants", participants,
				"bitrate_kbps", bitrateKbps,
				"rule", result.Describe(),
			)
			return result
		}
	}

	result := domain.MatchResult{
		Rule:     FallbackRule(),
		Index:    domain.FallbackIndex,
		Fallback: true,
	}
	p.logger.Warnw("no bandwidth policy rule matched, using fallback",
		"participants", participants,
		"bitrate_kbps", bitrateKbps,
		"rules", len(p.rules),
		"rule", result.Describe(),
	)
	return result
}

// TestMatch runs FindMatch and logs the outcome at info level.
func (p *BandwidthPolicy) TestMatch(participants, bitrateKbps int) domain.MatchResult {
	result := p.FindMatch(participants, bitrateKbps)
	p.logger.Infow("bandwidth policy test",
		"participants", participants,
		"bitrate_kbps", bitrateKbps,
		"fallback", result.Fallback,
		"rule", result.Describe(),
	)
	return result
}

// Validate checks the table; it is never run implicitly by FindMatch.
func (p *BandwidthPolicy) Validate() error {
	return domain.ValidateRules(p.rules)
}

func clampNonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
