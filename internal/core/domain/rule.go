package domain

import "fmt"

// FallbackIndex is the MatchResult index of a synthesized fallback rule.
const FallbackIndex = -1

// TierBitrates are per-tier encoder targets in kbps. Zero disables a tier.
type TierBitrates struct {
	LowKbps    int `json:"low_kbps" yaml:"low_kbps"`
	MediumKbps int `json:"medium_kbps" yaml:"medium_kbps"`
	HighKbps   int `json:"high_kbps" yaml:"high_kbps"`
}

func (t TierBitrates) String() string {
	return fmt.Sprintf("(%d,%d,%d)", t.LowKbps, t.MediumKbps, t.HighKbps)
}

// RuleDescriptor is the authored form of a rule: two ceilings and three tier bitrates.
type RuleDescriptor struct {
	MaxParticipants Ceiling `json:"max_participants" yaml:"max_participants"`
	MaxBitrateKbps  Ceiling `json:"max_bitrate_kbps" yaml:"max_bitrate_kbps"`
	LowKbps         int     `json:"low_kbps" yaml:"low_kbps"`
	MediumKbps      int     `json:"medium_kbps" yaml:"medium_kbps"`
	HighKbps        int     `json:"high_kbps" yaml:"high_kbps"`
}

// Rule is one row of a bandwidth policy table. It is immutable.
type Rule struct {
	maxParticipants Ceiling
	maxBitrateKbps  Ceiling
	tiers           TierBitrates
}

func NewRule(maxParticipants, maxBitrateKbps Ceiling, lowKbps, mediumKbps, highKbps int) Rule {
	return Rule{
		maxParticipants: maxParticipants,
		maxBitrateKbps:  maxBitrateKbps,
		tiers: TierBitrates{
			LowKbps:    lowKbps,
			MediumKbps: mediumKbps,
			HighKbps:   highKbps,
		},
	}
}

func RuleFromDescriptor(d RuleDescriptor) Rule {
	return NewRule(d.MaxParticipants, d.MaxBitrateKbps, d.LowKbps, d.MediumKbps, d.HighKbps)
}

func RulesFromDescriptors(descriptors []RuleDescriptor) []Rule {
	rules := make([]Rule, len(descriptors))
	for i, d := range descriptors {
		rules[i] = RuleFromDescriptor(d)
	}
	return rules
}

func (r Rule) Descriptor() RuleDescriptor {
	return RuleDescriptor{
		MaxParticipants: r.maxParticipants,
		MaxBitrateKbps:  r.maxBitrateKbps,
		LowKbps:         r.tiers.LowKbps,
		MediumKbps:      r.tiers.MediumKbps,
		HighKbps:        r.tiers.HighKbps,
	}
}

func (r Rule) MaxParticipants() Ceiling { return r.maxParticipants }
func (r Rule) MaxBitrateKbps() Ceiling  { return r.maxBitrateKbps }
func (r Rule) Tiers() TierBitrates      { return r.tiers }
func (r Rule) LowKbps() int             { return r.tiers.LowKbps }
func (r Rule) MediumKbps() int          { return r.tiers.MediumKbps }
func (r Rule) HighKbps() int            { return r.tiers.HighKbps }

// Match reports whether both inputs are at or below the rule's ceilings.
func (r Rule) Match(participants, bitrateKbps int) bool {
	return r.maxParticipants.Allows(participants) && r.maxBitrateKbps.Allows(bitrateKbps)
}

func (r Rule) ActiveStreams() ActiveStreamSet {
	return DeriveActiveStreams(r.tiers)
}

// Describe renders the rule for diagnostics, e.g. "Rule 2: 4 / 350 = medium+low (150,600,0)".
// The line is not a stable format.
func (r Rule) Describe(index int) string {
	label := fmt.Sprintf("%d", index)
	if index == FallbackIndex {
		label = "fallback"
	}
	return fmt.Sprintf("Rule %s: %s / %s = %s %s",
		label, r.maxParticipants, r.maxBitrateKbps, r.ActiveStreams(), r.tiers)
}

// MatchResult is a rule selected by a policy search together with its position
// in the table. Fallback is set when no row matched and Rule was synthesized.
type MatchResult struct {
	Rule     Rule
	Index    int
	Fallback bool
}

func (m MatchResult) Describe() string {
	return m.Rule.Describe(m.Index)
}

func (m MatchResult) ActiveStreams() ActiveStreamSet {
	return m.Rule.ActiveStreams()
}
