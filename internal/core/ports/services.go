package ports

import (
	"context"

	"uplinkpolicy/internal/core/domain"
)

// PolicyMatcher is the read side of a compiled rule table.
type PolicyMatcher interface {
	FindMatch(participants, bitrateKbps int) domain.MatchResult
	TestMatch(participants, bitrateKbps int) domain.MatchResult
	Rules() []domain.Rule
}

type PolicyService interface {
	Get(ctx context.Context, name string) (PolicyMatcher, error)
	List(ctx context.Context) ([]*domain.StoredPolicy, error)
	Describe(ctx context.Context, name string) (*domain.StoredPolicy, error)
	Replace(ctx context.Context, name string, rules []domain.RuleDescriptor) (*domain.StoredPolicy, error)
	Delete(ctx context.Context, name string) error
	Match(ctx context.Context, name string, participants, bitrateKbps int) (domain.MatchResult, error)
	Test(ctx context.Context, name string, participants, bitrateKbps int) (domain.MatchResult, error)
	Validate(rules []domain.RuleDescriptor) error
}

type UplinkService interface {
	Join(session domain.SessionID, sender domain.SenderID)
	Leave(session domain.SessionID, sender domain.SenderID)
	Report(ctx context.Context, report domain.UplinkReport) (domain.Decision, bool, error)
	CurrentDecision(sender domain.SenderID) (domain.Decision, error)
	History(sender domain.SenderID) []domain.Decision
	SessionSize(session domain.SessionID) int
	SetSessionPolicy(session domain.SessionID, policy string)
}

// MatchRecorder receives every policy decision for metrics.
type MatchRecorder interface {
	RecordMatch(policy string, result domain.MatchResult)
	RecordPolicyReplaced(policy string)
	RecordDecision(decision domain.Decision, changed bool)
	RecordSenderLeft(session domain.SessionID, sender domain.SenderID)
}

// PolicyEventPublisher tells other instances that a stored policy changed.
type PolicyEventPublisher interface {
	PublishPolicyReplaced(ctx context.Context, name string, version uint64) error
	PublishPolicyDeleted(ctx context.Context, name string) error
}
