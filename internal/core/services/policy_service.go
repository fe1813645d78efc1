package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"uplinkpolicy/internal/core/domain"
	"uplinkpolicy/internal/core/ports"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const defaultPolicyCacheSize = 64

type PolicyServiceOptions struct {
	// DefaultRules replaces the stored default policy at startup. When empty
	// the stored default is kept, or the built-in table is stored if none exists.
	DefaultRules []domain.RuleDescriptor
	// Strict rejects tables that fail validation instead of logging them.
	Strict    bool
	CacheSize int
	Events    ports.PolicyEventPublisher
	Recorder  ports.MatchRecorder
}

// PolicyService keeps named bandwidth policies. Stored tables are compiled
// into immutable BandwidthPolicy values and cached; replacing a table swaps
// in a new value and never mutates one that callers may still hold.
type PolicyService struct {
	repo     ports.PolicyRepository
	cache    *lru.Cache[string, *BandwidthPolicy]
	events   ports.PolicyEventPublisher
	recorder ports.MatchRecorder
	strict   bool
	logger   *zap.SugaredLogger
}

func NewPolicyService(
	ctx context.Context,
	repo ports.PolicyRepository,
	opts PolicyServiceOptions,
	logger *zap.SugaredLogger,
) (*PolicyService, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = defaultPolicyCacheSize
	}
	cache, err := lru.New[string, *BandwidthPolicy](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create policy cache: %w", err)
	}

	s := &PolicyService{
		repo:     repo,
		cache:    cache,
		events:   opts.Events,
		recorder: opts.Recorder,
		strict:   opts.Strict,
		logger:   logger,
	}

	if err := s.seedDefault(ctx, opts.DefaultRules); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *PolicyService) seedDefault(ctx context.Context, configured []domain.RuleDescriptor) error {
	if len(configured) > 0 {
		if _, err := s.Replace(ctx, domain.DefaultPolicyName, configured); err != nil {
			return fmt.Errorf("failed to install configured default policy: %w", err)
		}
		return nil
	}

	_, err := s.repo.Get(ctx, domain.DefaultPolicyName)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrPolicyNotFound) {
		return fmt.Errorf("failed to load default policy: %w", err)
	}

	if _, err := s.Replace(ctx, domain.DefaultPolicyName, DefaultRuleDescriptors()); err != nil {
		return fmt.Errorf("failed to install built-in default policy: %w", err)
	}
	return nil
}

// Get returns the compiled policy for name.
func (s *PolicyService) Get(ctx context.Context, name string) (ports.PolicyMatcher, error) {
	return s.compiled(ctx, name)
}

func (s *PolicyService) compiled(ctx context.Context, name string) (*BandwidthPolicy, error) {
	if policy, ok := s.cache.Get(name); ok {
		return policy, nil
	}

	stored, err := s.repo.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	policy := NewBandwidthPolicyFromDescriptors(stored.Name, stored.Rules, s.logger)
	s.cache.Add(name, policy)
	return policy, nil
}

func (s *PolicyService) List(ctx context.Context) ([]*domain.StoredPolicy, error) {
	return s.repo.List(ctx)
}

func (s *PolicyService) Describe(ctx context.Context, name string) (*domain.StoredPolicy, error) {
	return s.repo.Get(ctx, name)
}

// Replace stores a new table under name and makes it live on this instance.
func (s *PolicyService) Replace(ctx context.Context, name string, rules []domain.RuleDescriptor) (*domain.StoredPolicy, error) {
	if err := s.Validate(rules); err != nil {
		if s.strict {
			return nil, err
		}
		for _, issue := range domain.ValidationIssues(err) {
			s.logger.Warnw("storing policy with validation issue",
				"policy", name,
				"row", issue.Row,
				"reason", issue.Reason,
			)
		}
	}

	version := uint64(1)
	existing, err := s.repo.Get(ctx, name)
	switch {
	case err == nil:
		version = existing.Version + 1
	case !errors.Is(err, domain.ErrPolicyNotFound):
		return nil, fmt.Errorf("failed to read policy %s: %w", name, err)
	}

	stored := &domain.StoredPolicy{
		Name:      name,
		Version:   version,
		Rules:     append([]domain.RuleDescriptor(nil), rules...),
		UpdatedAt: time.Now(),
	}
	if err := s.repo.Save(ctx, stored); err != nil {
		return nil, fmt.Errorf("failed to save policy %s: %w", name, err)
	}

	s.cache.Add(name, NewBandwidthPolicyFromDescriptors(name, stored.Rules, s.logger))

	s.logger.Infow("policy replaced",
		"policy", name,
		"version", version,
		"rules", len(rules),
	)
	if s.recorder != nil {
		s.recorder.RecordPolicyReplaced(name)
	}
	if s.events != nil {
		if err := s.events.PublishPolicyReplaced(ctx, name, version); err != nil {
			s.logger.Warnw("failed to publish policy replacement",
				"policy", name,
				"error", err,
			)
		}
	}
	return stored, nil
}

func (s *PolicyService) Delete(ctx context.Context, name string) error {
	if name == domain.DefaultPolicyName {
		return domain.ErrDefaultPolicyRequired
	}
	if err := s.repo.Delete(ctx, name); err != nil {
		return err
	}
	s.cache.Remove(name)

	s.logger.Infow("policy deleted", "policy", name)
	if s.events != nil {
		if err := s.events.PublishPolicyDeleted(ctx, name); err != nil {
			s.logger.Warnw("failed to publish policy deletion",
				"policy", name,
				"error", err,
			)
		}
	}
	return nil
}

// Invalidate drops the compiled copy of name so the next lookup reloads it.
// Used when another instance changed the stored table.
func (s *PolicyService) Invalidate(name string) {
	if s.cache.Remove(name) {
		s.logger.Debugw("policy cache invalidated", "policy", name)
	}
}

func (s *PolicyService) Match(ctx context.Context, name string, participants, bitrateKbps int) (domain.MatchResult, error) {
	policy, err := s.compiled(ctx, name)
	if err != nil {
		return domain.MatchResult{}, err
	}
	result := policy.FindMatch(participants, bitrateKbps)
	s.record(name, result)
	return result, nil
}

func (s *PolicyService) Test(ctx context.Context, name string, participants, bitrateKbps int) (domain.MatchResult, error) {
	policy, err := s.compiled(ctx, name)
	if err != nil {
		return domain.MatchResult{}, err
	}
	result := policy.TestMatch(participants, bitrateKbps)
	s.record(name, result)
	return result, nil
}

func (s *PolicyService) Validate(rules []domain.RuleDescriptor) error {
	return domain.ValidateRules(domain.RulesFromDescriptors(rules))
}

func (s *PolicyService) record(name string, result domain.MatchResult) {
	if s.recorder != nil {
		s.recorder.RecordMatch(name, result)
	}
}

var _ ports.PolicyService = (*PolicyService)(nil)
