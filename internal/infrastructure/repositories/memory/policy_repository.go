package memory

import (
	"context"
	"sort"
	"sync"

	"uplinkpolicy/internal/core/domain"
	"uplinkpolicy/internal/core/ports"
)

type MemoryPolicyRepository struct {
	policies map[string]*domain.StoredPolicy
	mu       sync.RWMutex
}

func NewMemoryPolicyRepository() ports.PolicyRepository {
	return &MemoryPolicyRepository{
		policies: make(map[string]*domain.StoredPolicy),
	}
}

func (r *MemoryPolicyRepository) Save(ctx context.Context, policy *domain.StoredPolicy) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.policies[policy.Name] = clonePolicy(policy)
	return nil
}

func (r *MemoryPolicyRepository) Get(ctx context.Context, name string) (*domain.StoredPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	policy, exists := r.policies[name]
	if !exists {
		return nil, domain.ErrPolicyNotFound
	}
	return clonePolicy(policy), nil
}

func (r *MemoryPolicyRepository) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.policies[name]; !exists {
		return domain.ErrPolicyNotFound
	}
	delete(r.policies, name)
	return nil
}

// List returns policies sorted by name.
func (r *MemoryPolicyRepository) List(ctx context.Context) ([]*domain.StoredPolicy, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	policies := make([]*domain.StoredPolicy, 0, len(r.policies))
	for _, policy := range r.policies {
		policies = append(policies, clonePolicy(policy))
	}
	sort.Slice(policies, func(i, j int) bool {
		return policies[i].Name < policies[j].Name
	})
	return policies, nil
}

func clonePolicy(policy *domain.StoredPolicy) *domain.StoredPolicy {
	clone := *policy
	clone.Rules = append([]domain.RuleDescriptor(nil), policy.Rules...)
	return &clone
}
