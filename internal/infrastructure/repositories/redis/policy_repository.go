package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"uplinkpolicy/internal/core/domain"
	"uplinkpolicy/internal/core/ports"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix       = "uplinkpolicy:"
	policyKeyPrefix = keyPrefix + "policy:"
	policyIndexKey  = keyPrefix + "policies"
)

// RedisPolicyRepository stores each policy as JSON under its own key and
// keeps the names in a set so instances can list them without SCAN.
type RedisPolicyRepository struct {
	client *redis.Client
}

func NewRedisPolicyRepository(client *redis.Client) ports.PolicyRepository {
	return &RedisPolicyRepository{client: client}
}

func policyKey(name string) string {
	return policyKeyPrefix + name
}

func (r *RedisPolicyRepository) Save(ctx context.Context, policy *domain.StoredPolicy) error {
	data, err := json.Marshal(policy)
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, policyKey(policy.Name), data, 0)
	pipe.SAdd(ctx, policyIndexKey, policy.Name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save policy in Redis: %w", err)
	}
	return nil
}

func (r *RedisPolicyRepository) Get(ctx context.Context, name string) (*domain.StoredPolicy, error) {
	data, err := r.client.Get(ctx, policyKey(name)).Bytes()
	if err == redis.Nil {
		return nil, domain.ErrPolicyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy from Redis: %w", err)
	}
	return decodePolicy(data)
}

func (r *RedisPolicyRepository) Delete(ctx context.Context, name string) error {
	pipe := r.client.TxPipeline()
	deleted := pipe.Del(ctx, policyKey(name))
	pipe.SRem(ctx, policyIndexKey, name)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete policy from Redis: %w", err)
	}
	if deleted.Val() == 0 {
		return domain.ErrPolicyNotFound
	}
	return nil
}

func (r *RedisPolicyRepository) List(ctx context.Context) ([]*domain.StoredPolicy, error) {
	names, err := r.client.SMembers(ctx, policyIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list policies from Redis: %w", err)
	}
	if len(names) == 0 {
		return []*domain.StoredPolicy{}, nil
	}
	sort.Strings(names)

	keys := make([]string, len(names))
	for i, name := range names {
		keys[i] = policyKey(name)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load policies from Redis: %w", err)
	}

	policies := make([]*domain.StoredPolicy, 0, len(values))
	for _, value := range values {
		s, ok := value.(string)
		if !ok {
			// Deleted between SMEMBERS and MGET.
			continue
		}
		policy, err := decodePolicy([]byte(s))
		if err != nil {
			return nil, err
		}
		policies = append(policies, policy)
	}
	return policies, nil
}

func decodePolicy(data []byte) (*domain.StoredPolicy, error) {
	var policy domain.StoredPolicy
	if err := json.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to unmarshal policy: %w", err)
	}
	return &policy, nil
}
