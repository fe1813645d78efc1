package reliability

import (
	"context"
	"errors"

	"uplinkpolicy/internal/core/domain"
	"uplinkpolicy/internal/core/ports"
	"uplinkpolicy/pkg/circuitbreaker"
	"uplinkpolicy/pkg/retry"

	"go.uber.org/zap"
)

// PolicyRepository wraps a shared policy store with retries and a circuit
// breaker. A missing policy is an answer, not a store failure, so it is
// neither retried nor counted against the breaker.
type PolicyRepository struct {
	repo    ports.PolicyRepository
	retry   retry.Config
	breaker *circuitbreaker.CircuitBreaker
	logger  *zap.SugaredLogger
}

func NewPolicyRepository(
	repo ports.PolicyRepository,
	retryConfig retry.Config,
	cbConfig circuitbreaker.Config,
	logger *zap.SugaredLogger,
) *PolicyRepository {
	retryConfig.Permanent = append([]error{domain.ErrPolicyNotFound, circuitbreaker.ErrOpen}, retryConfig.Permanent...)
	cbConfig.IsFailure = func(err error) bool {
		return !errors.Is(err, domain.ErrPolicyNotFound)
	}

	w := &PolicyRepository{
		repo:    repo,
		retry:   retryConfig,
		breaker: circuitbreaker.New(cbConfig),
		logger:  logger,
	}
	w.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("policy store circuit breaker state changed",
			"from", from.String(),
			"to", to.String(),
		)
	})
	return w
}

func (w *PolicyRepository) Save(ctx context.Context, policy *domain.StoredPolicy) error {
	return retry.Do(ctx, w.retry, func(ctx context.Context) error {
		return w.breaker.Execute(ctx, func(ctx context.Context) error {
			return w.repo.Save(ctx, policy)
		})
	})
}

func (w *PolicyRepository) Get(ctx context.Context, name string) (*domain.StoredPolicy, error) {
	return retry.DoWithResult(ctx, w.retry, func(ctx context.Context) (*domain.StoredPolicy, error) {
		return circuitbreaker.ExecuteWithResult(ctx, w.breaker, func(ctx context.Context) (*domain.StoredPolicy, error) {
			return w.repo.Get(ctx, name)
		})
	})
}

func (w *PolicyRepository) Delete(ctx context.Context, name string) error {
	return retry.Do(ctx, w.retry, func(ctx context.Context) error {
		return w.breaker.Execute(ctx, func(ctx context.Context) error {
			return w.repo.Delete(ctx, name)
		})
	})
}

func (w *PolicyRepository) List(ctx context.Context) ([]*domain.StoredPolicy, error) {
	return retry.DoWithResult(ctx, w.retry, func(ctx context.Context) ([]*domain.StoredPolicy, error) {
		return circuitbreaker.ExecuteWithResult(ctx, w.breaker, func(ctx context.Context) ([]*domain.StoredPolicy, error) {
			return w.repo.List(ctx)
		})
	})
}

func (w *PolicyRepository) BreakerStats() circuitbreaker.Stats {
	return w.breaker.Stats()
}

var _ ports.PolicyRepository = (*PolicyRepository)(nil)
