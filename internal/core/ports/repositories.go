package ports

import (
	"context"

	"uplinkpolicy/internal/core/domain"
)

type PolicyRepository interface {
	Save(ctx context.Context, policy *domain.StoredPolicy) error
	Get(ctx context.Context, name string) (*domain.StoredPolicy, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]*domain.StoredPolicy, error)
}
