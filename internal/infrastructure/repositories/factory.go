package repositories

import (
	"context"

	"uplinkpolicy/internal/core/ports"
	"uplinkpolicy/internal/infrastructure/reliability"
	"uplinkpolicy/internal/infrastructure/repositories/memory"
	redisrepo "uplinkpolicy/internal/infrastructure/repositories/redis"
	"uplinkpolicy/pkg/circuitbreaker"
	"uplinkpolicy/pkg/config"
	"uplinkpolicy/pkg/retry"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RepositoryFactory creates repositories with fallback support
type RepositoryFactory struct {
	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

// NewRepositoryFactory uses Redis when it is enabled and reachable and
// falls back to process memory otherwise.
func NewRepositoryFactory(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) *RepositoryFactory {
	factory := &RepositoryFactory{logger: logger}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewRedisClient(ctx, redisrepo.ClientOptions{
			Address:  cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			PoolSize: cfg.Redis.PoolSize,
			Retry:    retry.DefaultConfig(),
		}, logger)
		if err != nil {
			logger.Warnw("failed to connect to Redis, falling back to memory repositories",
				"error", err,
			)
		} else {
			factory.redisClient = client
			logger.Info("using Redis repositories")
		}
	}

	if factory.redisClient == nil {
		logger.Info("using memory repositories")
	}
	return factory
}

// CreatePolicyRepository guards the Redis store with retries and a circuit
// breaker; the memory store is used as is.
func (f *RepositoryFactory) CreatePolicyRepository() ports.PolicyRepository {
	if f.redisClient != nil {
		return reliability.NewPolicyRepository(
			redisrepo.NewRedisPolicyRepository(f.redisClient),
			retry.DefaultConfig(),
			circuitbreaker.DefaultConfig(),
			f.logger,
		)
	}
	return memory.NewMemoryPolicyRepository()
}

// RedisClient is nil when the factory fell back to memory.
func (f *RepositoryFactory) RedisClient() *redis.Client {
	return f.redisClient
}

func (f *RepositoryFactory) Close() error {
	return redisrepo.CloseRedisClient(f.redisClient)
}

// HealthCheck checks Redis connection health
func (f *RepositoryFactory) HealthCheck(ctx context.Context) error {
	if f.redisClient != nil {
		return f.redisClient.Ping(ctx).Err()
	}
	return nil
}
