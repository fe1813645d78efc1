package repositories

import (
	"context"
	"testing"

	"uplinkpolicy/internal/infrastructure/repositories/memory"
	"uplinkpolicy/pkg/config"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"
)

func TestRepositoryFactory_MemoryWhenRedisDisabled(t *testing.T) {
	cfg := config.DefaultConfig()
	factory := NewRepositoryFactory(context.Background(), cfg, zaptest.NewLogger(t).Sugar())

	assert.Nil(t, factory.RedisClient())
	assert.IsType(t, &memory.MemoryPolicyRepository{}, factory.CreatePolicyRepository())
	assert.NoError(t, factory.HealthCheck(context.Background()))
	assert.NoError(t, factory.Close())
}
