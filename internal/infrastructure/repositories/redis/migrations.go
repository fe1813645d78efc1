package redis

import (
	"context"
	"fmt"
	"time"

	"uplinkpolicy/pkg/distributed"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	schemaVersionKey     = keyPrefix + "schema:version"
	migrationLockKey     = keyPrefix + "lock:migrations"
	currentSchemaVersion = 1

	migrationLockTTL     = 30 * time.Second
	migrationLockTimeout = 10 * time.Second
)

type Migration struct {
	Version int
	Up      func(ctx context.Context, client *redis.Client) error
}

// Migrate runs every migration newer than the stored schema version. The
// instances sharing one Redis take turns through a lock.
func Migrate(ctx context.Context, client *redis.Client, logger *zap.SugaredLogger) error {
	lock := distributed.NewLock(client, migrationLockKey, migrationLockTTL)
	if err := lock.Acquire(ctx, migrationLockTimeout); err != nil {
		return fmt.Errorf("failed to lock schema: %w", err)
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			logger.Warnw("failed to release migration lock", "error", err)
		}
	}()

	currentVersion, err := getSchemaVersion(ctx, client)
	if err != nil {
		return fmt.Errorf("failed to get schema version: %w", err)
	}

	if currentVersion >= currentSchemaVersion {
		logger.Debugw("schema is up to date", "version", currentVersion)
		return nil
	}

	for _, migration := range migrations() {
		if migration.Version <= currentVersion {
			continue
		}
		logger.Infow("running migration", "version", migration.Version)
		if err := migration.Up(ctx, client); err != nil {
			return fmt.Errorf("migration %d failed: %w", migration.Version, err)
		}
		if err := client.Set(ctx, schemaVersionKey, migration.Version, 0).Err(); err != nil {
			return fmt.Errorf("failed to update schema version: %w", err)
		}
	}

	logger.Infow("migrations completed", "version", currentSchemaVersion)
	return nil
}

func getSchemaVersion(ctx context.Context, client *redis.Client) (int, error) {
	val, err := client.Get(ctx, schemaVersionKey).Int()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return val, nil
}

func migrations() []Migration {
	return []Migration{
		{
			// Policies written before the name index existed are added to it.
			Version: 1,
			Up: func(ctx context.Context, client *redis.Client) error {
				iter := client.Scan(ctx, 0, policyKeyPrefix+"*", 100).Iterator()
				for iter.Next(ctx) {
					name := iter.Val()[len(policyKeyPrefix):]
					if err := client.SAdd(ctx, policyIndexKey, name).Err(); err != nil {
						return err
					}
				}
				return iter.Err()
			},
		},
	}
}
