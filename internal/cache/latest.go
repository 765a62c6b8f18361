// Package cache provides a non-authoritative read-through cache in front of
// the version store. The durable store stays the single source of truth;
// cache failures degrade to direct reads and entries are invalidated on every
// append.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/neofi/eventapi/internal/domain"
	"github.com/neofi/eventapi/internal/repository"
)

const latestKeyPrefix = "event:latest:"

// CachedVersionStore decorates a VersionStore with a Redis cache for latest
// versions. All writes pass straight through and drop the cached entry
// before returning.
type CachedVersionStore struct {
	repository.VersionStore
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedVersionStore wraps inner with a latest-version cache.
func NewCachedVersionStore(inner repository.VersionStore, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedVersionStore {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedVersionStore{VersionStore: inner, client: client, ttl: ttl, logger: logger}
}

func (c *CachedVersionStore) Latest(ctx context.Context, eventID uuid.UUID) (domain.EventVersion, error) {
	key := latestKeyPrefix + eventID.String()
	if raw, err := c.client.Get(ctx, key).Bytes(); err == nil {
		var version domain.EventVersion
		if err := json.Unmarshal(raw, &version); err == nil {
			return version, nil
		}
		// Unreadable entry: drop it and fall through to the store.
		c.client.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("latest-version cache read failed", zap.String("event_id", eventID.String()), zap.Error(err))
	}

	version, err := c.VersionStore.Latest(ctx, eventID)
	if err != nil {
		return domain.EventVersion{}, err
	}
	if raw, err := json.Marshal(version); err == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("latest-version cache write failed", zap.String("event_id", eventID.String()), zap.Error(err))
		}
	}
	return version, nil
}

func (c *CachedVersionStore) CreateEvent(ctx context.Context, event domain.Event) (domain.Event, domain.EventVersion, error) {
	created, version, err := c.VersionStore.CreateEvent(ctx, event)
	if err == nil {
		c.invalidate(ctx, created.ID)
	}
	return created, version, err
}

func (c *CachedVersionStore) Append(
	ctx context.Context,
	eventID uuid.UUID,
	expectedVersion int64,
	snapshot domain.EventSnapshot,
	deleted bool,
	changeType domain.ChangeType,
	changedBy string,
	sourceVersion *int64,
) (domain.EventVersion, error) {
	version, err := c.VersionStore.Append(ctx, eventID, expectedVersion, snapshot, deleted, changeType, changedBy, sourceVersion)
	if err == nil {
		c.invalidate(ctx, eventID)
	}
	return version, err
}

func (c *CachedVersionStore) Purge(ctx context.Context, eventID uuid.UUID) error {
	err := c.VersionStore.Purge(ctx, eventID)
	if err == nil {
		c.invalidate(ctx, eventID)
	}
	return err
}

func (c *CachedVersionStore) invalidate(ctx context.Context, eventID uuid.UUID) {
	if err := c.client.Del(ctx, latestKeyPrefix+eventID.String()).Err(); err != nil {
		c.logger.Warn("latest-version cache invalidation failed", zap.String("event_id", eventID.String()), zap.Error(err))
	}
}
