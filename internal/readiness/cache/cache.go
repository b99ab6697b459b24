package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"pulse-analytics/internal/readiness"
	"pulse-analytics/pkg/domain"
)

const keyPrefix = "readiness:user:"

// SnapshotCache caches the readiness history per user in Redis so hot
// dashboard reads skip Postgres. Entries are invalidated on recompute and
// expire on their own as a safety net.
type SnapshotCache struct {
	client *goredis.Client
	ttl    time.Duration
}

func New(client *goredis.Client, ttl time.Duration) *SnapshotCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &SnapshotCache{client: client, ttl: ttl}
}

// Get returns the cached history for a user, or (nil, false) on miss.
func (c *SnapshotCache) Get(ctx context.Context, userID domain.UserID) ([]readiness.Snapshot, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+userID.String()).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var snaps []readiness.Snapshot
	if err := json.Unmarshal(raw, &snaps); err != nil {
		// Corrupt entry: treat as miss, the caller will overwrite it.
		return nil, false, nil
	}
	return snaps, true, nil
}

// Set stores the history for a user.
func (c *SnapshotCache) Set(ctx context.Context, userID domain.UserID, snaps []readiness.Snapshot) error {
	raw, err := json.Marshal(snaps)
	if err != nil {
		return fmt.Errorf("cache marshal: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+userID.String(), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Invalidate drops the cached history for a user.
func (c *SnapshotCache) Invalidate(ctx context.Context, userID domain.UserID) error {
	if err := c.client.Del(ctx, keyPrefix+userID.String()).Err(); err != nil {
		return fmt.Errorf("cache invalidate: %w", err)
	}
	return nil
}
