package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ProfileCache caches profile snapshots in Redis keyed by dataset revision.
// 純粋に性能目的の層で、Redisが無くても（レシーバがnilでも）正しく動く。
// リビジョンをキーにすることで、古いスナップショットが別リビジョンの
// リクエストに紛れ込むことはない。
type ProfileCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

const profileCacheKeyPrefix = "cdp:profile_snapshot:"

// NewProfileCache creates a Redis-backed snapshot cache.
func NewProfileCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *ProfileCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

// Get returns the cached snapshot for the revision, if any.
func (c *ProfileCache) Get(ctx context.Context, revision string) (*ProfileSnapshot, bool) {
	if c == nil || c.client == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, profileCacheKeyPrefix+revision).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("profile cache get failed", zap.Error(err))
		}
		return nil, false
	}

	var snap ProfileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		c.logger.Warn("profile cache entry corrupt", zap.String("revision", revision), zap.Error(err))
		return nil, false
	}
	if snap.Version != revision {
		return nil, false
	}
	return &snap, true
}

// Set stores the snapshot under its own revision key.
// キャッシュ書き込みの失敗は警告のみで、呼び出し側の処理は止めない。
func (c *ProfileCache) Set(ctx context.Context, snap *ProfileSnapshot) {
	if c == nil || c.client == nil || snap == nil {
		return
	}

	data, err := json.Marshal(snap)
	if err != nil {
		c.logger.Warn("profile cache marshal failed", zap.Error(err))
		return
	}
	if err := c.client.Set(ctx, profileCacheKeyPrefix+snap.Version, data, c.ttl).Err(); err != nil {
		c.logger.Warn("profile cache set failed", zap.Error(err))
	}
}
