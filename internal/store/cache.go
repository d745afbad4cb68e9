package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tradepost/marketplace-messaging/internal/messaging"
	"github.com/tradepost/marketplace-messaging/internal/model"
	"github.com/tradepost/marketplace-messaging/pkg/logger"
	"github.com/tradepost/marketplace-messaging/pkg/metrics"
)

// NewRedis connects a go-redis client from a URL and verifies it with a ping.
func NewRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opt)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

// CachedProfiles is a read-through Redis cache over a profile directory.
// Cache failures fall back to the inner directory; a missing profile is not
// cached so a late signup becomes visible immediately.
type CachedProfiles struct {
	inner  messaging.ProfileDirectory
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewCachedProfiles wraps inner with a Redis cache.
func NewCachedProfiles(inner messaging.ProfileDirectory, client *redis.Client, ttl time.Duration, log *logger.Logger) *CachedProfiles {
	return &CachedProfiles{inner: inner, client: client, ttl: ttl, log: log}
}

var _ messaging.ProfileDirectory = (*CachedProfiles)(nil)

func profileKey(userID string) string {
	return "profile:" + userID
}

// Get returns the cached profile when present, otherwise reads through and
// populates the cache best-effort.
func (c *CachedProfiles) Get(ctx context.Context, userID string) (model.Profile, error) {
	cached, err := c.client.Get(ctx, profileKey(userID)).Result()
	switch {
	case err == nil:
		var profile model.Profile
		if err := json.Unmarshal([]byte(cached), &profile); err == nil {
			metrics.ProfileCacheHits.WithLabelValues("hit").Inc()
			return profile, nil
		}
		// Unreadable entry: treat as a miss and overwrite below.
	case !errors.Is(err, redis.Nil):
		metrics.ProfileCacheHits.WithLabelValues("error").Inc()
		c.log.Warn("profile cache read failed", zap.Error(err))
	}
	metrics.ProfileCacheHits.WithLabelValues("miss").Inc()

	profile, err := c.inner.Get(ctx, userID)
	if err != nil {
		return model.Profile{}, err
	}

	if data, err := json.Marshal(profile); err == nil {
		if err := c.client.Set(ctx, profileKey(userID), data, c.ttl).Err(); err != nil {
			c.log.Warn("profile cache write failed", zap.Error(err))
		}
	}

	return profile, nil
}
