// Package cache provides Redis-backed caching of accuracy snapshots so
// dashboard reads do not recompute metrics from feedback history.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/dataglass/pattern-sentry/internal/pattern"
)

// Config contains cache configuration
type Config struct {
	RedisURL       string        `yaml:"redis_url" mapstructure:"redis_url"`
	MaxConnections int           `yaml:"max_connections" mapstructure:"max_connections"`
	MinIdleConns   int           `yaml:"min_idle_conns" mapstructure:"min_idle_conns"`
	DefaultTTL     time.Duration `yaml:"default_ttl" mapstructure:"default_ttl"`
	KeyPrefix      string        `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// Snapshot is the cached accuracy payload for one pattern
type Snapshot struct {
	Metrics  pattern.AccuracyMetrics `json:"metrics"`
	Issues   []string                `json:"issues,omitempty"`
	CachedAt time.Time               `json:"cached_at"`
}

// AccuracyCache caches per-pattern accuracy snapshots in Redis
type AccuracyCache struct {
	client *redis.Client
	config *Config
	logger *zap.Logger
	stats  cacheStats
}

type cacheStats struct {
	hits   int64
	misses int64
}

// Stats reports cache hit/miss counters
type Stats struct {
	Hits    int64   `json:"hits"`
	Misses  int64   `json:"misses"`
	HitRate float64 `json:"hit_rate"`
}

// NewAccuracyCache connects to Redis and verifies the connection
func NewAccuracyCache(config *Config, logger *zap.Logger) (*AccuracyCache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opts.PoolSize = config.MaxConnections
	opts.MinIdleConns = config.MinIdleConns

	client := redis.NewClient(opts)

	cache := &AccuracyCache{
		client: client,
		config: config,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Accuracy cache initialized successfully",
		zap.String("redis_url", maskRedisURL(config.RedisURL)),
		zap.Duration("default_ttl", config.DefaultTTL))

	return cache, nil
}

// Get returns the cached snapshot for a pattern, or nil on a miss. Cache
// failures degrade to a miss rather than failing the read path.
func (c *AccuracyCache) Get(ctx context.Context, patternID string) *Snapshot {
	data, err := c.client.Get(ctx, c.key(patternID)).Result()
	if err == redis.Nil {
		c.stats.misses++
		return nil
	}
	if err != nil {
		c.logger.Error("Cache lookup failed", zap.Error(err))
		return nil
	}

	var snapshot Snapshot
	if err := json.Unmarshal([]byte(data), &snapshot); err != nil {
		c.logger.Error("Failed to unmarshal cached snapshot", zap.Error(err))
		c.client.Del(ctx, c.key(patternID))
		return nil
	}

	c.stats.hits++
	return &snapshot
}

// Set caches a snapshot with the configured TTL
func (c *AccuracyCache) Set(ctx context.Context, patternID string, snapshot *Snapshot) {
	snapshot.CachedAt = time.Now().UTC()

	data, err := json.Marshal(snapshot)
	if err != nil {
		c.logger.Error("Failed to marshal snapshot for caching", zap.Error(err))
		return
	}

	if err := c.client.Set(ctx, c.key(patternID), data, c.config.DefaultTTL).Err(); err != nil {
		c.logger.Error("Failed to cache snapshot", zap.Error(err))
	}
}

// Invalidate drops the cached snapshot after a feedback write so the next
// read observes recomputed metrics
func (c *AccuracyCache) Invalidate(ctx context.Context, patternID string) {
	if err := c.client.Del(ctx, c.key(patternID)).Err(); err != nil {
		c.logger.Error("Failed to invalidate cached snapshot",
			zap.String("pattern_id", patternID), zap.Error(err))
	}
}

// GetStats returns cache hit/miss statistics
func (c *AccuracyCache) GetStats() Stats {
	stats := Stats{Hits: c.stats.hits, Misses: c.stats.misses}
	if total := stats.Hits + stats.Misses; total > 0 {
		stats.HitRate = float64(stats.Hits) / float64(total) * 100
	}
	return stats
}

// Close closes the Redis connection
func (c *AccuracyCache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *AccuracyCache) key(patternID string) string {
	return fmt.Sprintf("%s:acc:%s", c.config.KeyPrefix, patternID)
}

// maskRedisURL masks sensitive information in Redis URL for logging
func maskRedisURL(url string) string {
	if strings.Contains(url, "@") {
		parts := strings.Split(url, "@")
		if len(parts) >= 2 {
			userPart := parts[0]
			if strings.Contains(userPart, ":") {
				userParts := strings.Split(userPart, ":")
				if len(userParts) >= 3 {
					userParts[len(userParts)-1] = "***"
					parts[0] = strings.Join(userParts, ":")
				}
			}
			return strings.Join(parts, "@")
		}
	}
	return url
}
