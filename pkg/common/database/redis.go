package database

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/synaptica-ai/riskscore/pkg/common/config"
	"github.com/synaptica-ai/riskscore/pkg/common/logger"
)

const redisPingTimeout = 3 * time.Second

var (
	featureCache     *redis.Client
	featureCacheOnce sync.Once
)

// RedisOptions builds client options for the feature snapshot cache.
// Snapshot reads and writes sit on the request path, so timeouts stay short.
func RedisOptions(cfg *config.Config) *redis.Options {
	return &redis.Options{
		Addr:         net.JoinHostPort(cfg.RedisHost, cfg.RedisPort),
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		DialTimeout:  redisPingTimeout,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	}
}

// GetRedis returns the shared feature cache client. An unreachable server is
// logged, not fatal: snapshot writes then fail per request with a warning.
func GetRedis(cfg *config.Config) *redis.Client {
	featureCacheOnce.Do(func() {
		opts := RedisOptions(cfg)
		featureCache = redis.NewClient(opts)

		fields := map[string]interface{}{
			"addr":          opts.Addr,
			"db":            opts.DB,
			"key_prefix":    cfg.FeatureOnlinePrefix,
			"snapshot_ttl":  cfg.FeatureStoreCacheTTL.String(),
			"ping_deadline": redisPingTimeout.String(),
		}
		ctx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		defer cancel()
		if err := featureCache.Ping(ctx).Err(); err != nil {
			logger.Get().WithError(err).WithFields(fields).Warn("Feature cache unreachable, snapshots disabled until it recovers")
			return
		}
		logger.Get().WithFields(fields).Info("Feature cache connected")
	})
	return featureCache
}

func CloseRedis() error {
	if featureCache == nil {
		return nil
	}
	return featureCache.Close()
}
