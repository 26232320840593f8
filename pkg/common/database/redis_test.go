package database

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/synaptica-ai/riskscore/pkg/common/config"
)

func TestRedisOptions(t *testing.T) {
	opts := RedisOptions(&config.Config{RedisHost: "cache.internal", RedisPort: "6380", RedisPassword: "pw", RedisDB: 2})
	assert.Equal(t, "cache.internal:6380", opts.Addr)
	assert.Equal(t, "pw", opts.Password)
	assert.Equal(t, 2, opts.DB)
	assert.Equal(t, time.Second, opts.ReadTimeout)
}

func TestGetRedisShared(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{
		RedisHost:            mr.Host(),
		RedisPort:            mr.Port(),
		FeatureOnlinePrefix:  "test:features",
		FeatureStoreCacheTTL: time.Minute,
	}
	client := GetRedis(cfg)
	t.Cleanup(func() { CloseRedis() })

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
	assert.Same(t, client, GetRedis(&config.Config{RedisHost: "elsewhere", RedisPort: "1"}))
}
