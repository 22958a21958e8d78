package redis

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/carsearch/pkg/config"
)

// TestClient_Redis runs against a live server when CARSEARCH_TEST_REDIS_ADDR
// names one.
func TestClient_Redis(t *testing.T) {
	addr := os.Getenv("CARSEARCH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CARSEARCH_TEST_REDIS_ADDR not set")
	}
	c, err := NewClient(config.RedisConfig{Addr: addr, PoolSize: 2})
	if err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	defer c.Close()
	ctx := context.Background()
	prefix := fmt.Sprintf("carsearch-test:%d:", time.Now().UnixNano())

	_, found, err := c.Get(ctx, prefix+"missing")
	require.NoError(t, err)
	assert.False(t, found)

	for i := 0; i < 150; i++ {
		require.NoError(t, c.Set(ctx, fmt.Sprintf("%s%d", prefix, i), []byte("v"), time.Minute))
	}
	v, found, err := c.Get(ctx, prefix+"7")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v"), v)

	deleted, err := c.FlushByPattern(ctx, prefix+"*")
	require.NoError(t, err)
	assert.Equal(t, int64(150), deleted)
}
