package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRedis struct {
	keys   map[string]time.Duration
	failed error
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	if f.failed != nil {
		return redis.NewBoolResult(false, f.failed)
	}
	if _, ok := f.keys[key]; ok {
		return redis.NewBoolResult(false, nil)
	}
	f.keys[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Exists(ctx context.Context, keys ...string) *redis.IntCmd {
	if f.failed != nil {
		return redis.NewIntResult(0, f.failed)
	}
	var n int64
	for _, k := range keys {
		if _, ok := f.keys[k]; ok {
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func TestRedisEventDeduper(t *testing.T) {
	ctx := context.Background()
	f := &fakeRedis{keys: map[string]time.Duration{}}
	d := NewRedisEventDeduper(f, "storefront")

	seen, err := d.Seen(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	require.NoError(t, d.Mark(ctx, "stripe", "evt_1"))
	require.NoError(t, d.Mark(ctx, "stripe", "evt_1"))

	seen, err = d.Seen(ctx, "stripe", "evt_1")
	require.NoError(t, err)
	assert.True(t, seen)

	// プロバイダが違えば別キー
	seen, err = d.Seen(ctx, "razorpay", "evt_1")
	require.NoError(t, err)
	assert.False(t, seen)

	assert.Equal(t, defaultEventTTL, f.keys["storefront:webhook:stripe:evt_1"])
}

func TestRedisEventDeduper_Error(t *testing.T) {
	d := NewRedisEventDeduper(&fakeRedis{keys: map[string]time.Duration{}, failed: errors.New("conn refused")}, "storefront")

	_, err := d.Seen(context.Background(), "stripe", "evt_1")
	assert.Error(t, err)
	assert.Error(t, d.Mark(context.Background(), "stripe", "evt_1"))
}
