package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// 処理済みWebhookイベントの保持期間（プロバイダの再送期間より長く）
const defaultEventTTL = 72 * time.Hour

type redisClient interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Exists(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisEventDeduper はWebhookイベントIDの既処理判定。
// 正はDBの条件付きUPDATEで、ここは重複配信を早く返すためだけに使う。
type RedisEventDeduper struct {
	client      redisClient
	serviceName string
	ttl         time.Duration
}

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func NewRedisEventDeduper(client redisClient, serviceName string) *RedisEventDeduper {
	return &RedisEventDeduper{client: client, serviceName: serviceName, ttl: defaultEventTTL}
}

func (d *RedisEventDeduper) Seen(ctx context.Context, provider string, eventID string) (bool, error) {
	n, err := d.client.Exists(ctx, d.key(provider, eventID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisEventDeduper) Mark(ctx context.Context, provider string, eventID string) error {
	return d.client.SetNX(ctx, d.key(provider, eventID), time.Now().Unix(), d.ttl).Err()
}

func (d *RedisEventDeduper) key(provider, eventID string) string {
	return fmt.Sprintf("%s:webhook:%s:%s", d.serviceName, provider, eventID)
}
