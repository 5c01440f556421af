package dedup

import (
	"context"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "leadrouter:dedup:"

type listClient interface {
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd
}

// RedisPersister keeps a channel's processed keys in a Redis list, oldest
// first.
type RedisPersister struct {
	client listClient
	key    string
}

func NewRedisPersister(client listClient, channel string) *RedisPersister {
	return &RedisPersister{client: client, key: keyPrefix + channel}
}

func (p *RedisPersister) Load(ctx context.Context) ([]string, error) {
	return p.client.LRange(ctx, p.key, 0, -1).Result()
}

func (p *RedisPersister) Append(ctx context.Context, key string) error {
	return p.client.RPush(ctx, p.key, key).Err()
}

func (p *RedisPersister) Trim(ctx context.Context, retain int) error {
	return p.client.LTrim(ctx, p.key, int64(-retain), -1).Err()
}
