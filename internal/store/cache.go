package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-redis/redis/v8"
)

// cacheGet/cacheSet wrap the redis client with explicit JSON marshal/unmarshal
// rather than relying on the client to marshal arbitrary structs itself.
func cacheGet(ctx context.Context, rdb *redis.Client, key string, dest any) error {
	val, err := rdb.Get(ctx, key).Result()
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(val), dest)
}

func cacheSet(ctx context.Context, rdb *redis.Client, key string, value any, ttl time.Duration) {
	buf, err := json.Marshal(value)
	if err != nil {
		return
	}
	rdb.Set(ctx, key, buf, ttl)
}
