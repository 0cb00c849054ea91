package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	UsernameStateKeyPrefix = "profile:%s:has_username"
	UsernameTakenKeyPrefix = "username:%s:taken"
)

const (
	UsernameStateTTL = 5 * time.Minute
	UsernameTakenTTL = 30 * time.Second
)

func UsernameStateKey(userID string) string {
	return fmt.Sprintf(UsernameStateKeyPrefix, userID)
}

func UsernameTakenKey(username string) string {
	return fmt.Sprintf(UsernameTakenKeyPrefix, username)
}

// Aside reads key into dest, or runs load to fill dest and stores it for ttl.
// Cache failures fall through to load; load errors are never cached.
func Aside(ctx context.Context, key string, dest any, ttl time.Duration, load func() error) error {
	if client == nil {
		return load()
	}

	if raw, err := client.Get(ctx, key).Bytes(); err == nil {
		if json.Unmarshal(raw, dest) == nil {
			return nil
		}
	}

	if err := load(); err != nil {
		return err
	}

	if data, err := json.Marshal(dest); err == nil {
		client.Set(ctx, key, data, ttl)
	}
	return nil
}

func Invalidate(ctx context.Context, keys ...string) {
	if client != nil && len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

func InvalidateProfile(ctx context.Context, userID, username string) {
	Invalidate(ctx, UsernameStateKey(userID), UsernameTakenKey(username))
}

// SetClient installs rdb as the package client, e.g. a miniredis-backed one in tests.
func SetClient(rdb *redis.Client) {
	client = rdb
}
