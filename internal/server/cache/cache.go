// Package cache fronts Store Adapter reads with a TTL key/value cache.
//
// Every key embeds the owner's generation token, stored without TTL under
// user:{id}:gen. Writers bump the token, which orphans all cached variants of
// that user's data at once; orphans expire by TTL. A cache failure never
// fails a read: callers fall back to the store.
package cache

import (
	"context"
	"time"
)

// Store is the key/value contract shared by the Redis and in-process backends.
// ttl == 0 means no expiry.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
