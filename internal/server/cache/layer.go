package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/common"
	"github.com/dmitrijs2005/remindsync/internal/logging"
	"github.com/google/uuid"
	"github.com/mitchellh/hashstructure/v2"
)

// Layer adds generation-based invalidation on top of a Store.
type Layer struct {
	store Store
	ttl   time.Duration
	log   logging.Logger
}

func NewLayer(store Store, ttl time.Duration, log logging.Logger) *Layer {
	return &Layer{store: store, ttl: ttl, log: log.With("module", "cache")}
}

func genKey(userID string) string {
	return fmt.Sprintf("user:%s:gen", userID)
}

// Generation returns the user's current token, creating one on first use.
func (l *Layer) Generation(ctx context.Context, userID string) (string, error) {
	key := genKey(userID)
	b, ok, err := l.store.Get(ctx, key)
	if err != nil {
		return "", &common.CacheError{Op: "get", Key: key, Err: err}
	}
	if ok {
		return string(b), nil
	}
	gen := uuid.NewString()
	if err := l.store.Set(ctx, key, []byte(gen), 0); err != nil {
		return "", &common.CacheError{Op: "set", Key: key, Err: err}
	}
	return gen, nil
}

// Bump orphans every cached entry of the user. If the new token cannot be
// written the generation key is deleted instead, which has the same effect
// on the next read.
func (l *Layer) Bump(ctx context.Context, userID string) error {
	key := genKey(userID)
	err := l.store.Set(ctx, key, []byte(uuid.NewString()), 0)
	if err == nil {
		return nil
	}
	l.log.Warn(ctx, "generation bump failed, deleting key", "user_id", userID, "error", err)
	if err := l.store.Del(ctx, key); err != nil {
		cerr := &common.CacheError{Op: "bump", Key: key, Err: err}
		l.log.Error(ctx, "generation delete failed", "user_id", userID, "error", cerr)
		return cerr
	}
	return nil
}

// Key builds user:{id}:g{gen}:{resource}[:{hash}]. params is hashed
// structurally, so equal filters map to the same key regardless of pointer
// identity; nil params omit the hash.
func Key(userID, gen, resource string, params any) (string, error) {
	base := fmt.Sprintf("user:%s:g%s:%s", userID, gen, resource)
	if params == nil {
		return base, nil
	}
	h, err := hashstructure.Hash(params, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("hash params: %w", err)
	}
	return fmt.Sprintf("%s:%x", base, h), nil
}

// Fetch is a read-through helper. Any cache failure is logged and load is
// used directly; load errors are returned as-is.
func Fetch[T any](ctx context.Context, l *Layer, userID, resource string, params any, ttl time.Duration, load func(ctx context.Context) (T, error)) (T, error) {
	if ttl <= 0 {
		ttl = l.ttl
	}

	gen, err := l.Generation(ctx, userID)
	if err != nil {
		l.log.Warn(ctx, "cache generation unavailable", "user_id", userID, "error", err)
		return load(ctx)
	}
	key, err := Key(userID, gen, resource, params)
	if err != nil {
		l.log.Warn(ctx, "cache key build failed", "user_id", userID, "error", err)
		return load(ctx)
	}

	b, ok, err := l.store.Get(ctx, key)
	if err != nil {
		l.log.Warn(ctx, "cache get failed", "key", key, "error", &common.CacheError{Op: "get", Key: key, Err: err})
	} else if ok {
		var v T
		if err := json.Unmarshal(b, &v); err == nil {
			return v, nil
		}
		l.log.Warn(ctx, "cache entry undecodable", "key", key)
	}

	v, err := load(ctx)
	if err != nil {
		return v, err
	}

	b, err = json.Marshal(v)
	if err != nil {
		l.log.Warn(ctx, "cache encode failed", "key", key, "error", err)
		return v, nil
	}
	if err := l.store.Set(ctx, key, b, ttl); err != nil {
		l.log.Warn(ctx, "cache set failed", "key", key, "error", &common.CacheError{Op: "set", Key: key, Err: err})
	}
	return v, nil
}
