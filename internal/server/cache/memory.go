package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryStore is the in-process backend. Reads do not extend TTLs.
type MemoryStore struct {
	c *ttlcache.Cache[string, []byte]
}

func NewMemoryStore() *MemoryStore {
	c := ttlcache.New[string, []byte](
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go c.Start()
	return &MemoryStore{c: c}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	it := s.c.Get(key)
	if it == nil {
		return nil, false, nil
	}
	return it.Value(), true, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = ttlcache.NoTTL
	}
	s.c.Set(key, append([]byte(nil), value...), ttl)
	return nil
}

func (s *MemoryStore) Del(_ context.Context, key string) error {
	s.c.Delete(key)
	return nil
}

// Close stops the expiry loop.
func (s *MemoryStore) Close() error {
	s.c.Stop()
	return nil
}
