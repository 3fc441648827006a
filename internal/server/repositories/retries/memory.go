package retries

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/common"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
)

type MemoryRepository struct {
	mu    sync.Mutex
	items map[string]*models.SyncRetry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]*models.SyncRetry)}
}

func (m *MemoryRepository) Enqueue(ctx context.Context, r *models.SyncRetry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *r
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.items[r.ID] = &c
	return nil
}

func (m *MemoryRepository) filter(pred func(*models.SyncRetry) bool) []*models.SyncRetry {
	var out []*models.SyncRetry
	for _, it := range m.items {
		if pred(it) {
			c := *it
			out = append(out, &c)
		}
	}
	return out
}

func (m *MemoryRepository) Due(ctx context.Context, now time.Time, limit int) ([]*models.SyncRetry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.filter(func(it *models.SyncRetry) bool {
		return it.Status == models.RetryPending && !it.NextAttemptAt.After(now)
	})
	sort.Slice(out, func(i, j int) bool { return out[i].NextAttemptAt.Before(out[j].NextAttemptAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) ListByStatus(ctx context.Context, status string) ([]*models.SyncRetry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.filter(func(it *models.SyncRetry) bool { return it.Status == status })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepository) update(id string, fn func(*models.SyncRetry)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(it)
	return nil
}

func (m *MemoryRepository) MarkDone(ctx context.Context, id string) error {
	return m.update(id, func(it *models.SyncRetry) { it.Status = models.RetryDone })
}

func (m *MemoryRepository) Reschedule(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error {
	return m.update(id, func(it *models.SyncRetry) {
		it.Attempts = attempts
		it.NextAttemptAt = next
		it.LastError = lastErr
	})
}

func (m *MemoryRepository) MarkDead(ctx context.Context, id string, attempts int, lastErr string) error {
	return m.update(id, func(it *models.SyncRetry) {
		it.Status = models.RetryDead
		it.Attempts = attempts
		it.LastError = lastErr
	})
}
