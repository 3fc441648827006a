package users

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/common"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
	"github.com/dmitrijs2005/remindsync/internal/timex"
	"github.com/google/uuid"
)

type MemoryRepository struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[string]*models.User)}
}

func (m *MemoryRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if user.ID == "" {
		user.ID = uuid.NewString()
	}
	user.CreatedAt = time.Now().UTC()
	c := *user
	m.users[user.ID] = &c
	return user, nil
}

func (m *MemoryRepository) Get(ctx context.Context, id string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *u
	return &c, nil
}

func (m *MemoryRepository) ListWithPushToken(ctx context.Context) ([]*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.User
	for _, u := range m.users {
		if u.PushToken != "" {
			c := *u
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) update(id string, fn func(u *models.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	fn(u)
	return nil
}

func (m *MemoryRepository) SetPushToken(ctx context.Context, id, token string) error {
	return m.update(id, func(u *models.User) { u.PushToken = token })
}

func (m *MemoryRepository) AdjustTotal(ctx context.Context, id string, delta int) error {
	return m.update(id, func(u *models.User) {
		u.TotalReminders += delta
		if u.TotalReminders < 0 {
			u.TotalReminders = 0
		}
	})
}

func (m *MemoryRepository) RecordCompletion(ctx context.Context, id, on string) error {
	return m.update(id, func(u *models.User) {
		u.CompletedReminders++
		switch {
		case u.LastCompletedOn != nil && *u.LastCompletedOn == on:
		case u.LastCompletedOn != nil && isDayBefore(*u.LastCompletedOn, on):
			u.StreakDays++
		default:
			u.StreakDays = 1
		}
		u.LastCompletedOn = &on
	})
}

func isDayBefore(prev, day string) bool {
	p, err := timex.ParseDate(prev, time.UTC)
	if err != nil {
		return false
	}
	d, err := timex.ParseDate(day, time.UTC)
	if err != nil {
		return false
	}
	return p.AddDate(0, 0, 1).Equal(d)
}
