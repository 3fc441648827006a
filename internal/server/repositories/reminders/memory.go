package reminders

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/common"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
)

// MemoryRepository keeps reminders in process memory. It backs the memory
// storage mode and service tests; it has no transactional isolation.
type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]*models.Reminder
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]*models.Reminder)}
}

func (m *MemoryRepository) Create(ctx context.Context, r *models.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.items[r.ID]; ok {
		return common.ErrVersionConflict
	}
	if r.ExternalID != nil && m.externalTaken(*r.ExternalID, r.ID) {
		return common.ErrExternalIDTaken
	}
	m.items[r.ID] = r.Clone()
	return nil
}

func (m *MemoryRepository) externalTaken(externalID, exceptID string) bool {
	for id, it := range m.items {
		if id != exceptID && it.ExternalID != nil && *it.ExternalID == externalID {
			return true
		}
	}
	return false
}

func (m *MemoryRepository) Get(ctx context.Context, id, userID string) (*models.Reminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok || it.UserID != userID {
		return nil, common.ErrorNotFound
	}
	return it.Clone(), nil
}

func (m *MemoryRepository) GetByID(ctx context.Context, id string) (*models.Reminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	it, ok := m.items[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return it.Clone(), nil
}

func (m *MemoryRepository) GetByExternalID(ctx context.Context, externalID string) (*models.Reminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, it := range m.items {
		if it.ExternalID != nil && *it.ExternalID == externalID {
			return it.Clone(), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *MemoryRepository) Update(ctx context.Context, r *models.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[r.ID]
	if !ok || it.UserID != r.UserID {
		return common.ErrorNotFound
	}
	it.Title = r.Title
	it.Date = r.Date
	it.Time = r.Time
	it.Category = r.Category
	it.Priority = r.Priority
	it.IsCompleted = r.IsCompleted
	it.IsLocationBased = r.IsLocationBased
	it.Location = r.Location
	it.IsRecurring = r.IsRecurring
	it.RecurringPattern = r.RecurringPattern
	it.Notifications = append([]models.Notification(nil), r.Notifications...)
	it.UpdatedAt = r.UpdatedAt
	return nil
}

func (m *MemoryRepository) Delete(ctx context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.UserID != userID {
		return common.ErrorNotFound
	}
	delete(m.items, id)
	for _, other := range m.items {
		if other.TemplateID != nil && *other.TemplateID == id {
			other.TemplateID = nil
		}
	}
	return nil
}

func matches(it *models.Reminder, f models.ReminderFilter) bool {
	if it.UserID != f.UserID {
		return false
	}
	if f.Category != nil && it.Category != *f.Category {
		return false
	}
	if f.Priority != nil && it.Priority != *f.Priority {
		return false
	}
	if f.IsCompleted != nil && it.IsCompleted != *f.IsCompleted {
		return false
	}
	if f.DateRange != nil {
		if f.DateRange.From != "" && it.Date < f.DateRange.From {
			return false
		}
		if f.DateRange.To != "" && it.Date > f.DateRange.To {
			return false
		}
	}
	if f.TextSearch != nil {
		q := strings.ToLower(strings.TrimSpace(*f.TextSearch))
		if q != "" &&
			!strings.Contains(strings.ToLower(it.Title), q) &&
			!strings.Contains(strings.ToLower(it.Category), q) &&
			!strings.Contains(strings.ToLower(it.Location), q) {
			return false
		}
	}
	return true
}

func (m *MemoryRepository) collect(pred func(*models.Reminder) bool) []*models.Reminder {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Reminder
	for _, it := range m.items {
		if pred(it) {
			out = append(out, it.Clone())
		}
	}
	return out
}

func sortByDate(out []*models.Reminder) {
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date != b.Date {
			return a.Date < b.Date
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
}

func (m *MemoryRepository) Query(ctx context.Context, f models.ReminderFilter) ([]*models.Reminder, error) {
	out := m.collect(func(it *models.Reminder) bool { return matches(it, f) })
	sortByDate(out)
	return out, nil
}

func (m *MemoryRepository) SetExternalID(ctx context.Context, id, externalID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.ExternalID != nil {
		return false, nil
	}
	if m.externalTaken(externalID, id) {
		return false, common.ErrExternalIDTaken
	}
	it.ExternalID = &externalID
	return true, nil
}

func (m *MemoryRepository) MarkCompleted(ctx context.Context, id, userID string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok || it.UserID != userID || it.IsCompleted {
		return false, nil
	}
	it.IsCompleted = true
	it.UpdatedAt = at
	return true, nil
}

func (m *MemoryRepository) SetNotifications(ctx context.Context, id string, n []models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[id]
	if !ok {
		return common.ErrorNotFound
	}
	it.Notifications = append([]models.Notification(nil), n...)
	return nil
}

func (m *MemoryRepository) ListAll(ctx context.Context) ([]*models.Reminder, error) {
	out := m.collect(func(*models.Reminder) bool { return true })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) ListUpdatedSince(ctx context.Context, since time.Time) ([]*models.Reminder, error) {
	out := m.collect(func(it *models.Reminder) bool { return !it.UpdatedAt.Before(since) })
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (m *MemoryRepository) ListPending(ctx context.Context, fromDate string) ([]*models.Reminder, error) {
	out := m.collect(func(it *models.Reminder) bool {
		return !it.IsCompleted && it.Date >= fromDate
	})
	sortByDate(out)
	return out, nil
}

func (m *MemoryRepository) ListTemplates(ctx context.Context) ([]*models.Reminder, error) {
	out := m.collect(func(it *models.Reminder) bool { return it.IsRecurring })
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryRepository) ListRecent(ctx context.Context, userID string, limit int) ([]*models.Reminder, error) {
	out := m.collect(func(it *models.Reminder) bool { return it.UserID == userID })
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryRepository) HasPendingOccurrence(ctx context.Context, templateID, fromDate string) (bool, error) {
	out := m.collect(func(it *models.Reminder) bool {
		return it.TemplateID != nil && *it.TemplateID == templateID && !it.IsCompleted && it.Date >= fromDate
	})
	return len(out) > 0, nil
}

func (m *MemoryRepository) SetLastMaterialized(ctx context.Context, templateID, date string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	it, ok := m.items[templateID]
	if !ok || !it.IsRecurring {
		return common.ErrorNotFound
	}
	it.LastMaterializedOn = &date
	return nil
}
