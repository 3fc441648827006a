package reminders

import (
	"context"
	"testing"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/common"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, m *MemoryRepository, rems ...*models.Reminder) {
	t.Helper()
	for _, r := range rems {
		require.NoError(t, m.Create(context.Background(), r))
	}
}

func TestMemory_QueryScopesFiltersAndOrders(t *testing.T) {
	m := NewMemoryRepository()
	seed(t, m,
		&models.Reminder{ID: "b", UserID: "u1", Title: "Dentist", Date: "2024-03-22", Category: "health"},
		&models.Reminder{ID: "a", UserID: "u1", Title: "Team Meeting", Date: "2024-03-20", Category: "work"},
		&models.Reminder{ID: "c", UserID: "u2", Title: "Team lunch", Date: "2024-03-19", Category: "work"},
	)

	all, err := m.Query(context.Background(), models.ReminderFilter{UserID: "u1"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ID)
	assert.Equal(t, "b", all[1].ID)

	text := "TEAM"
	got, err := m.Query(context.Background(), models.ReminderFilter{UserID: "u1", TextSearch: &text})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].ID)

	got, err = m.Query(context.Background(), models.ReminderFilter{UserID: "u1", DateRange: &models.DateRange{From: "2024-03-21"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := NewMemoryRepository()
	seed(t, m, &models.Reminder{ID: "a", UserID: "u1", Title: "x"})

	got, err := m.GetByID(context.Background(), "a")
	require.NoError(t, err)
	got.Title = "mutated"

	again, err := m.GetByID(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, "x", again.Title)
}

func TestMemory_ExternalIDUniqueness(t *testing.T) {
	m := NewMemoryRepository()
	ext := "m-1"
	seed(t, m,
		&models.Reminder{ID: "a", UserID: "u1", ExternalID: &ext},
		&models.Reminder{ID: "b", UserID: "u1"},
	)

	_, err := m.SetExternalID(context.Background(), "b", "m-1")
	assert.ErrorIs(t, err, common.ErrExternalIDTaken)

	ok, err := m.SetExternalID(context.Background(), "a", "m-9")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := m.GetByExternalID(context.Background(), "m-1")
	require.NoError(t, err)
	assert.Equal(t, "a", got.ID)
}

func TestMemory_MarkCompletedAndPending(t *testing.T) {
	m := NewMemoryRepository()
	tpl := "t"
	seed(t, m,
		&models.Reminder{ID: "t", UserID: "u1", Date: "2024-03-01", IsRecurring: true, RecurringPattern: "weekly"},
		&models.Reminder{ID: "o", UserID: "u1", Date: "2024-03-08", TemplateID: &tpl},
	)
	ctx := context.Background()

	pending, err := m.ListPending(ctx, "2024-03-01")
	require.NoError(t, err)
	require.Len(t, pending, 2, "a template is the first instance of its series")

	ok, err := m.HasPendingOccurrence(ctx, "t", "2024-03-05")
	require.NoError(t, err)
	assert.True(t, ok)

	flipped, err := m.MarkCompleted(ctx, "o", "u1", time.Now())
	require.NoError(t, err)
	assert.True(t, flipped)
	flipped, err = m.MarkCompleted(ctx, "o", "u1", time.Now())
	require.NoError(t, err)
	assert.False(t, flipped)

	ok, err = m.HasPendingOccurrence(ctx, "t", "2024-03-05")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, m.SetLastMaterialized(ctx, "t", "2024-03-08"))
	assert.ErrorIs(t, m.SetLastMaterialized(ctx, "o", "2024-03-08"), common.ErrorNotFound)
}
