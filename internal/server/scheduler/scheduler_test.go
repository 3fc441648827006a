package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/common"
	"github.com/dmitrijs2005/remindsync/internal/logging"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
	"github.com/dmitrijs2005/remindsync/internal/server/push"
	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecords struct {
	mu    sync.Mutex
	items map[string]*models.Reminder
	users map[string]*models.User
}

func newFakeRecords() *fakeRecords {
	return &fakeRecords{
		items: map[string]*models.Reminder{},
		users: map[string]*models.User{"u1": {ID: "u1", PushToken: "ExponentPushToken[u1]"}},
	}
}

func (f *fakeRecords) put(r *models.Reminder) *models.Reminder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r.UserID == "" {
		r.UserID = "u1"
	}
	f.items[r.ID] = r.Clone()
	return r
}

func (f *fakeRecords) GetByID(_ context.Context, id string) (*models.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.items[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return r.Clone(), nil
}

func (f *fakeRecords) GetUser(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeRecords) MarkSent(_ context.Context, r *models.Reminder) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	it, ok := f.items[r.ID]
	if !ok {
		return common.ErrorNotFound
	}
	it.Notifications = []models.Notification{{Channel: "push", LeadMinutes: 60, Sent: true}}
	return nil
}

func (f *fakeRecords) ListSchedulable(_ context.Context, from string) ([]*models.Reminder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*models.Reminder
	for _, r := range f.items {
		if !r.IsCompleted && r.Date >= from {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []string
	data []map[string]string
	err  error
}

func (f *fakeDispatcher) Send(_ context.Context, token string, msg push.Message, data map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg.Title)
	f.data = append(f.data, data)
	return nil
}

func (f *fakeDispatcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

func (f *fakeDispatcher) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fixture struct {
	s       *Scheduler
	records *fakeRecords
	disp    *fakeDispatcher
	cache   *countingCache
	clk     clock.FakeClock
}

func setup(t *testing.T) *fixture {
	t.Helper()
	clk := clock.NewFake()
	clk.Set(time.Date(2024, 3, 20, 7, 0, 0, 0, time.UTC))
	records, disp, c := newFakeRecords(), &fakeDispatcher{}, &countingCache{}
	s := New(records, disp, c, clk, time.Hour, time.UTC, logging.Nop())
	t.Cleanup(s.Stop)
	return &fixture{s: s, records: records, disp: disp, cache: c, clk: clk}
}

func meeting(id, date, at string) *models.Reminder {
	return &models.Reminder{
		ID: id, UserID: "u1", Title: "Team Meeting", Date: date, Time: at,
		Category: "work", Priority: models.PriorityHigh,
		Notifications: []models.Notification{{Channel: "push", LeadMinutes: 60}},
	}
}

// never asserts that nothing was dispatched after giving goroutines a chance.
func never(t *testing.T, d *fakeDispatcher) {
	t.Helper()
	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, d.count())
}

func TestTriggerAt_TeamMeeting(t *testing.T) {
	f := setup(t)
	trigger, due, err := f.s.TriggerAt(meeting("r1", "2024-03-20", "10:00 AM"))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 20, 9, 0, 0, 0, time.UTC), trigger)
	assert.Equal(t, time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC), due)
}

func TestSchedule_FiresAtTrigger(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r := f.records.put(meeting("r1", "2024-03-20", "10:00 AM"))

	require.NoError(t, f.s.Schedule(ctx, r))
	assert.True(t, f.s.Active("r1"))

	f.clk.Add(time.Hour + 59*time.Minute)
	never(t, f.disp)

	f.clk.Add(time.Minute)
	require.Eventually(t, func() bool { return f.disp.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, map[string]string{"reminderId": "r1", "category": "work", "priority": "high"}, f.disp.data[0])

	require.Eventually(t, func() bool {
		got, _ := f.records.GetByID(ctx, "r1")
		return got.AllSent()
	}, time.Second, 5*time.Millisecond)
	assert.False(t, f.s.Active("r1"))
	require.Eventually(t, func() bool { return f.cache.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"u1"}, f.cache.users)
}

func TestSchedule_TemplateIsFirstInstance(t *testing.T) {
	f := setup(t)
	tpl := meeting("tpl", "2024-03-21", "10:00")
	tpl.IsRecurring, tpl.RecurringPattern = true, models.RecurWeekly
	require.NoError(t, f.s.Schedule(context.Background(), f.records.put(tpl)))
	assert.True(t, f.s.Active("tpl"))

	f.clk.Add(26 * time.Hour)
	require.Eventually(t, func() bool { return f.disp.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSchedule_PastTriggerFiresNow(t *testing.T) {
	f := setup(t)
	r := f.records.put(meeting("r1", "2024-03-20", "7:30"))

	require.NoError(t, f.s.Schedule(context.Background(), r))
	require.Eventually(t, func() bool { return f.disp.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSchedule_NoJob(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	past := f.records.put(meeting("past", "2024-03-20", "6:59"))
	require.NoError(t, f.s.Schedule(ctx, past))

	done := meeting("done", "2024-03-21", "10:00")
	done.IsCompleted = true
	require.NoError(t, f.s.Schedule(ctx, f.records.put(done)))

	sent := meeting("sent", "2024-03-21", "10:00")
	sent.Notifications[0].Sent = true
	require.NoError(t, f.s.Schedule(ctx, f.records.put(sent)))

	assert.Zero(t, f.s.Len())

	bad := meeting("bad", "2024-03-21", "teatime")
	err := f.s.Schedule(ctx, bad)
	var se *common.SchedulingError
	assert.ErrorAs(t, err, &se)
	never(t, f.disp)
}

func TestSchedule_CompletingCancelsExistingJob(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r := f.records.put(meeting("r1", "2024-03-20", "10:00 AM"))
	require.NoError(t, f.s.Schedule(ctx, r))

	r.IsCompleted = true
	require.NoError(t, f.s.Schedule(ctx, f.records.put(r)))
	assert.False(t, f.s.Active("r1"))

	f.clk.Add(3 * time.Hour)
	never(t, f.disp)
}

func TestCancel_BeforeTrigger(t *testing.T) {
	f := setup(t)
	r := f.records.put(meeting("r1", "2024-03-20", "10:00 AM"))
	require.NoError(t, f.s.Schedule(context.Background(), r))

	f.s.Cancel("r1")
	f.s.Cancel("r1")
	f.s.Cancel("unknown")
	assert.False(t, f.s.Active("r1"))

	f.clk.Add(3 * time.Hour)
	never(t, f.disp)
}

func TestCancel_WinsOverRacingFire(t *testing.T) {
	f := setup(t)
	r := f.records.put(meeting("r1", "2024-03-20", "10:00 AM"))
	require.NoError(t, f.s.Schedule(context.Background(), r))

	f.s.mu.Lock()
	token := f.s.jobs["r1"].token
	f.s.mu.Unlock()

	f.s.Cancel("r1")
	f.s.fire("r1", token)
	assert.Zero(t, f.disp.count())
}

func TestSchedule_RescheduleReplacesTimer(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	r := f.records.put(meeting("r1", "2024-03-20", "10:00 AM"))
	require.NoError(t, f.s.Schedule(ctx, r))

	moved := f.records.put(meeting("r1", "2024-03-20", "1:00 PM"))
	require.NoError(t, f.s.Schedule(ctx, moved))
	assert.Equal(t, 1, f.s.Len())

	f.clk.Add(2 * time.Hour)
	never(t, f.disp)

	f.clk.Add(3 * time.Hour)
	require.Eventually(t, func() bool { return f.disp.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestFire_SkipsDeletedCompletedAndSent(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	require.NoError(t, f.s.deliver(ctx, "missing"))

	done := meeting("done", "2024-03-20", "10:00")
	done.IsCompleted = true
	f.records.put(done)
	require.NoError(t, f.s.deliver(ctx, "done"))

	sent := meeting("sent", "2024-03-20", "10:00")
	sent.Notifications[0].Sent = true
	f.records.put(sent)
	require.NoError(t, f.s.deliver(ctx, "sent"))

	assert.Zero(t, f.disp.count())
}

func TestFire_DispatchFailureLeavesUnsentAndSweepRetries(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.disp.setErr(errors.New("push down"))
	r := f.records.put(meeting("r1", "2024-03-20", "7:30"))

	require.NoError(t, f.s.Schedule(ctx, r))
	require.Eventually(t, func() bool { return !f.s.Active("r1") }, time.Second, 5*time.Millisecond)
	got, _ := f.records.GetByID(ctx, "r1")
	assert.False(t, got.AllSent())
	assert.Zero(t, f.cache.count())

	f.disp.setErr(nil)
	n, err := f.s.SweepUpcoming(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Eventually(t, func() bool { return f.disp.count() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSweepUpcoming_OnlySchedules(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.records.put(meeting("soon", "2024-03-20", "8:30"))
	f.records.put(meeting("later", "2024-03-20", "11:00"))

	n, err := f.s.SweepUpcoming(ctx, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, f.s.Active("soon"))
	assert.False(t, f.s.Active("later"))
	never(t, f.disp)

	n, err = f.s.SweepUpcoming(ctx, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n, "active handles are left alone")
}

func TestRecover(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	f.records.put(meeting("a", "2024-03-20", "10:00"))
	f.records.put(meeting("b", "2024-03-25", ""))
	f.records.put(meeting("yesterday", "2024-03-19", "10:00"))
	done := meeting("done", "2024-03-22", "10:00")
	done.IsCompleted = true
	f.records.put(done)

	n, err := f.s.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, f.s.Active("a"))
	assert.True(t, f.s.Active("b"))
}

func TestStop_RejectsNewJobs(t *testing.T) {
	f := setup(t)
	f.s.Stop()
	err := f.s.Schedule(context.Background(), meeting("r1", "2024-03-21", "10:00"))
	assert.Error(t, err)
}

func TestBody(t *testing.T) {
	assert.Equal(t, "Due at 10:00 AM", body(&models.Reminder{Time: "10:00 AM"}))
	assert.Equal(t, "Due today", body(&models.Reminder{}))
	assert.Equal(t, "Due today · Office", body(&models.Reminder{IsLocationBased: true, Location: "Office"}))
}

func TestPauseResume(t *testing.T) {
	f := setup(t)
	r := meeting("m1", "2024-03-20", "10:00 AM")
	f.records.put(r)

	require.NoError(t, f.s.Schedule(context.Background(), r))
	require.True(t, f.s.Active("m1"))

	f.s.Pause()
	assert.Zero(t, f.s.Len())
	require.NoError(t, f.s.Schedule(context.Background(), r))
	assert.False(t, f.s.Active("m1"))
	f.clk.Add(4 * time.Hour)
	never(t, f.disp)

	f.s.Resume()
	n, err := f.s.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n, "past due after the pause")
}
