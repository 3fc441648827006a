package mirror

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/common"
	"github.com/jmhodges/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) (*Store, clock.FakeClock) {
	t.Helper()
	clk := clock.NewFake()
	clk.Set(time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC))
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	s, err := Open(context.Background(), dsn, clk)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, clk
}

func sampleDoc(user string) *Document {
	return &Document{
		UserID: user, Title: "Team Meeting", Date: "2024-03-20", Time: "10:00 AM",
		Priority: "high", RecurringPattern: "none",
	}
}

func TestStore_CreateGetUpsertDelete(t *testing.T) {
	s, clk := openStore(t)
	ctx := context.Background()

	id, err := s.Create(ctx, sampleDoc("u1"), OriginBridge)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Team Meeting", got.Title)
	assert.Equal(t, id, got.ExternalID)
	assert.True(t, got.UpdatedAt.Equal(clk.Now()))

	got.Title = "Moved"
	got.UpdatedAt = time.Time{}
	clk.Add(time.Minute)
	require.NoError(t, s.Upsert(ctx, got, OriginClient))

	again, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Moved", again.Title)
	assert.True(t, again.UpdatedAt.Equal(clk.Now()))

	existed, err := s.Delete(ctx, id, OriginBridge)
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = s.Delete(ctx, id, OriginBridge)
	require.NoError(t, err)
	assert.False(t, existed)

	_, err = s.Get(ctx, id)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	changes, err := s.Changes(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, changes, 3)
	assert.Equal(t, []string{KindAdd, KindModify, KindRemove}, []string{changes[0].Kind, changes[1].Kind, changes[2].Kind})
	assert.Equal(t, OriginClient, changes[1].Origin)
	assert.Nil(t, changes[2].Doc)
	assert.Equal(t, "u1", changes[2].UserID)
}

func TestStore_UpsertRequiresExternalID(t *testing.T) {
	s, _ := openStore(t)
	err := s.Upsert(context.Background(), sampleDoc("u1"), OriginClient)
	var ve *common.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestStore_ListUpdatedSince(t *testing.T) {
	s, clk := openStore(t)
	ctx := context.Background()

	_, err := s.Create(ctx, sampleDoc("u1"), OriginBridge)
	require.NoError(t, err)
	clk.Add(time.Hour)
	mark := clk.Now()
	second, err := s.Create(ctx, sampleDoc("u2"), OriginBridge)
	require.NoError(t, err)

	all, err := s.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	recent, err := s.ListUpdatedSince(ctx, mark)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, second, recent[0].ExternalID)
}

func TestStore_Cursor(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	seq, err := s.Cursor(ctx, "inbound")
	require.NoError(t, err)
	assert.Zero(t, seq)

	require.NoError(t, s.SaveCursor(ctx, "inbound", 42))
	require.NoError(t, s.SaveCursor(ctx, "inbound", 43))
	seq, err = s.Cursor(ctx, "inbound")
	require.NoError(t, err)
	assert.Equal(t, int64(43), seq)
}

func TestStore_Watch(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	ch, stop := s.Watch(4)
	id, err := s.Create(ctx, sampleDoc("u1"), OriginClient)
	require.NoError(t, err)

	select {
	case c := <-ch:
		assert.Equal(t, id, c.ExternalID)
		assert.Equal(t, KindAdd, c.Kind)
	case <-time.After(time.Second):
		t.Fatal("no change published")
	}

	stop()
	_, ok := <-ch
	assert.False(t, ok)
	stop()
}
