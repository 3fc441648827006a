package mirror

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	seen []Change
	fail error
}

func (r *recorder) handle(_ context.Context, c Change) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fail != nil {
		return r.fail
	}
	r.seen = append(r.seen, c)
	return nil
}

func (r *recorder) setFail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fail = err
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.seen)
}

func TestSubscription_SkipsOwnOriginAndResumes(t *testing.T) {
	s, clk := openStore(t)
	ctx := context.Background()
	rec := &recorder{}
	sub := NewSubscription(s, "inbound", OriginBridge, clk, time.Hour, rec.handle, logging.Nop())

	_, err := s.Create(ctx, sampleDoc("u1"), OriginBridge)
	require.NoError(t, err)
	clientID, err := s.Create(ctx, sampleDoc("u1"), OriginClient)
	require.NoError(t, err)

	n, err := sub.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, clientID, rec.seen[0].ExternalID)

	// a second subscription with the same name resumes from the cursor
	again := NewSubscription(s, "inbound", OriginBridge, clk, time.Hour, rec.handle, logging.Nop())
	n, err = again.Poll(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubscription_HandlerErrorRedelivers(t *testing.T) {
	s, clk := openStore(t)
	ctx := context.Background()
	rec := &recorder{fail: errors.New("down")}
	sub := NewSubscription(s, "inbound", OriginBridge, clk, time.Hour, rec.handle, logging.Nop())

	_, err := s.Create(ctx, sampleDoc("u1"), OriginClient)
	require.NoError(t, err)

	_, err = sub.Poll(ctx)
	assert.Error(t, err)

	rec.fail = nil
	n, err := sub.Poll(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestSubscription_RunWakesOnWriteAndCancels(t *testing.T) {
	s, clk := openStore(t)
	rec := &recorder{}
	sub := NewSubscription(s, "inbound", OriginBridge, clk, time.Hour, rec.handle, logging.Nop())

	done := make(chan struct{})
	go func() {
		sub.Run(context.Background())
		close(done)
	}()

	assert.Eventually(t, func() bool {
		_, err := s.Create(context.Background(), sampleDoc("u1"), OriginClient)
		return assert.NoError(t, err) && rec.count() > 0
	}, 2*time.Second, 50*time.Millisecond)

	sub.Cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not stop")
	}
}

func TestSubscription_RunPollsOnInterval(t *testing.T) {
	s, clk := openStore(t)
	rec := &recorder{fail: errors.New("down")}
	sub := NewSubscription(s, "inbound", OriginBridge, clk, time.Minute, rec.handle, logging.Nop())

	_, err := s.Create(context.Background(), sampleDoc("u1"), OriginClient)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sub.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	time.Sleep(50 * time.Millisecond)
	rec.setFail(nil)
	assert.Zero(t, rec.count())

	assert.Eventually(t, func() bool {
		clk.Add(time.Minute)
		return rec.count() == 1
	}, 2*time.Second, 20*time.Millisecond)
}
