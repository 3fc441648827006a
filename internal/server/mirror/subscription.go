package mirror

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/logging"
	"github.com/jmhodges/clock"
)

// Handler processes one change. A non-nil error stops the current poll; the
// change is delivered again on the next one.
type Handler func(ctx context.Context, c Change) error

// Subscription delivers changelog entries to a handler in order, skipping
// those written with its own origin. Progress is stored as a named cursor so
// a restart resumes where it stopped.
type Subscription struct {
	store    *Store
	name     string
	skip     string
	handler  Handler
	clk      clock.Clock
	interval time.Duration
	batch    int
	log      logging.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

func NewSubscription(store *Store, name, skipOrigin string, clk clock.Clock, interval time.Duration, h Handler, log logging.Logger) *Subscription {
	return &Subscription{
		store:    store,
		name:     name,
		skip:     skipOrigin,
		handler:  h,
		clk:      clk,
		interval: interval,
		batch:    100,
		log:      log.With("module", "subscription", "name", name),
	}
}

// Run polls until ctx is done or Cancel is called. Writes to the store wake
// it up early.
func (s *Subscription) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()

	wake, unwatch := s.store.Watch(1)
	defer unwatch()

	timer := s.clk.NewTimer(s.interval)
	defer timer.Stop()

	for {
		if _, err := s.Poll(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn(ctx, "subscription poll failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		case _, ok := <-wake:
			if !ok {
				return
			}
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
		}
		timer.Reset(s.interval)
	}
}

// Cancel stops a running subscription.
func (s *Subscription) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
}

// Poll drains pending changes once and returns how many were handled.
func (s *Subscription) Poll(ctx context.Context) (int, error) {
	cursor, err := s.store.Cursor(ctx, s.name)
	if err != nil {
		return 0, err
	}

	handled := 0
	for {
		changes, err := s.store.Changes(ctx, cursor, s.batch)
		if err != nil {
			return handled, err
		}
		if len(changes) == 0 {
			return handled, nil
		}
		for _, c := range changes {
			if c.Origin != s.skip {
				if err := s.handler(ctx, c); err != nil {
					return handled, err
				}
				handled++
			}
			cursor = c.Seq
			if err := s.store.SaveCursor(ctx, s.name, cursor); err != nil {
				return handled, err
			}
		}
	}
}
