// Package insights produces the short texts of weekly insight and daily
// suggestion pushes. Content quality is not this package's concern; it only
// invokes a generator and caches the result.
package insights

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/remindsync/internal/logging"
	"github.com/dmitrijs2005/remindsync/internal/server/cache"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
)

const (
	KindInsight    = "insight"
	KindSuggestion = "suggestion"
)

type Generator interface {
	Generate(ctx context.Context, kind string, recent []*models.Reminder) ([]string, error)
}

// Fallback uses secondary when primary fails or returns nothing.
type Fallback struct {
	primary   Generator
	secondary Generator
	log       logging.Logger
}

func NewFallback(primary, secondary Generator, log logging.Logger) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, log: log.With("module", "insights")}
}

func (f *Fallback) Generate(ctx context.Context, kind string, recent []*models.Reminder) ([]string, error) {
	out, err := f.primary.Generate(ctx, kind, recent)
	if err == nil && len(out) > 0 {
		return out, nil
	}
	if err != nil {
		f.log.Warn(ctx, "generator failed, using fallback", "kind", kind, "error", err)
	}
	return f.secondary.Generate(ctx, kind, recent)
}

// Cached memoizes generator output per user and kind under the user's cache
// generation, so any write to the user's reminders invalidates it.
type Cached struct {
	gen   Generator
	layer *cache.Layer
	ttl   time.Duration
}

func NewCached(gen Generator, layer *cache.Layer, ttl time.Duration) *Cached {
	return &Cached{gen: gen, layer: layer, ttl: ttl}
}

var errEmpty = errors.New("generator returned nothing")

func (c *Cached) Generate(ctx context.Context, userID, kind string, recent []*models.Reminder) ([]string, error) {
	return cache.Fetch(ctx, c.layer, userID, kind, nil, c.ttl, func(ctx context.Context) ([]string, error) {
		out, err := c.gen.Generate(ctx, kind, recent)
		if err != nil {
			return nil, err
		}
		if len(out) == 0 {
			return nil, errEmpty
		}
		return out, nil
	})
}
