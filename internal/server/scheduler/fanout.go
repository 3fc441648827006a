package scheduler

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/remindsync/internal/logging"
	"github.com/dmitrijs2005/remindsync/internal/server/insights"
	"github.com/dmitrijs2005/remindsync/internal/server/models"
	"github.com/dmitrijs2005/remindsync/internal/server/push"
)

type Audience interface {
	ListUsersWithPushToken(ctx context.Context) ([]*models.User, error)
	ListRecent(ctx context.Context, userID string, limit int) ([]*models.Reminder, error)
}

type TextSource interface {
	Generate(ctx context.Context, userID, kind string, recent []*models.Reminder) ([]string, error)
}

const recentLimit = 20

var titles = map[string]string{
	insights.KindInsight:    "Your week in reminders",
	insights.KindSuggestion: "Ideas for today",
}

// FanOut pushes generated texts to every user with a push token.
type FanOut struct {
	audience   Audience
	texts      TextSource
	dispatcher push.Dispatcher
	log        logging.Logger
}

func NewFanOut(audience Audience, texts TextSource, dispatcher push.Dispatcher, log logging.Logger) *FanOut {
	return &FanOut{audience: audience, texts: texts, dispatcher: dispatcher, log: log.With("module", "fanout")}
}

// Run sends one push of the given kind per user. Per-user failures are
// logged and skipped; the count of delivered pushes is returned.
func (f *FanOut) Run(ctx context.Context, kind string) (int, error) {
	users, err := f.audience.ListUsersWithPushToken(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, u := range users {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		recent, err := f.audience.ListRecent(ctx, u.ID, recentLimit)
		if err != nil {
			f.log.Warn(ctx, "recent reminders unavailable", "user_id", u.ID, "error", err)
			continue
		}
		lines, err := f.texts.Generate(ctx, u.ID, kind, recent)
		if err != nil {
			f.log.Warn(ctx, "generator failed", "user_id", u.ID, "kind", kind, "error", err)
			continue
		}
		msg := push.Message{Title: titles[kind], Body: strings.Join(lines, "\n")}
		if err := f.dispatcher.Send(ctx, u.PushToken, msg, map[string]string{"type": kind}); err != nil {
			f.log.Warn(ctx, "push failed", "user_id", u.ID, "kind", kind, "error", err)
			continue
		}
		sent++
	}
	f.log.Info(ctx, "fan-out finished", "kind", kind, "users", len(users), "sent", sent)
	return sent, nil
}
