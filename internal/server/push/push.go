// Package push delivers notifications to a user's push token. Device
// tokens go to an Expo-compatible HTTP endpoint, "tg:<chat id>" tokens to
// Telegram.
package push

import (
	"context"
	"errors"
	"strings"
)

type Message struct {
	Title string
	Body  string
}

// Dispatcher sends one notification.
type Dispatcher interface {
	Send(ctx context.Context, token string, msg Message, data map[string]string) error
}

var ErrNoToken = errors.New("user has no push token")

const telegramPrefix = "tg:"

// Router picks a dispatcher by token shape.
type Router struct {
	device   Dispatcher
	telegram Dispatcher
}

// NewRouter builds a router; telegram may be nil when no bot is configured.
func NewRouter(device, telegram Dispatcher) *Router {
	return &Router{device: device, telegram: telegram}
}

func (r *Router) Send(ctx context.Context, token string, msg Message, data map[string]string) error {
	switch {
	case token == "":
		return ErrNoToken
	case strings.HasPrefix(token, telegramPrefix):
		if r.telegram == nil {
			return errors.New("telegram delivery is not configured")
		}
		return r.telegram.Send(ctx, token, msg, data)
	default:
		return r.device.Send(ctx, token, msg, data)
	}
}
