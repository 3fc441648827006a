package push

import (
	"context"
	"fmt"
	"html"
	"strconv"
	"strings"

	tg "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

var newBotAPI = tg.NewBotAPI

type botSender interface {
	Send(c tg.Chattable) (tg.Message, error)
}

// TelegramDispatcher delivers to "tg:<chat id>" tokens through a bot.
type TelegramDispatcher struct {
	bot botSender
}

func NewTelegramDispatcher(botToken string) (*TelegramDispatcher, error) {
	bot, err := newBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramDispatcher{bot: bot}, nil
}

func (t *TelegramDispatcher) Send(ctx context.Context, token string, msg Message, _ map[string]string) error {
	chatID, err := strconv.ParseInt(strings.TrimPrefix(token, telegramPrefix), 10, 64)
	if err != nil {
		return fmt.Errorf("bad telegram token %q", token)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	m := tg.NewMessage(chatID, fmt.Sprintf("<b>%s</b>\n%s", html.EscapeString(msg.Title), html.EscapeString(msg.Body)))
	m.ParseMode = tg.ModeHTML
	if _, err := t.bot.Send(m); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
