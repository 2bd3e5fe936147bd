package notifier

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

// TelegramConfig targets one chat (optionally a forum topic).
type TelegramConfig struct {
	Token    string
	ChatID   int64
	ThreadID int
}

// TelegramSender sends prompts as plain Telegram messages. It never polls
// for updates.
type TelegramSender struct {
	cfg TelegramConfig
	bot *tele.Bot
}

func NewTelegramSender(cfg TelegramConfig) (*TelegramSender, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.ChatID == 0 {
		return nil, errors.New("telegram chat_id is empty")
	}
	b, err := tele.NewBot(tele.Settings{
		Token:   cfg.Token,
		Client:  &http.Client{Timeout: 8 * time.Second},
		Offline: true,
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramSender{cfg: cfg, bot: b}, nil
}

func (s *TelegramSender) Name() string { return "telegram" }

func (s *TelegramSender) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.bot.Send(&tele.Chat{ID: s.cfg.ChatID}, FormatText(m), &tele.SendOptions{
		ThreadID:              s.cfg.ThreadID,
		DisableWebPagePreview: true,
	})
	return err
}

// FormatText renders the message body, falling back to the prompt name.
func FormatText(m Message) string {
	text := strings.TrimSpace(m.Text)
	if text == "" {
		text = m.Prompt
	}
	if !m.Expiration.IsZero() {
		text += fmt.Sprintf("\n(answer before %s)", m.Expiration.Format("15:04"))
	}
	return text
}
