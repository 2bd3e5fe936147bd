package notifier

import (
	"context"

	logx "promptd/pkg/logx"
)

// LogSender writes deliveries to the log. It is the sender used when no
// messaging platform is configured.
type LogSender struct {
	Log logx.Logger
}

func (s LogSender) Name() string { return "log" }

func (s LogSender) Send(_ context.Context, m Message) error {
	fields := []logx.Field{
		logx.String("prompt", m.Prompt),
		logx.Time("trigger", m.Trigger),
		logx.String("text", m.Text),
	}
	if !m.Expiration.IsZero() {
		fields = append(fields, logx.Time("expires", m.Expiration))
	}
	s.Log.Info("prompt", fields...)
	return nil
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, m Message) error

func (f SenderFunc) Name() string { return "func" }

func (f SenderFunc) Send(ctx context.Context, m Message) error { return f(ctx, m) }
