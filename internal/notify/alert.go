package notify

import (
	"context"

	"capital_bot/internal/models"
)

// AlertSink превращает сбои сессии в сообщения.
type AlertSink struct {
	n Notifier
}

func NewAlertSink(n Notifier) *AlertSink { return &AlertSink{n: n} }

func (a *AlertSink) SessionEvent(_ context.Context, ev models.SessionEvent) {
	switch ev.Kind {
	case models.SessionAuthFailed:
		a.n.Sendf("❗️ capital.com [%s]: логин не удался: %v", ev.Environment, ev.Err)
	case models.SessionPingFailed:
		a.n.Sendf("⚠️ capital.com [%s]: пинг не прошёл в %s: %v",
			ev.Environment, ev.At.UTC().Format(models.TimestampLayout), ev.Err)
	}
}
