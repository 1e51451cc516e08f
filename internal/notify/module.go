package notify

import (
	"context"

	capital "capital_bot/internal/modules/capital/service"
	"capital_bot/internal/modules/config"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewNotifier: Telegram, если заданы token и chat_id, иначе лог.
func NewNotifier(lc fx.Lifecycle, cfg *config.Config, logger *zap.Logger) (Notifier, error) {
	logger = logger.Named("notify")
	if cfg.Telegram.Token == "" {
		return NewLog(logger), nil
	}

	t, err := NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, logger)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			t.Start(context.Background())
			return nil
		},
		OnStop: func(ctx context.Context) error {
			t.Stop()
			return nil
		},
	})
	return t, nil
}

func Module() fx.Option {
	return fx.Module("notify",
		fx.Provide(
			NewNotifier,
			fx.Annotate(
				func(n Notifier) capital.EventSink { return NewAlertSink(n) },
				fx.ResultTags(`group:"session_sinks"`),
			),
		),
	)
}
