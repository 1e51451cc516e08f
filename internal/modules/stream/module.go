package stream

import (
	capital "capital_bot/internal/modules/capital/service"
	"capital_bot/internal/modules/config"
	"capital_bot/internal/modules/stream/service"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewStreamer(cfg *config.Config, tokens capital.TokenSource, logger *zap.Logger) *service.Streamer {
	return service.NewStreamer(cfg.Stream.URL, tokens, cfg.Stream.PingInterval, logger.Named("stream"))
}

// Module отдаёт *service.Streamer; подписку запускает вызывающий.
func Module() fx.Option {
	return fx.Module("stream",
		fx.Provide(
			NewStreamer,
		),
	)
}
