package journal

import (
	"context"
	"time"

	capital "capital_bot/internal/modules/capital/service"
	"capital_bot/internal/modules/journal/service"
	"capital_bot/pkg/db"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewSink: журнал событий сессии. Без базы возвращает nil, MultiSink его пропускает.
func NewSink(lc fx.Lifecycle, tx db.TxManager, logger *zap.Logger) (capital.EventSink, error) {
	if tx == nil {
		return nil, nil
	}

	j := service.NewJournal(tx, logger.Named("journal"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := j.Migrate(ctx); err != nil {
		return nil, err
	}
	j.Start()
	// хук добавлен раньше хука capital, поэтому остановится после Close сессии
	// и успеет дописать событие closed
	lc.Append(fx.StopHook(j.Stop))
	return j, nil
}

// Module требует postgres.Module.
func Module() fx.Option {
	return fx.Module("journal",
		fx.Provide(
			fx.Annotate(
				NewSink,
				fx.ResultTags(`group:"session_sinks"`),
			),
		),
	)
}
