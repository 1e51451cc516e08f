package capital

import (
	"context"

	"capital_bot/internal/modules/capital/service"

	"go.uber.org/fx"
)

// SinkGroup: fx-группа, в которую модули кладут свои service.EventSink.
const SinkGroup = `group:"session_sinks"`

type sinkParams struct {
	fx.In

	Sinks []service.EventSink `group:"session_sinks"`
}

// Module поднимает клиента capital.com: сессия открывается в OnStart, закрывается в OnStop.
func Module() fx.Option {
	return fx.Module("capital",
		fx.Provide(
			func(p sinkParams) service.EventSink {
				return service.MultiSink(p.Sinks)
			},
			service.NewClient,
			func(c *service.Client) service.TokenSource { return c.SessionManager },
		),
		fx.Invoke(func(lc fx.Lifecycle, c *service.Client) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					_, err := c.Open(ctx)
					return err
				},
				OnStop: func(ctx context.Context) error {
					c.Close(ctx)
					return nil
				},
			})
		}),
	)
}
