package config

import "go.uber.org/fx"

// Module отдаёт *Config; Source должен быть передан через fx.Supply.
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
		),
	)
}
