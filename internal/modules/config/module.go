package config

import "go.uber.org/fx"

// Module регистрирует *Config как fx-провайдер. Paths кладёт cmd/bot через fx.Supply.
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			NewConfig,
		),
	)
}
