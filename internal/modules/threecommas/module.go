package threecommas

import (
	"signal_bot/internal/modules/threecommas/service"

	"go.uber.org/fx"
)

// Module: REST-клиент 3Commas.
func Module() fx.Option {
	return fx.Module("threecommas",
		fx.Provide(service.NewClient),
	)
}
