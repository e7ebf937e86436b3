package botstate

import (
	"signal_bot/internal/modules/botstate/service"
	cond "signal_bot/internal/modules/conditions/service"
	md "signal_bot/internal/modules/market_data/service"
	tc "signal_bot/internal/modules/threecommas/service"

	"go.uber.org/fx"
)

// Module: машина состояний ботов 3Commas.
func Module() fx.Option {
	return fx.Module("botstate",
		fx.Provide(
			fx.Annotate(identity[*tc.Client], fx.As(new(service.BotAPI))),
			fx.Annotate(identity[*md.TopCoins], fx.As(new(service.CoinFilter))),
			fx.Annotate(identity[*cond.State], fx.As(new(service.Conditions))),
			service.NewMachine,
		),
	)
}

func identity[T any](v T) T { return v }
