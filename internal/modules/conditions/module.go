package conditions

import (
	"signal_bot/internal/modules/conditions/service"
	"signal_bot/internal/modules/config"
	md "signal_bot/internal/modules/market_data/service"
	tc "signal_bot/internal/modules/threecommas/service"

	"go.uber.org/fx"
)

// Module: общее состояние условий торговли и три цикла, которые его пишут.
func Module() fx.Option {
	return fx.Module("conditions",
		fx.Provide(
			newState,
			fx.Annotate(identity[*md.FearGreed], fx.As(new(service.SentimentSource))),
			fx.Annotate(identity[*md.Candles], fx.As(new(service.CandleSource))),
			fx.Annotate(identity[*tc.Client], fx.As(new(service.PairSource))),
			service.NewSentiment,
			service.NewPriceTrend,
			service.NewPairs,
		),
	)
}

// с btc_pulse до первого замера считаем, что BTC падает
func newState(cfg *config.Config) *service.State {
	return service.NewState(cfg.Pulse.BtcPulse)
}

func identity[T any](v T) T { return v }
