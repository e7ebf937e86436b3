package market_data

import (
	"signal_bot/internal/modules/market_data/service"

	"go.uber.org/fx"
)

// Module: внешние источники рыночных данных: FGI, свечи Binance, рейтинг CoinGecko.
func Module() fx.Option {
	return fx.Module("market_data",
		fx.Provide(
			service.NewFearGreed,
			service.NewCandles,
			service.NewTopCoins,
		),
	)
}
