package telegram

import (
	"signal_bot/internal/modules/telegram_bot/service"

	"go.uber.org/fx"
)

// Module: telegram: bot API, транспорт сигналов и нотификатор.
// Listen запускает runner, у него свой errgroup.
func Module() fx.Option {
	return fx.Module("telegram",
		fx.Provide(
			service.NewBot,
			service.NewTelegram,
			service.NewNotifier,
		),
	)
}
