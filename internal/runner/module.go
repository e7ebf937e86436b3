package runner

import (
	"context"

	botsvc "signal_bot/internal/modules/botstate/service"
	condsvc "signal_bot/internal/modules/conditions/service"
	"signal_bot/internal/modules/config"
	tg "signal_bot/internal/modules/telegram_bot/service"
	tc "signal_bot/internal/modules/threecommas/service"
	"signal_bot/pkg/logger"

	"github.com/pkg/errors"
	"go.uber.org/fx"
)

func Module() fx.Option {
	return fx.Module("runner",
		fx.Provide(
			fx.Annotate(identity[*tc.Client], fx.As(new(AccountAPI))),
			fx.Annotate(identity[*condsvc.State], fx.As(new(Conditions))),
			fx.Annotate(identity[*botsvc.Machine], fx.As(new(BotMachine))),
			fx.Annotate(identity[*tg.Telegram], fx.As(new(Transport))),
			NewLoops,
			New, // *Runner
		),
		fx.Invoke(func(lc fx.Lifecycle, sd fx.Shutdowner, r *Runner) {
			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})

			lc.Append(fx.Hook{
				OnStart: func(_ context.Context) error {
					go func() {
						defer close(done)
						err := r.Run(ctx)
						switch {
						case errors.Is(err, config.ErrFatalConfig):
							logger.Fatal("[RUNNER] %v", err)
						case err != nil:
							logger.Error("[RUNNER] stopped: %v", err)
						}
						if ctx.Err() == nil {
							_ = sd.Shutdown()
						}
					}()
					return nil
				},
				OnStop: func(stopCtx context.Context) error {
					cancel()
					select {
					case <-done:
					case <-stopCtx.Done():
					}
					return nil
				},
			})
		}),
	)
}

func NewLoops(p *condsvc.Pairs, s *condsvc.Sentiment, t *condsvc.PriceTrend) Loops {
	return Loops{Pairs: p, Sentiment: s, Price: t}
}

func identity[T any](v T) T { return v }
