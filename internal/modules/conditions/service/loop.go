package service

import (
	"context"
	"time"

	"signal_bot/internal/models"
	"signal_bot/internal/notify"
	"signal_bot/pkg/logger"
)

// SentimentSource: индекс страха и жадности.
type SentimentSource interface {
	FearGreed(ctx context.Context, limit int) (models.SentimentSeries, error)
}

// CandleSource: цены закрытия свечей, от старых к новым.
type CandleSource interface {
	Closes(ctx context.Context, symbol, interval string, limit int) ([]float64, error)
}

// PairSource: пары аккаунта и глобальный блэклист 3Commas.
type PairSource interface {
	MarketPairs(ctx context.Context, marketCode string) ([]string, error)
	BlacklistedPairs(ctx context.Context) ([]string, error)
}

// SleepFunc: ожидание с учётом отмены контекста. В тестах подменяется.
type SleepFunc func(ctx context.Context, d time.Duration) error

func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runForever крутит tick до отмены контекста. tick сам решает, сколько спать, и никогда не роняет луп.
func runForever(ctx context.Context, name string, n notify.Notifier, sleep SleepFunc, tick func(ctx context.Context) time.Duration) error {
	logger.Info("[%s] loop started", name)
	for {
		next := tick(ctx)
		if n != nil {
			n.Flush(ctx)
		}
		if err := sleep(ctx, next); err != nil {
			logger.Info("[%s] loop stopped", name)
			return nil
		}
	}
}
