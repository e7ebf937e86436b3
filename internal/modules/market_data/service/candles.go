package service

import (
	"context"
	"strconv"

	"signal_bot/pkg/metrics"
	"signal_bot/pkg/tracing"

	"github.com/adshao/go-binance/v2"
	"github.com/pkg/errors"
)

// Candles: публичные свечи спота Binance, ключи не нужны.
type Candles struct {
	spot *binance.Client
}

func NewCandles() *Candles {
	return &Candles{spot: binance.NewClient("", "")}
}

// Closes: цены закрытия последних limit свечей, от старых к новым.
func (c *Candles) Closes(ctx context.Context, symbol, interval string, limit int) (closes []float64, err error) {
	span, ctx := tracing.StartSpan(ctx, "binance.klines")
	defer func() {
		tracing.Finish(span, err)
		metrics.RemoteCallsTotal.WithLabelValues("binance.klines", resultLabel(err)).Inc()
	}()

	klines, err := c.spot.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "klines %s %s", symbol, interval)
	}

	closes = make([]float64, 0, len(klines))
	for _, k := range klines {
		v, err := strconv.ParseFloat(k.Close, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "kline close %q", k.Close)
		}
		closes = append(closes, v)
	}
	return closes, nil
}
