package service

import (
	"context"
	"fmt"
	"math"
	"time"

	"signal_bot/internal/modules/config"
	"signal_bot/internal/notify"
	"signal_bot/pkg/logger"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

const (
	candleInterval = "5m"
	candleLimit    = 72 // 6 часов пятиминуток
	emaFastPeriod  = 9
	emaSlowPeriod  = 50
	// 15 минут = 3 свечи назад
	changeLookback = 3
	dipThreshold   = -1.0
)

// Trend: технический срез по последним свечам.
type Trend struct {
	Close     float64
	Fast      float64
	Slow      float64
	PrevFast  float64
	PrevSlow  float64
	Change15m float64 // лог-доходность за 15 минут, %
}

// Dip: падение больше 1% за 15 минут или EMA9 ниже EMA50.
func (t Trend) Dip() bool { return t.Change15m < dipThreshold || t.Fast < t.Slow }

// GoldenCross: EMA9 пересекла EMA50 снизу на последней свече.
func (t Trend) GoldenCross() bool { return t.Fast > t.Slow && t.PrevFast < t.PrevSlow }

func AnalyzeCloses(closes []float64) (Trend, error) {
	if len(closes) < emaSlowPeriod+1 {
		return Trend{}, errors.Errorf("not enough candles: %d < %d", len(closes), emaSlowPeriod+1)
	}
	fast := EMA(closes, emaFastPeriod)
	slow := EMA(closes, emaSlowPeriod)
	last := len(closes) - 1
	base := closes[last-changeLookback]
	if base <= 0 || closes[last] <= 0 {
		return Trend{}, errors.New("non-positive close price")
	}
	return Trend{
		Close:     closes[last],
		Fast:      fast[last],
		Slow:      slow[last],
		PrevFast:  fast[last-1],
		PrevSlow:  slow[last-1],
		Change15m: math.Log(closes[last]/base) * 100,
	}, nil
}

// PriceTrend: BTC pulse.
type PriceTrend struct {
	src    CandleSource
	state  *State
	cfg    config.Pulse
	notify notify.Notifier
	sleep  SleepFunc
}

func NewPriceTrend(src CandleSource, state *State, cfg *config.Config, n notify.Notifier) *PriceTrend {
	return &PriceTrend{src: src, state: state, cfg: cfg.Pulse, notify: n, sleep: Sleep}
}

func (p *PriceTrend) Run(ctx context.Context) error {
	p.notify.Notify("Initialising BTC pulse")
	return runForever(ctx, "BTC", p.notify, p.sleep, p.Tick)
}

func (p *PriceTrend) fetch(ctx context.Context) (Trend, error) {
	closes, err := p.src.Closes(ctx, p.cfg.BtcSymbol, candleInterval, candleLimit)
	if err != nil {
		return Trend{}, err
	}
	return AnalyzeCloses(closes)
}

// Tick: на просадке флаг downtrend ставится сразу, снимается только золотым крестом через интервал.
func (p *PriceTrend) Tick(ctx context.Context) time.Duration {
	interval := p.cfg.BtcInterval

	t, err := p.fetch(ctx)
	if err != nil {
		logger.Error("[BTC] %v", err)
		return interval
	}
	wasDown := p.state.Snapshot().PriceTrendDowntrend

	if !t.Dip() {
		p.state.SetPriceDowntrend(false)
		p.report(wasDown, false, fmt.Sprintf("btc-pulse signaling UPTREND - price %s EMA9-5m %s above EMA50-5m %s",
			usd(t.Close), usd(t.Fast), usd(t.Slow)))
		return interval
	}

	p.state.SetPriceDowntrend(true)
	logger.Info("[BTC] drop %.2f%% within 15 min or EMA9 < EMA50, waiting %s for confirmation", t.Change15m, interval)
	if err := p.sleep(ctx, interval); err != nil {
		return interval
	}

	t, err = p.fetch(ctx)
	if err != nil {
		logger.Error("[BTC] confirmation: %v", err)
		return interval
	}
	if t.GoldenCross() {
		p.state.SetPriceDowntrend(false)
		p.report(wasDown, false, fmt.Sprintf("btc-pulse signaling UPTREND (golden cross) - price %s EMA9-5m %s above EMA50-5m %s",
			usd(t.Close), usd(t.Fast), usd(t.Slow)))
		return interval
	}
	p.report(wasDown, true, fmt.Sprintf("btc-pulse signaling DOWNTREND - price %s EMA9-5m %s below EMA50-5m %s",
		usd(t.Close), usd(t.Fast), usd(t.Slow)))
	return interval
}

// report шлёт в чат только смену тренда, остальное в лог.
func (p *PriceTrend) report(wasDown, isDown bool, msg string) {
	if wasDown != isDown {
		p.notify.Notify(msg)
		return
	}
	logger.Info("[BTC] %s", msg)
}

func usd(v float64) string { return "$" + humanize.FormatFloat("#,###.##", v) }
