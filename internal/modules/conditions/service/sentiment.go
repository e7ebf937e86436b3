package service

import (
	"context"
	"fmt"
	"time"

	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/notify"
	"signal_bot/pkg/logger"
	"signal_bot/pkg/metrics"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

const (
	fgiHistory = 100
	// ответ alternative.me иногда приходит прямо перед обновлением, такие ответы пропускаем
	fgiMinUntilUpdate = 10 * time.Second
	fgiDayDrop        = 10
	fgiTwoDayDrop     = 15
)

// SentimentResult: разбор серии FGI.
type SentimentResult struct {
	Value     int
	FastEMA   float64
	SlowEMA   float64
	Downtrend bool
	Drop      bool
	InRange   bool // внутри fgi_trade_min..fgi_trade_max
	Allows    bool
}

// EvaluateSentiment: чистая часть FGI-лупа. prevAllows: разрешала ли торговлю прошлая оценка.
// Спад или падение запрещают торговлю. Снова разрешить её может только FGI внутри
// fgi_trade_min..fgi_trade_max, уже разрешённая торговля от диапазона не зависит.
// Без fgi_pulse индекс только сообщает значение и торговлю не ограничивает.
func EvaluateSentiment(values []int, p config.Pulse, prevAllows bool) (SentimentResult, error) {
	need := max(p.FgiEmaFast, p.FgiEmaSlow, 3)
	if len(values) < need {
		return SentimentResult{}, errors.Errorf("not enough FGI values: %d < %d", len(values), need)
	}

	series := make([]float64, len(values))
	for i, v := range values {
		series[i] = float64(v)
	}
	fast := EMA(series, p.FgiEmaFast)
	slow := EMA(series, p.FgiEmaSlow)

	last := len(values) - 1
	r := SentimentResult{
		Value:   values[last],
		FastEMA: fast[last],
		SlowEMA: slow[last],
		Allows:  true,
	}
	if !p.FgiPulse {
		return r, nil
	}

	r.Downtrend = r.FastEMA < r.SlowEMA
	r.Drop = values[last-1]-values[last] >= fgiDayDrop || values[last-2]-values[last] >= fgiTwoDayDrop
	r.InRange = r.Value >= p.FgiTradeMin && r.Value <= p.FgiTradeMax
	r.Allows = !r.Downtrend && !r.Drop && (prevAllows || r.InRange)
	return r, nil
}

// SelectProfile: последний профиль, в диапазон которого попадает FGI.
// Если хотя бы одна fgi-секция не задана, всегда [dcabot]. ok == false, диапазон не найден, профиль не меняем.
func SelectProfile(fgi int, cfg *config.Config) (models.ProfileName, bool) {
	if !cfg.SentimentProfilesConfigured() {
		return models.ProfileDefault, true
	}
	var (
		name  models.ProfileName
		found bool
	)
	for _, candidate := range models.SentimentProfiles {
		if cfg.Profile(candidate).InBand(fgi) {
			name, found = candidate, true
		}
	}
	return name, found
}

// Sentiment: луп индекса страха и жадности.
type Sentiment struct {
	src    SentimentSource
	state  *State
	cfg    *config.Config
	notify notify.Notifier
	sleep  SleepFunc
}

func NewSentiment(src SentimentSource, state *State, cfg *config.Config, n notify.Notifier) *Sentiment {
	return &Sentiment{src: src, state: state, cfg: cfg, notify: n, sleep: Sleep}
}

func (s *Sentiment) Run(ctx context.Context) error {
	p := s.cfg.Pulse
	switch {
	case p.FgiPulse && p.FgiTrading:
		s.notify.Notify("Initialising FGI pulse with FGI adapted DCA settings")
	case p.FgiPulse:
		s.notify.Notify("Initialising FGI pulse only, without FGI adapted DCA settings")
	default:
		s.notify.Notify("Initialising FGI adapted DCA settings")
	}
	return runForever(ctx, "FGI", s.notify, s.sleep, s.Tick)
}

// Tick: одна итерация, возвращает сколько спать до следующей.
func (s *Sentiment) Tick(ctx context.Context) time.Duration {
	series, err := s.src.FearGreed(ctx, fgiHistory)
	if err != nil {
		logger.Error("[FGI] fetch failed: %v", err)
		return s.cfg.Pulse.FgiRetryInterval
	}

	wait := series.TimeUntilUpdate
	if wait < 0 {
		return fgiMinUntilUpdate
	}
	if wait <= fgiMinUntilUpdate {
		logger.Debug("[FGI] update due in %s, skipping", wait)
		return max(wait, time.Second)
	}

	prev := s.state.Snapshot()
	r, err := EvaluateSentiment(series.Values, s.cfg.Pulse, prev.SentimentAllowsTrading)
	if err != nil {
		logger.Error("[FGI] %v", err)
		return s.cfg.Pulse.FgiRetryInterval
	}

	metrics.SentimentValue.Set(float64(r.Value))
	s.state.SetSentiment(SentimentUpdate{Value: r.Value, Allows: r.Allows, Downtrend: r.Downtrend, Drop: r.Drop})
	s.report(r, prev, wait)

	if s.cfg.Pulse.FgiTrading {
		s.applyProfile(r.Value, prev.ActiveProfile)
	}
	return wait
}

func (s *Sentiment) report(r SentimentResult, prev models.TradingConditions, wait time.Duration) {
	s.notify.Notify(fmt.Sprintf("Current FGI: %d - next update %s", r.Value,
		humanize.RelTime(time.Now(), time.Now().Add(wait), "ago", "from now")))
	if !s.cfg.Pulse.FgiPulse {
		return
	}

	trend := fmt.Sprintf("FGI-EMA%d: %.1f vs FGI-EMA%d: %.1f", s.cfg.Pulse.FgiEmaFast, r.FastEMA, s.cfg.Pulse.FgiEmaSlow, r.SlowEMA)
	if r.Downtrend {
		s.notify.Notify("FGI downtrending - " + trend + " - trading not allowed")
	} else {
		s.notify.Notify("FGI uptrending - " + trend)
	}
	if r.Drop {
		s.notify.Notify(fmt.Sprintf("FGI drop >= %d vs yesterday or >= %d vs day before yesterday - trading not allowed for today",
			fgiDayDrop, fgiTwoDayDrop))
	}
	if !r.Downtrend && !r.Drop && !r.InRange && !prev.SentimentAllowsTrading {
		s.notify.Notify(fmt.Sprintf("FGI outside the allowed trading range [%d..%d] - trading not allowed",
			s.cfg.Pulse.FgiTradeMin, s.cfg.Pulse.FgiTradeMax))
	}
	if r.Allows && !prev.SentimentAllowsTrading && r.InRange {
		s.notify.Notify(fmt.Sprintf("FGI inside allowed trading range [%d..%d] - trading allowed",
			s.cfg.Pulse.FgiTradeMin, s.cfg.Pulse.FgiTradeMax))
	}
	logger.Debug("[FGI] downtrend=%t drop=%t allows=%t", r.Downtrend, r.Drop, r.Allows)
}

func (s *Sentiment) applyProfile(fgi int, prev models.ProfileName) {
	if !s.cfg.SentimentProfilesConfigured() {
		s.notify.Notify("DCA settings for [fgi_defensive], [fgi_moderate] or [fgi_aggressive] are not configured. Using [dcabot] for all FGI values 0-100")
	}
	name, ok := SelectProfile(fgi, s.cfg)
	if !ok {
		logger.Warn("[FGI] value %d is outside every configured band, keeping [%s]", fgi, prev)
		return
	}
	s.state.SetProfile(name)
	if name != prev {
		s.notify.Notify(fmt.Sprintf("DCA setting changed from [%s] to [%s]", prev, name))
	}
}
