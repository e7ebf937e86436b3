package service

import (
	"slices"

	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
)

// Reason: почему сигнал отброшен. Пустая строка, принят.
type Reason string

const (
	ReasonAccepted         Reason = ""
	ReasonNotWhitelisted   Reason = "pair is not whitelisted"
	ReasonKindFiltered     Reason = "signal kind is not subscribed"
	ReasonBotDisabled      Reason = "bot is disabled"
	ReasonNotTradeable     Reason = "pair is not tradeable"
	ReasonOutOfLimits      Reason = "scores outside filter limits"
	ReasonStopInSignalMode Reason = "STOP is ignored in signal deal mode"
)

// Decision: результат фильтра.
// BandsPassed == true, если START прошёл проверку диапазонов (нужно для статистики).
type Decision struct {
	Accepted    bool
	Reason      Reason
	BandsPassed bool
}

func reject(r Reason) Decision { return Decision{Reason: r} }

type Limits struct {
	VolatilityMin  float64
	VolatilityMax  float64
	PriceActionMin float64
	PriceActionMax float64
	RankMin        int
	RankMax        int
}

func (l Limits) contains(s models.Signal) bool {
	return s.Volatility >= l.VolatilityMin && s.Volatility <= l.VolatilityMax &&
		s.PriceAction >= l.PriceActionMin && s.PriceAction <= l.PriceActionMax &&
		s.Rank >= l.RankMin && s.Rank <= l.RankMax
}

// Params: всё, что фильтру нужно из конфига.
type Params struct {
	Whitelist        []string
	Subscription     string // код типа сигнала или "all"
	ContinuousUpdate bool
	SignalDriven     bool
	Limits           Limits
}

func NewParams(cfg *config.Config, profile models.DcaProfile) Params {
	f := cfg.Filter
	return Params{
		Whitelist:        f.TokenWhitelist,
		Subscription:     f.SymrankSignal,
		ContinuousUpdate: cfg.Bot.ContinuousUpdate,
		SignalDriven:     profile.SignalDriven(),
		Limits: Limits{
			VolatilityMin:  f.VolatilityLimitMin,
			VolatilityMax:  f.VolatilityLimitMax,
			PriceActionMin: f.PriceActionLimitMin,
			PriceActionMax: f.PriceActionLimitMax,
			RankMin:        f.SymrankLimitMin,
			RankMax:        f.SymrankLimitMax,
		},
	}
}

// Evaluate: чистая функция: порядок проверок фиксирован, выходим на первой неудаче.
func Evaluate(sig models.Signal, cond models.TradingConditions, botActive bool, p Params) Decision {
	if len(p.Whitelist) > 0 && !slices.Contains(p.Whitelist, sig.Pair) {
		return reject(ReasonNotWhitelisted)
	}
	if p.Subscription != config.AllSignals && sig.Kind.String() != p.Subscription {
		return reject(ReasonKindFiltered)
	}
	if !botActive && !p.ContinuousUpdate {
		return reject(ReasonBotDisabled)
	}
	if !cond.Tradeable(sig.Pair) {
		return reject(ReasonNotTradeable)
	}

	d := Decision{Accepted: true}
	// volatility == 0 означает "оценки нет", диапазоны не проверяем
	if sig.Action == models.ActionStart && sig.Volatility != 0 {
		if !p.Limits.contains(sig) {
			return reject(ReasonOutOfLimits)
		}
		d.BandsPassed = true
	}

	if sig.Action == models.ActionStop && p.SignalDriven {
		return reject(ReasonStopInSignalMode)
	}
	return d
}
