package models

import "time"

// TradingConditions: снимок условий торговли на момент чтения.
// Pairs после публикации не меняется, новая выгрузка пар публикует новую мапу.
type TradingConditions struct {
	SentimentValue         int
	SentimentAllowsTrading bool
	SentimentDowntrend     bool
	SentimentDrop          bool
	PriceTrendDowntrend    bool
	Pairs                  map[string]struct{}
	ActiveProfile          ProfileName
}

// DefaultConditions: безопасные значения до первого обновления лупов.
func DefaultConditions() TradingConditions {
	return TradingConditions{
		SentimentValue:         -1,
		SentimentAllowsTrading: true,
		Pairs:                  map[string]struct{}{},
		ActiveProfile:          ProfileDefault,
	}
}

func (c TradingConditions) Tradeable(pair string) bool {
	_, ok := c.Pairs[pair]
	return ok
}

// ShouldTrade: и BTC, и FGI разрешают торговлю.
func (c TradingConditions) ShouldTrade() bool {
	return !c.PriceTrendDowntrend && c.SentimentAllowsTrading
}

// SentimentSeries: значения индекса страха и жадности от старых к новым.
type SentimentSeries struct {
	Values          []int
	TimeUntilUpdate time.Duration
}

func (s SentimentSeries) Latest() int {
	if len(s.Values) == 0 {
		return -1
	}
	return s.Values[len(s.Values)-1]
}
