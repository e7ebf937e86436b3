package models

import (
	"slices"
	"time"
)

// Bot: локальное зеркало DCA-бота на 3Commas. Ответ сервера всегда перетирает зеркало целиком.
type Bot struct {
	ID                     int64
	Name                   string
	IsEnabled              bool
	Pairs                  []string
	MaxActiveDeals         int
	ActiveDealsCount       int
	FinishedDealsCount     int
	FinishedDealsProfitUSD float64
	ActiveDealsUSDProfit   float64

	// DCA-настройки, с которыми бот сейчас работает на сервере
	Settings BotSettings
}

// BotSettings: то, что уходит в payload create/update и приходит обратно.
// Структура сравнима через ==, этим пользуемся чтобы не слать лишний update.
type BotSettings struct {
	BaseOrderVolume   float64
	SafetyOrderVolume float64
	TakeProfit        float64
	VolumeScale       float64
	StepScale         float64
	StepPercentage    float64
	MaxSafetyOrders   int
	ActiveSafety      int
	Cooldown          int
}

func (b *Bot) HasPair(pair string) bool {
	if b == nil {
		return false
	}
	return slices.Contains(b.Pairs, pair)
}

// Clone: глубокая копия, чтобы мутировать пары без гонок с читателями.
func (b *Bot) Clone() *Bot {
	if b == nil {
		return nil
	}
	c := *b
	c.Pairs = slices.Clone(b.Pairs)
	return &c
}

// Deal: активная сделка бота, нужна только для отчёта.
type Deal struct {
	ID                     int64
	BotID                  int64
	Pair                   string
	CreatedAt              time.Time
	ActualUSDProfit        float64
	ActualProfitPercentage float64
	BoughtVolume           float64
	BaseOrderVolume        float64
	HasError               bool
}

// Volume: купленный объём; если сервер не вернул bought_volume, берём объём базового ордера.
func (d Deal) Volume() float64 {
	if d.BoughtVolume == 0 {
		return d.BaseOrderVolume
	}
	return d.BoughtVolume
}

// Account: биржевой аккаунт на 3Commas.
type Account struct {
	ID         int64
	Name       string
	MarketCode string
}
