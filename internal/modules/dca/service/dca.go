package service

import (
	"fmt"

	"signal_bot/internal/models"

	"github.com/dustin/go-humanize"
)

// Funds: экономика одного DCA-профиля.
type Funds struct {
	PerDeal        float64 // все SO исполнены
	Total          float64 // PerDeal * MaxDeals
	MaxDeals       int
	MaxDeviation   float64 // покрытое падение цены, %
	RequiredChange float64 // нужный отскок от худшей цены входа до TP, %
}

// FundsNeeded: мартингейл-модель: каждый следующий SO больше на os, шаг больше на ss.
// Чистая функция, одинаковый вход даёт побитово одинаковый результат.
func FundsNeeded(p models.DcaProfile, maxDeals int) Funds {
	if p.MaxSafetyOrders <= 0 {
		return Funds{
			PerDeal:        p.BaseOrder,
			Total:          p.BaseOrder * float64(maxDeals),
			MaxDeals:       maxDeals,
			RequiredChange: p.TakeProfit,
		}
	}

	funds := p.BaseOrder + p.SafetyOrder
	amount := p.SafetyOrder
	deviation := p.SafetyOrderStep
	// объём в базовой валюте при цене входа 1.0
	cumBase := p.BaseOrder + p.SafetyOrder/((100-p.SafetyOrderStep)/100)

	for i := 0; i < p.MaxSafetyOrders-1; i++ {
		amount *= p.VolumeScale
		funds += amount
		deviation = deviation*p.StepScale + p.SafetyOrderStep
		cumBase += amount / ((100 - deviation) / 100)
	}

	price := (100 - deviation) / 100
	avg := funds / cumBase
	required := avg*p.TakeProfit/100 + avg

	return Funds{
		PerDeal:        funds,
		Total:          funds * float64(maxDeals),
		MaxDeals:       maxDeals,
		MaxDeviation:   deviation,
		RequiredChange: (required/price - 1) * 100,
	}
}

// MaxDeals: single_count для синглботов, mad для мультибота.
func MaxDeals(p models.DcaProfile, single bool) int {
	if single {
		return p.SingleCount
	}
	return p.MaxActiveDeals
}

// Money: $1,234.56
func Money(v float64) string {
	return "$" + humanize.FormatFloat("#,###.##", v)
}

// Report: строки отчёта по профилю для стартового конфиг-репорта и ежедневной статистики.
func Report(p models.DcaProfile, single bool) []string {
	f := FundsNeeded(p, MaxDeals(p, single))

	head := fmt.Sprintf("  [%s]", p.Name)
	if p.Name != models.ProfileDefault {
		head += fmt.Sprintf("   FGI range: %d-%d", p.FgiMin, p.FgiMax)
	}
	lines := []string{head + "  name: " + p.BotName()}
	if single {
		lines = append(lines, fmt.Sprintf("  amount of single bots: %d", p.SingleCount))
	}
	lines = append(lines,
		fmt.Sprintf("  TP: %g%%  BO: %s  SO: %s  OS: %g  SS: %g  SOS: %g%%  MSTC: %d",
			p.TakeProfit, Money(p.BaseOrder), Money(p.SafetyOrder), p.VolumeScale, p.StepScale, p.SafetyOrderStep, p.MaxSafetyOrders),
		fmt.Sprintf("  mad: %d  funds per deal: %s  funds needed: %s  cov. max price dev: %.1f%%  max req. change: %.1f%%",
			p.MaxActiveDeals, Money(f.PerDeal), Money(f.Total), f.MaxDeviation, f.RequiredChange),
	)
	return lines
}
