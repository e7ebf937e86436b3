package service

import (
	"signal_bot/internal/modules/config"
	tc "signal_bot/internal/modules/threecommas/service"

	"github.com/pkg/errors"
)

// payload собирает тело create/update из активного профиля. Одни и те же входы дают один и тот же payload.
func (m *Machine) payload(name string, pairs []string, mad int, create bool) (tc.BotPayload, error) {
	p := m.profile()
	single := m.cfg.Bot.Single

	strategies, err := config.StrategyList(p.DealMode, single)
	if err != nil {
		return tc.BotPayload{}, errors.Wrapf(config.ErrFatalConfig, "[%s] deal_mode: %v", p.Name, err)
	}

	out := tc.BotPayload{
		Name:                        name,
		AccountID:                   m.account.ID,
		Pairs:                       pairs,
		MaxActiveDeals:              mad,
		BaseOrderVolume:             p.BaseOrder,
		TakeProfit:                  p.TakeProfit,
		SafetyOrderVolume:           p.SafetyOrder,
		MartingaleVolumeCoefficient: p.VolumeScale,
		MartingaleStepCoefficient:   p.StepScale,
		MaxSafetyOrders:             p.MaxSafetyOrders,
		SafetyOrderStepPercentage:   p.SafetyOrderStep,
		TakeProfitType:              "total",
		ActiveSafetyOrdersCount:     p.ActiveSafety,
		Cooldown:                    p.Cooldown,
		StrategyList:                strategies,
		TrailingEnabled:             p.Trailing,
		TrailingDeviation:           p.TrailingDeviation,
		MinVolumeBtc24h:             p.BtcMinVolume,
	}
	if !single {
		out.AllowedDealsOnSamePair = p.SameDealsPerPair
	}
	// новому боту 0 не отправляем, 3Commas его не принимает
	if !create || p.DealsCount != 0 {
		deals := p.DealsCount
		out.DisableAfterDealsCount = &deals
	}

	if b := m.cfg.Bot; b.TradeFuture {
		out.LeverageType = b.LeverageType
		out.LeverageCustomValue = b.LeverageValue
		out.StopLossPercentage = b.StopLossPercent
		out.StopLossType = b.StopLossType
		out.StopLossTimeoutEnabled = b.StopLossTimeoutEnabled
		out.StopLossTimeoutInSeconds = b.StopLossTimeoutSeconds
	}
	return out, nil
}
