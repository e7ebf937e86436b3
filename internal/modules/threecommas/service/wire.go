package service

import (
	"strconv"
	"strings"
	"time"

	"signal_bot/internal/models"

	"github.com/bytedance/sonic"
)

// flexFloat: 3Commas отдаёт числа то строкой, то числом, то null.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

type botDTO struct {
	ID                     int64     `json:"id"`
	Name                   string    `json:"name"`
	IsEnabled              bool      `json:"is_enabled"`
	Pairs                  []string  `json:"pairs"`
	MaxActiveDeals         flexFloat `json:"max_active_deals"`
	ActiveDealsCount       flexFloat `json:"active_deals_count"`
	FinishedDealsCount     flexFloat `json:"finished_deals_count"`
	FinishedDealsProfitUSD flexFloat `json:"finished_deals_profit_usd"`
	ActiveDealsUSDProfit   flexFloat `json:"active_deals_usd_profit"`

	BaseOrderVolume   flexFloat `json:"base_order_volume"`
	SafetyOrderVolume flexFloat `json:"safety_order_volume"`
	TakeProfit        flexFloat `json:"take_profit"`
	VolumeScale       flexFloat `json:"martingale_volume_coefficient"`
	StepScale         flexFloat `json:"martingale_step_coefficient"`
	StepPercentage    flexFloat `json:"safety_order_step_percentage"`
	MaxSafetyOrders   flexFloat `json:"max_safety_orders"`
	ActiveSafety      flexFloat `json:"active_safety_orders_count"`
	Cooldown          flexFloat `json:"cooldown"`
}

func (d botDTO) model() models.Bot {
	return models.Bot{
		ID:                     d.ID,
		Name:                   d.Name,
		IsEnabled:              d.IsEnabled,
		Pairs:                  d.Pairs,
		MaxActiveDeals:         int(d.MaxActiveDeals),
		ActiveDealsCount:       int(d.ActiveDealsCount),
		FinishedDealsCount:     int(d.FinishedDealsCount),
		FinishedDealsProfitUSD: float64(d.FinishedDealsProfitUSD),
		ActiveDealsUSDProfit:   float64(d.ActiveDealsUSDProfit),
		Settings: models.BotSettings{
			BaseOrderVolume:   float64(d.BaseOrderVolume),
			SafetyOrderVolume: float64(d.SafetyOrderVolume),
			TakeProfit:        float64(d.TakeProfit),
			VolumeScale:       float64(d.VolumeScale),
			StepScale:         float64(d.StepScale),
			StepPercentage:    float64(d.StepPercentage),
			MaxSafetyOrders:   int(d.MaxSafetyOrders),
			ActiveSafety:      int(d.ActiveSafety),
			Cooldown:          int(d.Cooldown),
		},
	}
}

type dealDTO struct {
	ID                     int64     `json:"id"`
	BotID                  int64     `json:"bot_id"`
	Pair                   string    `json:"pair"`
	CreatedAt              string    `json:"created_at"`
	ActualUSDProfit        flexFloat `json:"actual_usd_profit"`
	ActualProfitPercentage flexFloat `json:"actual_profit_percentage"`
	BoughtVolume           flexFloat `json:"bought_volume"`
	BaseOrderVolume        flexFloat `json:"base_order_volume"`
	HasError               bool      `json:"deal_has_error"`
}

func (d dealDTO) model() models.Deal {
	created, _ := time.Parse(time.RFC3339, d.CreatedAt)
	return models.Deal{
		ID:                     d.ID,
		BotID:                  d.BotID,
		Pair:                   d.Pair,
		CreatedAt:              created,
		ActualUSDProfit:        float64(d.ActualUSDProfit),
		ActualProfitPercentage: float64(d.ActualProfitPercentage),
		BoughtVolume:           float64(d.BoughtVolume),
		BaseOrderVolume:        float64(d.BaseOrderVolume),
		HasError:               d.HasError,
	}
}

type accountDTO struct {
	ID         int64  `json:"id"`
	Name       string `json:"name"`
	MarketCode string `json:"market_code"`
}

// BotPayload: тело create_bot / update.
type BotPayload struct {
	Name                        string           `json:"name"`
	AccountID                   int64            `json:"account_id"`
	Pairs                       []string         `json:"pairs"`
	MaxActiveDeals              int              `json:"max_active_deals"`
	BaseOrderVolume             float64          `json:"base_order_volume"`
	TakeProfit                  float64          `json:"take_profit"`
	SafetyOrderVolume           float64          `json:"safety_order_volume"`
	MartingaleVolumeCoefficient float64          `json:"martingale_volume_coefficient"`
	MartingaleStepCoefficient   float64          `json:"martingale_step_coefficient"`
	MaxSafetyOrders             int              `json:"max_safety_orders"`
	SafetyOrderStepPercentage   float64          `json:"safety_order_step_percentage"`
	TakeProfitType              string           `json:"take_profit_type"`
	ActiveSafetyOrdersCount     int              `json:"active_safety_orders_count"`
	Cooldown                    int              `json:"cooldown"`
	StrategyList                []map[string]any `json:"strategy_list"`
	TrailingEnabled             bool             `json:"trailing_enabled"`
	TrailingDeviation           float64          `json:"trailing_deviation"`
	AllowedDealsOnSamePair      int              `json:"allowed_deals_on_same_pair,omitempty"`
	MinVolumeBtc24h             float64          `json:"min_volume_btc_24h"`
	DisableAfterDealsCount      *int             `json:"disable_after_deals_count,omitempty"`

	LeverageType             string  `json:"leverage_type,omitempty"`
	LeverageCustomValue      float64 `json:"leverage_custom_value,omitempty"`
	StopLossPercentage       float64 `json:"stop_loss_percentage,omitempty"`
	StopLossType             string  `json:"stop_loss_type,omitempty"`
	StopLossTimeoutEnabled   bool    `json:"stop_loss_timeout_enabled,omitempty"`
	StopLossTimeoutInSeconds int     `json:"stop_loss_timeout_in_seconds,omitempty"`
}

// String: payload в логах.
func (p BotPayload) String() string {
	b, err := sonic.MarshalString(p)
	if err != nil {
		return p.Name
	}
	return b
}
