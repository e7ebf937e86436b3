package models

import "strings"

// ProfileName: имя секции конфига с DCA-настройками.
type ProfileName string

const (
	ProfileDefault    ProfileName = "dcabot"
	ProfileDefensive  ProfileName = "fgi_defensive"
	ProfileModerate   ProfileName = "fgi_moderate"
	ProfileAggressive ProfileName = "fgi_aggressive"
)

// SentimentProfiles в порядке проверки диапазонов FGI: побеждает последний подходящий.
var SentimentProfiles = []ProfileName{ProfileDefensive, ProfileModerate, ProfileAggressive}

// DealModeSignal: сделки открываются по сигналам, без стратегий 3Commas.
const DealModeSignal = "signal"

// DcaProfile: набор DCA-настроек одной секции.
type DcaProfile struct {
	Name ProfileName `mapstructure:"-" yaml:"-"`

	BotID     int64  `mapstructure:"botid" yaml:"botid"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	Subprefix string `mapstructure:"subprefix" yaml:"subprefix"`
	Suffix    string `mapstructure:"suffix" yaml:"suffix"`

	TakeProfit        float64 `mapstructure:"tp" yaml:"tp"`
	BaseOrder         float64 `mapstructure:"bo" yaml:"bo"`
	SafetyOrder       float64 `mapstructure:"so" yaml:"so"`
	VolumeScale       float64 `mapstructure:"os" yaml:"os"`
	StepScale         float64 `mapstructure:"ss" yaml:"ss"`
	SafetyOrderStep   float64 `mapstructure:"sos" yaml:"sos"`
	MaxSafetyOrders   int     `mapstructure:"mstc" yaml:"mstc"`
	ActiveSafety      int     `mapstructure:"max" yaml:"max"`
	MaxActiveDeals    int     `mapstructure:"mad" yaml:"mad"`
	SameDealsPerPair  int     `mapstructure:"sdsp" yaml:"sdsp"`
	SingleCount       int     `mapstructure:"single_count" yaml:"single_count"`
	Cooldown          int     `mapstructure:"cooldown" yaml:"cooldown"`
	DealsCount        int     `mapstructure:"deals_count" yaml:"deals_count"`
	Trailing          bool    `mapstructure:"trailing" yaml:"trailing"`
	TrailingDeviation float64 `mapstructure:"trailing_deviation" yaml:"trailing_deviation"`
	BtcMinVolume      float64 `mapstructure:"btc_min_vol" yaml:"btc_min_vol"`
	DealMode          string  `mapstructure:"deal_mode" yaml:"deal_mode"`

	FgiMin int `mapstructure:"fgi_min" yaml:"fgi_min"`
	FgiMax int `mapstructure:"fgi_max" yaml:"fgi_max"`
	// Configured == true, если в секции явно задан fgi_min
	Configured bool `mapstructure:"-" yaml:"-"`

	TopcoinLimit  int     `mapstructure:"topcoin_limit" yaml:"topcoin_limit"`
	TopcoinVolume float64 `mapstructure:"topcoin_volume" yaml:"topcoin_volume"`
}

// BotName: prefix_subprefix_suffix, имя мультибота.
func (p DcaProfile) BotName() string {
	return strings.Join([]string{p.Prefix, p.Subprefix, p.Suffix}, "_")
}

func (p DcaProfile) SignalDriven() bool { return p.DealMode == DealModeSignal }

// InBand: значение FGI внутри [fgi_min, fgi_max] секции.
func (p DcaProfile) InBand(fgi int) bool {
	return fgi >= p.FgiMin && fgi <= p.FgiMax
}

// Settings: DCA-часть профиля в терминах бота.
func (p DcaProfile) Settings() BotSettings {
	return BotSettings{
		BaseOrderVolume:   p.BaseOrder,
		SafetyOrderVolume: p.SafetyOrder,
		TakeProfit:        p.TakeProfit,
		VolumeScale:       p.VolumeScale,
		StepScale:         p.StepScale,
		StepPercentage:    p.SafetyOrderStep,
		MaxSafetyOrders:   p.MaxSafetyOrders,
		ActiveSafety:      p.ActiveSafety,
		Cooldown:          p.Cooldown,
	}
}
