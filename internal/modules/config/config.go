package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"signal_bot/internal/models"

	"github.com/bytedance/sonic"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"
)

const (
	programName = "signal_bot"
	envPrefix   = "SIGNALBOT"
)

// ErrFatalConfig: конфиг не даёт безопасно стартовать, процесс должен завершиться.
var ErrFatalConfig = errors.New("fatal configuration error")

// Paths откуда читать конфиг. Заполняется из флагов cmd/bot.
type Paths struct {
	DataDir string
	File    string // пусто: <datadir>/signal_bot.yaml, затем <datadir>/config.yaml
}

type General struct {
	Debug                  bool   `mapstructure:"debug" yaml:"debug"`
	Timezone               string `mapstructure:"timezone" yaml:"timezone"`
	LogDir                 string `mapstructure:"log_dir" yaml:"log_dir"`
	LogRotate              int    `mapstructure:"logrotate" yaml:"logrotate"`
	Notifications          bool   `mapstructure:"notifications" yaml:"notifications"`
	ExtensiveNotifications bool   `mapstructure:"extensive_notifications" yaml:"extensive_notifications"`
}

type ThreeCommas struct {
	BaseURL        string        `mapstructure:"base_url" yaml:"base_url"`
	Key            string        `mapstructure:"key" yaml:"key"`
	Secret         string        `mapstructure:"secret" yaml:"secret"`
	TradeMode      string        `mapstructure:"trade_mode" yaml:"trade_mode"` // paper | real
	AccountName    string        `mapstructure:"account_name" yaml:"account_name"`
	Timeout        time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Retries        int           `mapstructure:"retries" yaml:"retries"`
	RetryBackoff   float64       `mapstructure:"delay_between_retries" yaml:"delay_between_retries"`
	RateLimit      float64       `mapstructure:"rate_limit" yaml:"rate_limit"` // запросов в секунду
	SystemBotValue int           `mapstructure:"system_bot_value" yaml:"system_bot_value"`
}

type Telegram struct {
	Token         string `mapstructure:"token" yaml:"token"`
	SignalChatID  int64  `mapstructure:"signal_chat_id" yaml:"signal_chat_id"`   // канал с алертами 3CQS
	SymrankChatID int64  `mapstructure:"symrank_chat_id" yaml:"symrank_chat_id"` // куда слать /symrank
	NotifyChatID  int64  `mapstructure:"notify_chat_id" yaml:"notify_chat_id"`
}

type Health struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Addr    string `mapstructure:"addr" yaml:"addr"`
}

type Tracing struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port"`
}

type Filter struct {
	SymrankSignal       string   `mapstructure:"symrank_signal" yaml:"symrank_signal"`
	TokenWhitelist      []string `mapstructure:"token_whitelist" yaml:"token_whitelist"`
	TokenDenylist       []string `mapstructure:"token_denylist" yaml:"token_denylist"`
	VolatilityLimitMin  float64  `mapstructure:"volatility_limit_min" yaml:"volatility_limit_min"`
	VolatilityLimitMax  float64  `mapstructure:"volatility_limit_max" yaml:"volatility_limit_max"`
	PriceActionLimitMin float64  `mapstructure:"price_action_limit_min" yaml:"price_action_limit_min"`
	PriceActionLimitMax float64  `mapstructure:"price_action_limit_max" yaml:"price_action_limit_max"`
	SymrankLimitMin     int      `mapstructure:"symrank_limit_min" yaml:"symrank_limit_min"`
	SymrankLimitMax     int      `mapstructure:"symrank_limit_max" yaml:"symrank_limit_max"`
	TopcoinFilter       bool     `mapstructure:"topcoin_filter" yaml:"topcoin_filter"`
	TopcoinExchange     string   `mapstructure:"topcoin_exchange" yaml:"topcoin_exchange"`
	CoingeckoURL        string   `mapstructure:"coingecko_url" yaml:"coingecko_url"`
}

// AllSignals: подписка на все типы сигналов.
const AllSignals = "all"

type Pulse struct {
	BtcPulse          bool          `mapstructure:"btc_pulse" yaml:"btc_pulse"`
	BtcSymbol         string        `mapstructure:"btc_symbol" yaml:"btc_symbol"`
	BtcInterval       time.Duration `mapstructure:"btc_interval" yaml:"btc_interval"`
	FgiPulse          bool          `mapstructure:"fgi_pulse" yaml:"fgi_pulse"`
	FgiTrading        bool          `mapstructure:"fgi_trading" yaml:"fgi_trading"`
	FgiURL            string        `mapstructure:"fgi_url" yaml:"fgi_url"`
	FgiEmaFast        int           `mapstructure:"fgi_ema_fast" yaml:"fgi_ema_fast"`
	FgiEmaSlow        int           `mapstructure:"fgi_ema_slow" yaml:"fgi_ema_slow"`
	FgiTradeMin       int           `mapstructure:"fgi_trade_min" yaml:"fgi_trade_min"`
	FgiTradeMax       int           `mapstructure:"fgi_trade_max" yaml:"fgi_trade_max"`
	FgiRetryInterval  time.Duration `mapstructure:"fgi_retry_interval" yaml:"fgi_retry_interval"`
	PairsInterval     time.Duration `mapstructure:"pairs_interval" yaml:"pairs_interval"`
	PairsRetry        time.Duration `mapstructure:"pairs_retry_interval" yaml:"pairs_retry_interval"`
	ReconcileInterval time.Duration `mapstructure:"reconcile_interval" yaml:"reconcile_interval"`
	SymrankRetry      time.Duration `mapstructure:"symrank_retry" yaml:"symrank_retry"`
}

type Bot struct {
	Single            bool   `mapstructure:"single" yaml:"single"`
	Market            string `mapstructure:"market" yaml:"market"`
	LimitInitialPairs bool   `mapstructure:"limit_initial_pairs" yaml:"limit_initial_pairs"`
	RandomPair        bool   `mapstructure:"random_pair" yaml:"random_pair"`
	ContinuousUpdate  bool   `mapstructure:"continuous_update" yaml:"continuous_update"`
	ExtBotswitch      bool   `mapstructure:"ext_botswitch" yaml:"ext_botswitch"`
	SinglebotUpdate   bool   `mapstructure:"singlebot_update" yaml:"singlebot_update"`
	DeleteSingleBots  bool   `mapstructure:"delete_single_bots" yaml:"delete_single_bots"`

	TradeFuture            bool    `mapstructure:"trade_future" yaml:"trade_future"`
	LeverageType           string  `mapstructure:"leverage_type" yaml:"leverage_type"`
	LeverageValue          float64 `mapstructure:"leverage_value" yaml:"leverage_value"`
	StopLossPercent        float64 `mapstructure:"stop_loss_percent" yaml:"stop_loss_percent"`
	StopLossType           string  `mapstructure:"stop_loss_type" yaml:"stop_loss_type"`
	StopLossTimeoutEnabled bool    `mapstructure:"stop_loss_timeout_enabled" yaml:"stop_loss_timeout_enabled"`
	StopLossTimeoutSeconds int     `mapstructure:"stop_loss_timeout_seconds" yaml:"stop_loss_timeout_seconds"`
}

// Config ...
type Config struct {
	General     General     `mapstructure:"general" yaml:"general"`
	ThreeCommas ThreeCommas `mapstructure:"threecommas" yaml:"threecommas"`
	Telegram    Telegram    `mapstructure:"telegram" yaml:"telegram"`
	Health      Health      `mapstructure:"health" yaml:"health"`
	Tracing     Tracing     `mapstructure:"tracing" yaml:"tracing"`
	Filter      Filter      `mapstructure:"filter" yaml:"filter"`
	Pulse       Pulse       `mapstructure:"pulse" yaml:"pulse"`
	Bot         Bot         `mapstructure:"bot" yaml:"bot"`

	Profiles map[models.ProfileName]models.DcaProfile `mapstructure:"-" yaml:"profiles"`

	DataDir string `mapstructure:"-" yaml:"-"`
	Source  string `mapstructure:"-" yaml:"-"`
}

// обязательные ключи секции [dcabot]
var mandatoryProfileKeys = []string{"tp", "bo", "so", "os", "ss", "sos", "mstc", "mad", "sdsp"}

// дефолтные диапазоны FGI для секций профилей
var defaultBands = map[models.ProfileName][2]int{
	models.ProfileDefensive:  {0, 30},
	models.ProfileModerate:   {31, 60},
	models.ProfileAggressive: {61, 100},
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("general.timezone", "Europe/Berlin")
	v.SetDefault("general.logrotate", 7)

	v.SetDefault("threecommas.base_url", "https://api.3commas.io/public/api")
	v.SetDefault("threecommas.trade_mode", "paper")
	v.SetDefault("threecommas.timeout", 3*time.Second)
	v.SetDefault("threecommas.retries", 5)
	v.SetDefault("threecommas.delay_between_retries", 2.0)
	v.SetDefault("threecommas.rate_limit", 5.0)
	v.SetDefault("threecommas.system_bot_value", 300)

	v.SetDefault("health.addr", ":8080")
	v.SetDefault("tracing.host", "localhost")
	v.SetDefault("tracing.port", 6831)

	v.SetDefault("filter.symrank_signal", AllSignals)
	v.SetDefault("filter.volatility_limit_min", 0.1)
	v.SetDefault("filter.volatility_limit_max", 100.0)
	v.SetDefault("filter.price_action_limit_min", 0.1)
	v.SetDefault("filter.price_action_limit_max", 100.0)
	v.SetDefault("filter.symrank_limit_min", 1)
	v.SetDefault("filter.symrank_limit_max", 100)
	v.SetDefault("filter.topcoin_exchange", "binance")
	v.SetDefault("filter.coingecko_url", "https://api.coingecko.com/api/v3")

	v.SetDefault("pulse.btc_symbol", "BTCUSDT")
	v.SetDefault("pulse.btc_interval", 5*time.Minute)
	v.SetDefault("pulse.fgi_url", "https://api.alternative.me/fng/")
	v.SetDefault("pulse.fgi_ema_fast", 9)
	v.SetDefault("pulse.fgi_ema_slow", 20)
	v.SetDefault("pulse.fgi_trade_min", 0)
	v.SetDefault("pulse.fgi_trade_max", 100)
	v.SetDefault("pulse.fgi_retry_interval", time.Hour)
	v.SetDefault("pulse.pairs_interval", 6*time.Hour)
	v.SetDefault("pulse.pairs_retry_interval", time.Minute)
	v.SetDefault("pulse.reconcile_interval", time.Minute)
	v.SetDefault("pulse.symrank_retry", time.Minute)

	v.SetDefault("bot.singlebot_update", true)
}

// NewConfig читает yaml + .env + переменные окружения SIGNALBOT_*.
func NewConfig(paths Paths) (*Config, error) {
	dataDir := paths.DataDir
	if dataDir == "" {
		dataDir, _ = os.Getwd()
	}

	// .env необязателен
	_ = godotenv.Load(filepath.Join(dataDir, ".env"))

	source, err := resolveFile(dataDir, paths.File)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigFile(source)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(ErrFatalConfig, "cannot read %s: %v", source, err)
	}

	cfg := &Config{DataDir: dataDir, Source: source}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrapf(ErrFatalConfig, "decode %s: %v", source, err)
	}

	if err := cfg.loadProfiles(v); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveFile(dataDir, file string) (string, error) {
	if file != "" {
		if !filepath.IsAbs(file) {
			file = filepath.Join(dataDir, file)
		}
		return file, nil
	}
	for _, name := range []string{programName + ".yaml", "config.yaml"} {
		p := filepath.Join(dataDir, name)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", errors.Wrapf(ErrFatalConfig,
		"cannot read %s/%s.yaml or config.yaml, make sure it exists in the data directory", dataDir, programName)
}

// loadProfiles собирает [dcabot] и fgi-секции. Fgi-секция перекрывает только заданные в ней ключи.
func (c *Config) loadProfiles(v *viper.Viper) error {
	section := string(models.ProfileDefault)
	for _, key := range mandatoryProfileKeys {
		if !v.IsSet(section + "." + key) {
			return errors.Wrapf(ErrFatalConfig,
				"make sure that section [%s] is defined and mandatory attribute '%s' is set", section, key)
		}
	}
	if c.Bot.Single && !v.IsSet(section+".single_count") {
		return errors.Wrapf(ErrFatalConfig, "single mode requires [%s] single_count", section)
	}

	subprefix := "MULTI"
	if c.Bot.Single {
		subprefix = "SINGLE"
	}
	base := models.DcaProfile{
		Prefix:            "3CQSBOT",
		Subprefix:         subprefix,
		Suffix:            "dcabot",
		TrailingDeviation: 0.2,
		TopcoinLimit:      3500,
	}
	if err := v.Sub(section).Unmarshal(&base); err != nil {
		return errors.Wrapf(ErrFatalConfig, "decode [%s]: %v", section, err)
	}
	base.Name = models.ProfileDefault
	base.Configured = true

	c.Profiles = map[models.ProfileName]models.DcaProfile{models.ProfileDefault: base}
	for _, name := range models.SentimentProfiles {
		p := base
		p.Name = name
		p.Configured = false
		p.FgiMin, p.FgiMax = defaultBands[name][0], defaultBands[name][1]
		if sub := v.Sub(string(name)); sub != nil {
			if err := sub.Unmarshal(&p); err != nil {
				return errors.Wrapf(ErrFatalConfig, "decode [%s]: %v", name, err)
			}
			p.Configured = sub.IsSet("fgi_min")
		}
		c.Profiles[name] = p
	}
	return nil
}

// Profile возвращает секцию по имени, для незнакомого имени, [dcabot].
func (c *Config) Profile(name models.ProfileName) models.DcaProfile {
	if p, ok := c.Profiles[name]; ok {
		return p
	}
	return c.Profiles[models.ProfileDefault]
}

// SentimentProfilesConfigured: все три fgi-секции заданы явно.
func (c *Config) SentimentProfilesConfigured() bool {
	for _, name := range models.SentimentProfiles {
		if !c.Profile(name).Configured {
			return false
		}
	}
	return true
}

// Validate ловит несовместимые настройки до старта.
func (c *Config) Validate() error {
	if c.ThreeCommas.Key == "" || c.ThreeCommas.Secret == "" {
		return errors.Wrap(ErrFatalConfig, "threecommas key and secret are mandatory")
	}
	if c.ThreeCommas.AccountName == "" {
		return errors.Wrap(ErrFatalConfig, "threecommas account_name is mandatory")
	}
	switch c.ThreeCommas.TradeMode {
	case "paper", "real":
	default:
		return errors.Wrapf(ErrFatalConfig, "threecommas trade_mode must be 'paper' or 'real', got '%s'", c.ThreeCommas.TradeMode)
	}
	if c.Bot.Market == "" {
		return errors.Wrap(ErrFatalConfig, "bot market (quote currency) is mandatory")
	}
	if c.Pulse.BtcPulse && c.Bot.ExtBotswitch {
		return errors.Wrap(ErrFatalConfig, "btc_pulse AND ext_botswitch both set to true - not allowed")
	}
	if c.Filter.SymrankSignal != AllSignals {
		if _, ok := models.KindFromCode(c.Filter.SymrankSignal); !ok {
			return errors.Wrapf(ErrFatalConfig, "unknown symrank_signal '%s'", c.Filter.SymrankSignal)
		}
	}
	if c.Pulse.FgiEmaFast <= 0 || c.Pulse.FgiEmaSlow <= 0 {
		return errors.Wrap(ErrFatalConfig, "fgi_ema_fast and fgi_ema_slow must be positive")
	}
	for name, p := range c.Profiles {
		if _, err := StrategyList(p.DealMode, c.Bot.Single); err != nil {
			return errors.Wrapf(ErrFatalConfig,
				"either missing [%s] section with DCA settings or decoding JSON string of deal_mode failed: %v", name, err)
		}
	}
	return nil
}

// StrategyList: strategy_list для payload бота.
// "signal" → manual для мультибота и nonstop для синглботов, иначе deal_mode, JSON-список стратегий.
func StrategyList(dealMode string, single bool) ([]map[string]any, error) {
	if dealMode == models.DealModeSignal {
		if single {
			return []map[string]any{{"strategy": "nonstop"}}, nil
		}
		return []map[string]any{{"strategy": "manual"}}, nil
	}
	var list []map[string]any
	if err := sonic.UnmarshalString(dealMode, &list); err != nil {
		return nil, errors.Wrap(err, "deal_mode")
	}
	if len(list) == 0 {
		return nil, errors.New("deal_mode: empty strategy list")
	}
	return list, nil
}

// Dump: эффективный конфиг в yaml без секретов.
func (c *Config) Dump() string {
	cp := *c
	cp.ThreeCommas.Key = redact(cp.ThreeCommas.Key)
	cp.ThreeCommas.Secret = redact(cp.ThreeCommas.Secret)
	cp.Telegram.Token = redact(cp.Telegram.Token)

	out, err := yaml.Marshal(&cp)
	if err != nil {
		return "config dump failed: " + err.Error()
	}
	return string(out)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}
