package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signal_bot/internal/modules/config"
	"signal_bot/internal/notify"
	"signal_bot/pkg/logger"

	"github.com/pkg/errors"
)

// Pairs: периодическая выгрузка торгуемых пар аккаунта.
type Pairs struct {
	src      PairSource
	state    *State
	market   string
	denylist map[string]struct{}
	interval time.Duration
	retry    time.Duration
	verbose  bool
	notify   notify.Notifier
	sleep    SleepFunc
}

func NewPairs(src PairSource, state *State, cfg *config.Config, n notify.Notifier) *Pairs {
	deny := make(map[string]struct{}, len(cfg.Filter.TokenDenylist))
	for _, p := range cfg.Filter.TokenDenylist {
		deny[p] = struct{}{}
	}
	return &Pairs{
		src:      src,
		state:    state,
		market:   cfg.Bot.Market,
		denylist: deny,
		interval: cfg.Pulse.PairsInterval,
		retry:    cfg.Pulse.PairsRetry,
		verbose:  cfg.General.ExtensiveNotifications,
		notify:   n,
		sleep:    Sleep,
	}
}

// Run крутит выгрузку для marketCode аккаунта; ошибки не роняют луп.
func (p *Pairs) Run(ctx context.Context, marketCode string) error {
	return runForever(ctx, "PAIRS", p.notify, p.sleep, func(ctx context.Context) time.Duration {
		return p.Tick(ctx, marketCode)
	})
}

// Tick: одна выгрузка. После ошибки спим pairs_retry_interval, иначе pairs_interval.
func (p *Pairs) Tick(ctx context.Context, marketCode string) time.Duration {
	n, err := p.Refresh(ctx, marketCode)
	if err != nil {
		logger.Error("[PAIRS] refresh failed, retry in %s: %v", p.retry, err)
		return p.retry
	}
	msg := fmt.Sprintf("%d tradeable and non-blacklisted %s pairs on '%s' imported. Next update in %s",
		n, p.market, marketCode, p.interval)
	if p.verbose {
		p.notify.Notify(msg)
	} else {
		logger.Info("[PAIRS] %s", msg)
	}
	return p.interval
}

// Refresh = пары рынка - локальный denylist - блэклист 3Commas.
func (p *Pairs) Refresh(ctx context.Context, marketCode string) (int, error) {
	all, err := p.src.MarketPairs(ctx, marketCode)
	if err != nil {
		return 0, errors.Wrap(err, "market pairs")
	}
	blacklist, err := p.src.BlacklistedPairs(ctx)
	if err != nil {
		return 0, errors.Wrap(err, "pairs blacklist")
	}
	banned := make(map[string]struct{}, len(blacklist))
	for _, b := range blacklist {
		banned[b] = struct{}{}
	}

	prefix := p.market + "_"
	pairs := make(map[string]struct{}, len(all))
	for _, pair := range all {
		if !strings.HasPrefix(pair, prefix) {
			continue
		}
		if _, ok := p.denylist[pair]; ok {
			continue
		}
		if _, ok := banned[pair]; ok {
			continue
		}
		pairs[pair] = struct{}{}
	}
	p.state.SetPairs(pairs)
	return len(pairs), nil
}
