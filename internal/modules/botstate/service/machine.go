package service

import (
	"context"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
	tc "signal_bot/internal/modules/threecommas/service"
	"signal_bot/internal/notify"
	"signal_bot/pkg/logger"

	"github.com/pkg/errors"
)

// BotAPI: то, что машине нужно от 3Commas.
type BotAPI interface {
	Bots(ctx context.Context) ([]models.Bot, error)
	CreateBot(ctx context.Context, p tc.BotPayload) (models.Bot, error)
	UpdateBot(ctx context.Context, id int64, p tc.BotPayload) (models.Bot, error)
	EnableBot(ctx context.Context, id int64) (models.Bot, error)
	DisableBot(ctx context.Context, id int64) (models.Bot, error)
	DeleteBot(ctx context.Context, id int64) error
	StartNewDeal(ctx context.Context, id int64, pair string) error
	ActiveDeals(ctx context.Context, botID int64) ([]models.Deal, error)
}

// CoinFilter: фильтр пар по капитализации и объёму.
type CoinFilter interface {
	Filter(ctx context.Context, pairs []string, rankLimit int, minVolume float64) ([]string, error)
}

// Conditions: источник актуального снимка условий торговли.
type Conditions interface {
	Snapshot() models.TradingConditions
}

// singleSettle: 3Commas не сразу готов включить только что созданный бот.
const singleSettle = 2 * time.Second

// Machine владеет флагом "бот активен" и зеркалом мультибота.
// Все мутации ботов идут под mu, поэтому на один бот в каждый момент пишет один вызов.
type Machine struct {
	api    BotAPI
	coins  CoinFilter
	cond   Conditions
	cfg    *config.Config
	notify notify.Notifier

	mu            sync.Mutex
	account       models.Account
	multi         *models.Bot // nil: бот не найден или зеркало устарело
	awaitingRanks bool

	active        atomic.Bool
	topcoinPassed atomic.Int64

	pick   func(n int) int
	sleep  func(ctx context.Context, d time.Duration) error
	settle time.Duration
}

func NewMachine(api BotAPI, coins CoinFilter, cond Conditions, cfg *config.Config, n notify.Notifier) *Machine {
	return &Machine{
		api:    api,
		coins:  coins,
		cond:   cond,
		cfg:    cfg,
		notify: n,
		pick:   rand.IntN,
		sleep:  sleepCtx,
		settle: singleSettle,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Init запоминает аккаунт и для мультибота делает первичный поиск/переименование.
// Ошибка с config.ErrFatalConfig означает, что продолжать нельзя.
func (m *Machine) Init(ctx context.Context, account models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.account = account
	if m.cfg.Bot.Single {
		return nil
	}
	if err := m.searchRename(ctx); err != nil {
		return err
	}
	if m.multi != nil {
		m.active.Store(m.multi.IsEnabled)
	}
	// без signal-режима пары мультибота берутся только из свежего symrank
	if !m.profile().SignalDriven() {
		m.awaitingRanks = true
	}
	return nil
}

// Active: флаг "бот включён", его читает фильтр сигналов.
func (m *Machine) Active() bool { return m.active.Load() }

// AwaitingRanks: мультибот ждёт top30 для включения.
func (m *Machine) AwaitingRanks() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.awaitingRanks
}

// Bot: копия зеркала мультибота.
func (m *Machine) Bot() *models.Bot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.multi.Clone()
}

func (m *Machine) profile() models.DcaProfile {
	return m.cfg.Profile(m.cond.Snapshot().ActiveProfile)
}

// HandleSignal проводит уже отфильтрованный сигнал через нужный режим.
func (m *Machine) HandleSignal(ctx context.Context, sig models.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.Bot.Single {
		return m.triggerSingle(ctx, sig)
	}
	if m.profile().SignalDriven() && m.multi == nil && sig.Action == models.ActionStart {
		if err := m.createMulti(ctx, &sig, nil); err != nil {
			return err
		}
	}
	if m.multi == nil {
		logger.Info("[BOT] no multi bot to trigger for %s", sig.Pair)
		return nil
	}
	return m.triggerMulti(ctx, sig)
}

// HandleRanks применяет список top30, если мультибот его ждёт. false, список проигнорирован.
func (m *Machine) HandleRanks(ctx context.Context, ranks models.RankList) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.Bot.Single || m.profile().SignalDriven() || !m.awaitingRanks {
		logger.Debug("[BOT] symrank list ignored")
		return false, nil
	}
	m.awaitingRanks = false
	m.notify.Notify("New symrank list incoming - updating bot")
	return true, m.createMulti(ctx, nil, ranks)
}

// Reconcile сводит условия торговли с состоянием ботов. Повторный вызов
// при тех же условиях ничего не меняет на сервере.
func (m *Machine) Reconcile(ctx context.Context) error {
	if m.cfg.Bot.ExtBotswitch {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	should := m.cond.Snapshot().ShouldTrade()
	active := m.active.Load()

	switch {
	case !active && should:
		if m.cfg.Bot.Single {
			m.active.Store(true)
			m.notify.Notify("Single bot mode activated - waiting for pair #start signals")
			return nil
		}
		if m.profile().SignalDriven() || m.cfg.Bot.ContinuousUpdate {
			if err := m.enableMulti(ctx); err != nil {
				return err
			}
			if m.active.Load() {
				m.notify.Notify("Multi bot activated - waiting for pair #start signals")
			}
			return nil
		}
		if !m.awaitingRanks {
			m.awaitingRanks = true
			m.notify.Notify("Multi bot will be activated after processing top30 symrank list")
		}
		return nil

	case active && !should:
		if m.cfg.Bot.Single {
			return m.disableAllSingle(ctx)
		}
		return m.disableMulti(ctx)
	}
	logger.Debug("[BOT] reconcile: nothing to do")
	return nil
}

// topcoins пропускает pairs через фильтр монет, если он включён.
func (m *Machine) topcoins(ctx context.Context, pairs []string) ([]string, error) {
	if !m.cfg.Filter.TopcoinFilter || len(pairs) == 0 {
		return pairs, nil
	}
	p := m.profile()
	out, err := m.coins.Filter(ctx, pairs, p.TopcoinLimit, p.TopcoinVolume)
	if err != nil {
		return nil, errors.Wrap(err, "topcoin filter")
	}
	return out, nil
}

// signalPassesTopcoins: фильтр монет для пары одного сигнала, прошедшие считаются для статистики.
func (m *Machine) signalPassesTopcoins(ctx context.Context, pair string) (bool, error) {
	passed, err := m.topcoins(ctx, []string{pair})
	if err != nil {
		return false, err
	}
	if len(passed) == 0 {
		return false, nil
	}
	if m.cfg.Filter.TopcoinFilter {
		m.topcoinPassed.Add(1)
	}
	return true, nil
}

// TopcoinPassed: сколько START-сигналов прошло фильтр монет с запуска.
func (m *Machine) TopcoinPassed() int64 { return m.topcoinPassed.Load() }

// adjustMad: пар меньше чем mad/sdsp, mad = число пар, иначе mad из профиля.
func (m *Machine) adjustMad(pairs int) int {
	p := m.profile()
	if pairs*p.SameDealsPerPair < p.MaxActiveDeals {
		return pairs
	}
	return p.MaxActiveDeals
}
