package runner

import (
	"context"
	"sync/atomic"
	"time"

	"signal_bot/internal/models"
	condsvc "signal_bot/internal/modules/conditions/service"
	"signal_bot/internal/modules/config"
	dca "signal_bot/internal/modules/dca/service"
	healthsvc "signal_bot/internal/modules/health/service"
	tg "signal_bot/internal/modules/telegram_bot/service"
	"signal_bot/internal/notify"
	"signal_bot/pkg/logger"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

type AccountAPI interface {
	AccountByName(ctx context.Context, name string) (models.Account, error)
}

// BotMachine: машина состояний ботов.
type BotMachine interface {
	Init(ctx context.Context, account models.Account) error
	Active() bool
	AwaitingRanks() bool
	HandleSignal(ctx context.Context, sig models.Signal) error
	HandleRanks(ctx context.Context, ranks models.RankList) (bool, error)
	Reconcile(ctx context.Context) error
	Report(ctx context.Context) ([]string, error)
	TopcoinPassed() int64
}

// Transport: источник сигналов и канал для запроса top30.
type Transport interface {
	Listen(ctx context.Context, h tg.Handler) error
	RequestRanks(ctx context.Context) error
}

type Conditions interface {
	Snapshot() models.TradingConditions
	Wait(ctx context.Context, src condsvc.Source) error
}

type Loop interface {
	Run(ctx context.Context) error
}

type PairLoop interface {
	Run(ctx context.Context, marketCode string) error
}

// Loops: циклы условий торговли.
type Loops struct {
	Pairs     PairLoop
	Sentiment Loop
	Price     Loop
}

// Runner склеивает условия, машину ботов и транспорт сигналов.
// Сигналы до открытия receiving молча отбрасываются.
type Runner struct {
	cfg       *config.Config
	accounts  AccountAPI
	cond      Conditions
	loops     Loops
	machine   BotMachine
	transport Transport
	notify    notify.Notifier
	health    *healthsvc.State
	stats     *Stats

	receiving atomic.Bool
	fatal     chan error
	now       func() time.Time
	sleep     condsvc.SleepFunc
}

func New(
	cfg *config.Config,
	accounts AccountAPI,
	cond Conditions,
	loops Loops,
	machine BotMachine,
	transport Transport,
	n notify.Notifier,
	health *healthsvc.State,
) *Runner {
	return &Runner{
		cfg:       cfg,
		accounts:  accounts,
		cond:      cond,
		loops:     loops,
		machine:   machine,
		transport: transport,
		notify:    n,
		health:    health,
		stats:     NewStats(time.Now()),
		fatal:     make(chan error, 1),
		now:       time.Now,
		sleep:     condsvc.Sleep,
	}
}

// Run: старт по шагам и работа до отмены ctx. Ошибка с config.ErrFatalConfig, повод завершить процесс.
func (r *Runner) Run(ctx context.Context) error {
	r.notify.Notify("********** 3CQS Bot started **********")
	r.notify.Flush(ctx)

	name := r.cfg.ThreeCommas.AccountName
	account, err := r.accounts.AccountByName(ctx, name)
	if err != nil {
		return errors.Wrapf(config.ErrFatalConfig, "account '%s' not available: %v", name, err)
	}
	logger.Info("[RUNNER] using account '%s' (%d) on %s", account.Name, account.ID, account.MarketCode)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return r.start(gctx, g, account) })
	g.Go(func() error {
		select {
		case err := <-r.fatal:
			return err
		case <-gctx.Done():
			return nil
		}
	})
	return g.Wait()
}

func (r *Runner) start(ctx context.Context, g *errgroup.Group, account models.Account) error {
	g.Go(func() error { return r.loops.Pairs.Run(ctx, account.MarketCode) })
	if err := r.cond.Wait(ctx, condsvc.SourcePairs); err != nil {
		return nil
	}

	r.reportConfig()

	p := r.cfg.Pulse
	if p.FgiPulse || p.FgiTrading {
		g.Go(func() error { return r.loops.Sentiment.Run(ctx) })
		if err := r.cond.Wait(ctx, condsvc.SourceSentiment); err != nil {
			return nil
		}
	}
	if p.BtcPulse {
		g.Go(func() error { return r.loops.Price.Run(ctx) })
		if err := r.cond.Wait(ctx, condsvc.SourcePrice); err != nil {
			return nil
		}
	}

	if err := r.machine.Init(ctx, account); err != nil {
		return errors.Wrap(err, "bot discovery")
	}
	r.reconcile(ctx)
	r.notify.Flush(ctx)

	g.Go(func() error { return r.reconcileLoop(ctx) })
	g.Go(func() error { return r.statsLoop(ctx) })

	r.receiving.Store(true)
	r.health.SetReady(true)
	logger.Info("[RUNNER] receiving 3cqs signals")

	g.Go(func() error { return r.rankLoop(ctx) })
	return r.transport.Listen(ctx, r)
}

func (r *Runner) reportConfig() {
	logger.Info("[CONFIG] effective configuration (%s):\n%s", r.cfg.Source, r.cfg.Dump())

	r.notify.Notify("DCA settings:")
	names := []models.ProfileName{models.ProfileDefault}
	if r.cfg.Pulse.FgiTrading {
		names = append(names, models.SentimentProfiles...)
	}
	for _, name := range names {
		for _, line := range dca.Report(r.cfg.Profile(name), r.cfg.Bot.Single) {
			r.notify.Notify(line)
		}
	}
}

// fail: фатальное, в группу, остальное в лог.
func (r *Runner) fail(scope string, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, config.ErrFatalConfig) {
		select {
		case r.fatal <- errors.Wrap(err, scope):
		default:
		}
		return
	}
	logger.Error("[%s] %v", scope, err)
}
