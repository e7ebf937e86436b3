package runner

import (
	"context"
	"strings"
	"time"

	dca "signal_bot/internal/modules/dca/service"
	"signal_bot/pkg/logger"
	"signal_bot/pkg/metrics"

	"github.com/dustin/go-humanize"
)

func (r *Runner) reconcile(ctx context.Context) {
	metrics.TradingAllowed.Set(metrics.Bool(r.cond.Snapshot().ShouldTrade()))
	r.fail("RECONCILE", r.machine.Reconcile(ctx))
	r.health.TouchReconcile(r.now())
}

// reconcileLoop сводит условия с ботами каждые reconcile_interval.
func (r *Runner) reconcileLoop(ctx context.Context) error {
	interval := r.cfg.Pulse.ReconcileInterval
	for {
		if err := r.sleep(ctx, interval); err != nil {
			return nil
		}
		r.reconcile(ctx)
		r.notify.Flush(ctx)
	}
}

// rankLoop просит /symrank, пока мультибот ждёт top30.
func (r *Runner) rankLoop(ctx context.Context) error {
	for {
		if r.machine.AwaitingRanks() {
			if err := r.transport.RequestRanks(ctx); err != nil {
				logger.Error("[RANKS] %v", err)
			}
		}
		if err := r.sleep(ctx, r.cfg.Pulse.SymrankRetry); err != nil {
			return nil
		}
	}
}

// statsLoop: отчёт сразу после старта и дальше каждую полночь по general.timezone.
func (r *Runner) statsLoop(ctx context.Context) error {
	loc, err := time.LoadLocation(r.cfg.General.Timezone)
	if err != nil {
		logger.Warn("[STATS] timezone '%s': %v, using local time", r.cfg.General.Timezone, err)
		loc = time.Local
	}
	for {
		now := r.now()
		next := nextMidnight(now, loc)
		r.reportStats(ctx, now, next)
		r.notify.Flush(ctx)
		// +1s, чтобы проснуться уже после полуночи
		if err := r.sleep(ctx, next.Sub(now)+time.Second); err != nil {
			return nil
		}
	}
}

func (r *Runner) reportStats(ctx context.Context, now, next time.Time) {
	r.notify.Notify("********** Signal & Bot statistics **********")
	r.notify.Notify("Running since " + strings.TrimSpace(humanize.RelTime(r.stats.startedAt, now, "", "")))
	for _, line := range r.stats.Rotate(now, r.cfg.Filter.SymrankSignal, r.machine.TopcoinPassed()) {
		r.notify.Notify(line)
	}

	r.notify.Notify("Actual DCA bot setting:")
	for _, line := range dca.Report(r.cfg.Profile(r.cond.Snapshot().ActiveProfile), r.cfg.Bot.Single) {
		r.notify.Notify(line)
	}

	lines, err := r.machine.Report(ctx)
	if err != nil {
		logger.Error("[STATS] deals report: %v", err)
	}
	for _, line := range lines {
		r.notify.Notify(line)
	}

	r.notify.Notify("Next statistics update in approx. " + strings.TrimSpace(humanize.RelTime(now, next, "", "")))
	r.notify.Notify("********** End of statistics reporting **********")
}
