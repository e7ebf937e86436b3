package runner

import (
	"context"
	"fmt"
	"strings"

	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
	elig "signal_bot/internal/modules/eligibility/service"
	"signal_bot/pkg/logger"
	"signal_bot/pkg/metrics"

	"github.com/pkg/errors"
)

// HandleMessage: входящие сообщения транспорта. Вызывается последовательно.
func (r *Runner) HandleMessage(ctx context.Context, msg models.Message) {
	if !r.receiving.Load() {
		logger.Debug("[SIGNAL] not receiving yet, message dropped")
		return
	}
	cond := r.cond.Snapshot()
	if !cond.SentimentAllowsTrading {
		logger.Debug("[SIGNAL] FGI does not allow trading, message dropped")
		return
	}
	defer r.notify.Flush(ctx)

	var (
		scope string
		err   error
	)
	switch {
	case msg.Signal != nil:
		scope = "SIGNAL"
		err = r.onSignal(ctx, *msg.Signal, cond)
	case msg.Ranks != nil:
		scope = "RANKS"
		_, err = r.machine.HandleRanks(ctx, msg.Ranks)
	default:
		return
	}
	r.fail(scope, err)
	if errors.Is(err, config.ErrFatalConfig) {
		return
	}
	// после каждого сигнала сводим условия сразу, не дожидаясь тика
	r.reconcile(ctx)
}

func (r *Runner) onSignal(ctx context.Context, sig models.Signal, cond models.TradingConditions) error {
	r.health.TouchSignal(r.now())
	verbose := r.cfg.General.ExtensiveNotifications
	r.inform(verbose, "'%s': %s signal for %s incoming...", sig.Kind, sig.Action, sig.Pair)

	active := r.machine.Active()
	d := elig.Evaluate(sig, cond, active, elig.NewParams(r.cfg, r.cfg.Profile(cond.ActiveProfile)))
	r.stats.Record(sig, d, active)
	metrics.SignalsTotal.WithLabelValues(string(sig.Action), outcome(d)).Inc()

	if !d.Accepted {
		r.inform(verbose, "%s signal for %s ignored: %s", sig.Action, sig.Pair, d.Reason)
		return nil
	}
	return r.machine.HandleSignal(ctx, sig)
}

// inform: в чат при extensive_notifications, иначе только в лог.
func (r *Runner) inform(verbose bool, format string, args ...any) {
	logger.Info("[SIGNAL] "+format, args...)
	if verbose {
		r.notify.Notify(fmt.Sprintf(format, args...))
	}
}

func outcome(d elig.Decision) string {
	if d.Accepted {
		return "accepted"
	}
	return strings.ReplaceAll(strings.ToLower(string(d.Reason)), " ", "_")
}
