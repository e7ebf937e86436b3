package health

import (
	"context"
	"net"
	"net/http"
	"time"

	"signal_bot/internal/models"
	botsvc "signal_bot/internal/modules/botstate/service"
	condsvc "signal_bot/internal/modules/conditions/service"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/modules/health/service"
	"signal_bot/pkg/logger"
	"signal_bot/pkg/metrics"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

// Snapshot: источник условий торговли для /healthz.
type Snapshot interface {
	Snapshot() models.TradingConditions
}

// BotStatus: флаг активности ботов для /healthz.
type BotStatus interface {
	Active() bool
}

func NewMux(state *service.State, cond Snapshot, bot BotStatus) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/livez", func(w http.ResponseWriter, r *http.Request) {
		// процесс жив
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		// готов, когда открыт приём сигналов
		if !state.Ready() {
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		c := cond.Snapshot()
		resp := map[string]any{
			"ready":             state.Ready(),
			"uptimeSec":         int64(state.Uptime().Seconds()),
			"botActive":         bot.Active(),
			"tradingAllowed":    c.ShouldTrade(),
			"fgi":               c.SentimentValue,
			"fgiAllows":         c.SentimentAllowsTrading,
			"btcDowntrend":      c.PriceTrendDowntrend,
			"profile":           c.ActiveProfile,
			"tradeablePairs":    len(c.Pairs),
			"lastSignalUnix":    unix(state.LastSignal()),
			"lastReconcileUnix": unix(state.LastReconcile()),
		}
		body, err := sonic.Marshal(resp)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(body)
	})

	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	return mux
}

func unix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func RunHTTP(lc fx.Lifecycle, cfg *config.Config, mux *http.ServeMux) {
	if !cfg.Health.Enabled {
		return
	}
	srv := &http.Server{
		Addr:              cfg.Health.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ln, err := net.Listen("tcp", cfg.Health.Addr)
			if err != nil {
				return err
			}
			logger.Info("[HEALTH] listening on %s", ln.Addr())
			go func() { _ = srv.Serve(ln) }()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func Module() fx.Option {
	return fx.Module("health",
		fx.Provide(
			service.NewState,
			fx.Annotate(identity[*condsvc.State], fx.As(new(Snapshot))),
			fx.Annotate(identity[*botsvc.Machine], fx.As(new(BotStatus))),
			NewMux,
		),
		fx.Invoke(RunHTTP),
	)
}

func identity[T any](v T) T { return v }
