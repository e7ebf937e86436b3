package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Registry: свой реестр, чтобы /metrics не тянул глобальные дефолты в тестах.
	Registry = prometheus.NewRegistry()

	SignalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signal_bot",
		Name:      "signals_total",
		Help:      "Parsed 3CQS signals by action and filter outcome.",
	}, []string{"action", "outcome"})

	RemoteCallsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signal_bot",
		Name:      "remote_calls_total",
		Help:      "Calls to external APIs by endpoint and result.",
	}, []string{"endpoint", "result"})

	BotMutationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signal_bot",
		Name:      "bot_mutations_total",
		Help:      "Mutating bot operations (create, update, enable, disable, delete, deal).",
	}, []string{"op"})

	TradingAllowed = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "signal_bot",
		Name:      "trading_allowed",
		Help:      "1 when BTC pulse and FGI both allow trading.",
	})

	SentimentValue = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "signal_bot",
		Name:      "fgi_value",
		Help:      "Latest fear and greed index value.",
	})
)

func init() {
	Registry.MustRegister(SignalsTotal, RemoteCallsTotal, BotMutationsTotal, TradingAllowed, SentimentValue)
}

func Bool(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
