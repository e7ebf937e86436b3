package health

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"signal_bot/internal/models"
	"signal_bot/internal/modules/health/service"
	"signal_bot/pkg/metrics"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshot struct{ c models.TradingConditions }

func (f fakeSnapshot) Snapshot() models.TradingConditions { return f.c }

type fakeBot bool

func (f fakeBot) Active() bool { return bool(f) }

func get(t *testing.T, mux http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestReadyz(t *testing.T) {
	state := service.NewState()
	mux := NewMux(state, fakeSnapshot{c: models.DefaultConditions()}, fakeBot(false))

	assert.Equal(t, http.StatusOK, get(t, mux, "/livez").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get(t, mux, "/readyz").Code)

	state.SetReady(true)
	assert.Equal(t, http.StatusOK, get(t, mux, "/readyz").Code)
}

func TestHealthzReportsConditions(t *testing.T) {
	state := service.NewState()
	state.TouchReconcile(time.Unix(1700000000, 0))
	c := models.DefaultConditions()
	c.SentimentValue = 42
	c.PriceTrendDowntrend = true
	c.Pairs["USDT_ETH"] = struct{}{}
	mux := NewMux(state, fakeSnapshot{c: c}, fakeBot(true))

	rec := get(t, mux, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["botActive"])
	assert.Equal(t, false, body["tradingAllowed"])
	assert.EqualValues(t, 42, body["fgi"])
	assert.EqualValues(t, 1, body["tradeablePairs"])
	assert.EqualValues(t, 1700000000, body["lastReconcileUnix"])
	assert.EqualValues(t, 0, body["lastSignalUnix"])
}

func TestMetricsEndpoint(t *testing.T) {
	metrics.SignalsTotal.WithLabelValues("START", "accepted").Inc()
	mux := NewMux(service.NewState(), fakeSnapshot{c: models.DefaultConditions()}, fakeBot(false))

	rec := get(t, mux, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `signal_bot_signals_total{action="START",outcome="accepted"}`)
}
