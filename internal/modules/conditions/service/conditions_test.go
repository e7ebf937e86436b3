package service

import (
	"context"
	"math"
	"testing"
	"time"

	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
	"signal_bot/internal/notify"
	"signal_bot/pkg/logger"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.InitNop()
	m.Run()
}

func TestEMAConstantSeries(t *testing.T) {
	data := make([]float64, 40)
	for i := range data {
		data[i] = 42
	}
	out := EMA(data, 9)
	require.Len(t, out, 40)
	for i := 0; i < 8; i++ {
		assert.True(t, math.IsNaN(out[i]))
	}
	for i := 8; i < 40; i++ {
		assert.InDelta(t, 42, out[i], 1e-12)
	}
}

func TestEMALagsMonotonicSeries(t *testing.T) {
	up := make([]float64, 60)
	down := make([]float64, 60)
	for i := range up {
		up[i] = float64(i + 1)
		down[i] = float64(100 - i)
	}
	upEMA := EMA(up, 20)
	downEMA := EMA(down, 20)
	for i := 20; i < 60; i++ {
		assert.Greater(t, upEMA[i], upEMA[i-1])
		assert.Less(t, upEMA[i], up[i])
		assert.Greater(t, downEMA[i], down[i])
	}
}

func TestEMASeedIsSimpleAverage(t *testing.T) {
	out := EMA([]float64{1, 2, 3, 4}, 3)
	assert.InDelta(t, 2, out[2], 1e-12)
	assert.InDelta(t, 4*0.5+2*0.5, out[3], 1e-12)
	assert.True(t, math.IsNaN(EMA([]float64{1}, 3)[0]))
}

func pulseConfig() config.Pulse {
	return config.Pulse{FgiPulse: true, FgiEmaFast: 9, FgiEmaSlow: 20, FgiTradeMin: 0, FgiTradeMax: 100}
}

func flat(n, v int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// rising: 0,1,2... без просадок, быстрая EMA выше медленной
func rising(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func TestEvaluateSentiment(t *testing.T) {
	t.Run("rising series allows trading", func(t *testing.T) {
		r, err := EvaluateSentiment(rising(30), pulseConfig(), true)
		require.NoError(t, err)
		assert.False(t, r.Downtrend)
		assert.False(t, r.Drop)
		assert.True(t, r.Allows)
	})
	t.Run("day over day drop", func(t *testing.T) {
		v := append(flat(29, 50), 40)
		r, err := EvaluateSentiment(v, pulseConfig(), true)
		require.NoError(t, err)
		assert.True(t, r.Drop)
		assert.False(t, r.Allows)
	})
	t.Run("two day drop", func(t *testing.T) {
		v := append(flat(28, 60), 52, 45)
		r, err := EvaluateSentiment(v, pulseConfig(), true)
		require.NoError(t, err)
		assert.True(t, r.Drop)
	})
	t.Run("downtrend blocks even inside the trade range", func(t *testing.T) {
		v := make([]int, 40)
		for i := range v {
			v[i] = 80 - i
		}
		r, err := EvaluateSentiment(v, pulseConfig(), true)
		require.NoError(t, err)
		assert.True(t, r.Downtrend)
		assert.False(t, r.Allows)
	})
	t.Run("outside trade range keeps allowed trading", func(t *testing.T) {
		p := pulseConfig()
		p.FgiTradeMin = 60
		r, err := EvaluateSentiment(rising(30), p, true)
		require.NoError(t, err)
		assert.False(t, r.InRange)
		assert.True(t, r.Allows)
	})
	t.Run("outside trade range blocks re-entry", func(t *testing.T) {
		p := pulseConfig()
		p.FgiTradeMin = 60
		r, err := EvaluateSentiment(rising(30), p, false)
		require.NoError(t, err)
		assert.False(t, r.Allows)
	})
	t.Run("inside trade range re-enters", func(t *testing.T) {
		r, err := EvaluateSentiment(rising(30), pulseConfig(), false)
		require.NoError(t, err)
		assert.True(t, r.InRange)
		assert.True(t, r.Allows)
	})
	t.Run("drop blocks allowed trading inside range", func(t *testing.T) {
		r, err := EvaluateSentiment(append(flat(29, 50), 40), pulseConfig(), true)
		require.NoError(t, err)
		assert.True(t, r.InRange)
		assert.False(t, r.Allows)
	})
	t.Run("no pulse never blocks", func(t *testing.T) {
		p := pulseConfig()
		p.FgiPulse = false
		v := append(flat(29, 50), 10)
		r, err := EvaluateSentiment(v, p, true)
		require.NoError(t, err)
		assert.True(t, r.Allows)
		assert.Equal(t, 10, r.Value)
	})
	t.Run("short series", func(t *testing.T) {
		_, err := EvaluateSentiment(flat(5, 50), pulseConfig(), true)
		assert.Error(t, err)
	})
}

func bandConfig() *config.Config {
	def := models.DcaProfile{Name: models.ProfileDefault, Configured: true}
	mk := func(name models.ProfileName, lo, hi int) models.DcaProfile {
		p := def
		p.Name, p.FgiMin, p.FgiMax = name, lo, hi
		return p
	}
	return &config.Config{Profiles: map[models.ProfileName]models.DcaProfile{
		models.ProfileDefault:    def,
		models.ProfileDefensive:  mk(models.ProfileDefensive, 0, 30),
		models.ProfileModerate:   mk(models.ProfileModerate, 31, 60),
		models.ProfileAggressive: mk(models.ProfileAggressive, 61, 100),
	}}
}

func TestSelectProfileBands(t *testing.T) {
	cfg := sentimentConfig()
	for fgi, want := range map[int]models.ProfileName{
		25: models.ProfileDefensive,
		31: models.ProfileModerate,
		60: models.ProfileModerate,
		99: models.ProfileAggressive,
	} {
		got, ok := SelectProfile(fgi, cfg)
		require.True(t, ok)
		assert.Equal(t, want, got, "fgi=%d", fgi)
	}
}

func TestSelectProfileFallsBackWhenUnconfigured(t *testing.T) {
	cfg := bandConfig()
	got, ok := SelectProfile(25, cfg)
	require.True(t, ok)
	assert.Equal(t, models.ProfileDefault, got)
}

func TestStateSnapshotAndReady(t *testing.T) {
	s := NewState(true)
	snap := s.Snapshot()
	assert.True(t, snap.PriceTrendDowntrend)
	assert.True(t, snap.SentimentAllowsTrading)

	select {
	case <-s.Ready(SourcePairs):
		t.Fatal("pairs must not be ready yet")
	default:
	}
	s.SetPairs(map[string]struct{}{"USDT_ABC": {}})
	require.NoError(t, s.Wait(t.Context(), SourcePairs))
	assert.True(t, s.Snapshot().Tradeable("USDT_ABC"))
	assert.False(t, snap.Tradeable("USDT_ABC"), "old snapshot keeps the old set")

	s.SetSentiment(SentimentUpdate{Value: 20, Allows: true, Drop: true})
	assert.False(t, s.Snapshot().SentimentAllowsTrading, "drop always blocks")

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.Error(t, s.Wait(ctx, SourcePrice))
}

type fakeSentiment struct {
	series models.SentimentSeries
	err    error
}

func (f *fakeSentiment) FearGreed(context.Context, int) (models.SentimentSeries, error) {
	return f.series, f.err
}

func sentimentConfig() *config.Config {
	cfg := bandConfig()
	for _, name := range models.SentimentProfiles {
		p := cfg.Profiles[name]
		p.Configured = true
		cfg.Profiles[name] = p
	}
	cfg.Pulse = pulseConfig()
	cfg.Pulse.FgiTrading = true
	cfg.Pulse.FgiRetryInterval = time.Hour
	return cfg
}

func TestSentimentTickPublishes(t *testing.T) {
	src := &fakeSentiment{series: models.SentimentSeries{Values: rising(30), TimeUntilUpdate: 8 * time.Hour}}
	state := NewState(false)
	s := NewSentiment(src, state, sentimentConfig(), &notify.Memory{})

	next := s.Tick(t.Context())
	assert.Equal(t, 8*time.Hour, next)
	snap := state.Snapshot()
	assert.Equal(t, 29, snap.SentimentValue)
	assert.True(t, snap.SentimentAllowsTrading)
	assert.Equal(t, models.ProfileDefensive, snap.ActiveProfile)
}

func TestSentimentTickBandOnlyGatesReentry(t *testing.T) {
	cfg := sentimentConfig()
	cfg.Pulse.FgiTradeMax = 20
	src := &fakeSentiment{series: models.SentimentSeries{Values: rising(30), TimeUntilUpdate: 8 * time.Hour}}
	state := NewState(false)
	s := NewSentiment(src, state, cfg, &notify.Memory{})

	s.Tick(t.Context())
	assert.True(t, state.Snapshot().SentimentAllowsTrading, "fresh start above the band keeps trading")

	src.series.Values = append(flat(29, 50), 30)
	s.Tick(t.Context())
	require.False(t, state.Snapshot().SentimentAllowsTrading)

	src.series.Values = append(flat(29, 30), 30)
	s.Tick(t.Context())
	assert.False(t, state.Snapshot().SentimentAllowsTrading, "FGI 30 is outside [0..20]")

	src.series.Values = append(flat(29, 15), 15)
	s.Tick(t.Context())
	assert.True(t, state.Snapshot().SentimentAllowsTrading)
}

func TestSentimentTickSkipsImminentUpdate(t *testing.T) {
	src := &fakeSentiment{series: models.SentimentSeries{Values: flat(30, 25), TimeUntilUpdate: 5 * time.Second}}
	state := NewState(false)
	s := NewSentiment(src, state, sentimentConfig(), &notify.Memory{})

	assert.Equal(t, 5*time.Second, s.Tick(t.Context()))
	assert.Equal(t, -1, state.Snapshot().SentimentValue)

	src.series.TimeUntilUpdate = -time.Second
	assert.Equal(t, 10*time.Second, s.Tick(t.Context()))
}

func TestSentimentTickFailureUsesFallback(t *testing.T) {
	state := NewState(false)
	s := NewSentiment(&fakeSentiment{err: errors.New("down")}, state, sentimentConfig(), &notify.Memory{})
	assert.Equal(t, time.Hour, s.Tick(t.Context()))
	assert.True(t, state.Snapshot().SentimentAllowsTrading)
}

type fakeCandles struct {
	series [][]float64
	calls  int
}

func (f *fakeCandles) Closes(context.Context, string, string, int) ([]float64, error) {
	out := f.series[min(f.calls, len(f.series)-1)]
	f.calls++
	return out, nil
}

func dipSeries() []float64 {
	s := make([]float64, 0, 72)
	for i := 0; i < 69; i++ {
		s = append(s, 100)
	}
	return append(s, 99, 98.5, 98)
}

func crossSeries() []float64 {
	s := make([]float64, 0, 72)
	for i := 0; i < 71; i++ {
		s = append(s, float64(200-i))
	}
	return append(s, 400)
}

func risingSeries() []float64 {
	s := make([]float64, 72)
	for i := range s {
		s[i] = 100 + float64(i)
	}
	return s
}

func newTestPriceTrend(src CandleSource, state *State) (*PriceTrend, *[]time.Duration) {
	var slept []time.Duration
	p := NewPriceTrend(src, state, &config.Config{Pulse: config.Pulse{BtcSymbol: "BTCUSDT", BtcInterval: 5 * time.Minute}}, &notify.Memory{})
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		// на паузе подтверждения флаг уже должен стоять
		if !state.Snapshot().PriceTrendDowntrend {
			return errors.New("downtrend flag is not set during confirmation")
		}
		return nil
	}
	return p, &slept
}

func TestPriceTrendGoldenCrossClearsDip(t *testing.T) {
	trend, err := AnalyzeCloses(dipSeries())
	require.NoError(t, err)
	assert.Less(t, trend.Change15m, -2.0)
	assert.True(t, trend.Dip())

	cross, err := AnalyzeCloses(crossSeries())
	require.NoError(t, err)
	assert.True(t, cross.GoldenCross())

	state := NewState(false)
	src := &fakeCandles{series: [][]float64{dipSeries(), crossSeries()}}
	p, slept := newTestPriceTrend(src, state)

	next := p.Tick(t.Context())
	assert.Equal(t, 5*time.Minute, next)
	assert.Equal(t, []time.Duration{5 * time.Minute}, *slept)
	assert.Equal(t, 2, src.calls)
	assert.False(t, state.Snapshot().PriceTrendDowntrend)
}

func TestPriceTrendDipWithoutCrossStaysDown(t *testing.T) {
	state := NewState(false)
	p, _ := newTestPriceTrend(&fakeCandles{series: [][]float64{dipSeries(), dipSeries()}}, state)
	p.Tick(t.Context())
	assert.True(t, state.Snapshot().PriceTrendDowntrend)
}

func TestPriceTrendUptrendClearsFlag(t *testing.T) {
	state := NewState(true)
	src := &fakeCandles{series: [][]float64{risingSeries()}}
	p, slept := newTestPriceTrend(src, state)
	p.Tick(t.Context())
	assert.False(t, state.Snapshot().PriceTrendDowntrend)
	assert.Empty(t, *slept)
	assert.Equal(t, 1, src.calls)
}

func TestAnalyzeClosesNeedsHistory(t *testing.T) {
	_, err := AnalyzeCloses(make([]float64, 50))
	assert.Error(t, err)
}

type fakePairs struct {
	market    []string
	blacklist []string
	err       error
}

func (f fakePairs) MarketPairs(context.Context, string) ([]string, error) { return f.market, f.err }
func (f fakePairs) BlacklistedPairs(context.Context) ([]string, error)    { return f.blacklist, nil }

func TestPairsRefresh(t *testing.T) {
	cfg := &config.Config{
		Bot:    config.Bot{Market: "USDT"},
		Filter: config.Filter{TokenDenylist: []string{"USDT_DENY"}},
		Pulse:  config.Pulse{PairsInterval: 6 * time.Hour},
	}
	src := fakePairs{
		market:    []string{"USDT_ABC", "USDT_DENY", "USDT_BAN", "BTC_ABC", "BUSD_USDT"},
		blacklist: []string{"USDT_BAN"},
	}
	state := NewState(false)
	n, err := NewPairs(src, state, cfg, &notify.Memory{}).Refresh(t.Context(), "binance")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, map[string]struct{}{"USDT_ABC": {}}, state.Snapshot().Pairs)
}

func TestPairsFailureRetriesSoon(t *testing.T) {
	cfg := &config.Config{
		Bot:   config.Bot{Market: "USDT"},
		Pulse: config.Pulse{PairsInterval: 6 * time.Hour, PairsRetry: time.Minute},
	}
	state := NewState(false)
	p := NewPairs(fakePairs{err: errors.New("502 bad gateway")}, state, cfg, &notify.Memory{})

	var slept []time.Duration
	p.sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return context.Canceled
	}
	require.NoError(t, p.Run(t.Context(), "binance"))
	assert.Equal(t, []time.Duration{time.Minute}, slept)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()
	assert.Error(t, state.Wait(ctx, SourcePairs), "pairs never loaded")

	p.src = fakePairs{market: []string{"USDT_ABC"}}
	assert.Equal(t, 6*time.Hour, p.Tick(t.Context(), "binance"))
	require.NoError(t, state.Wait(t.Context(), SourcePairs))
}
