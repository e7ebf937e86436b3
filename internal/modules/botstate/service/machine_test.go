package service

import (
	"context"
	"os"
	"slices"
	"sync"
	"testing"
	"time"

	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
	tc "signal_bot/internal/modules/threecommas/service"
	"signal_bot/internal/notify"
	"signal_bot/pkg/logger"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logger.InitNop()
	os.Exit(m.Run())
}

// fakeAPI: 3Commas в памяти. calls пишет только мутирующие вызовы.
type fakeAPI struct {
	mu       sync.Mutex
	bots     []models.Bot
	nextID   int64
	calls    []string
	payloads []tc.BotPayload
	fail     map[string]error
}

func newFakeAPI(bots ...models.Bot) *fakeAPI {
	return &fakeAPI{bots: bots, nextID: 100, fail: map[string]error{}}
}

func (f *fakeAPI) record(op string) error {
	f.calls = append(f.calls, op)
	return f.fail[op]
}

func (f *fakeAPI) find(id int64) *models.Bot {
	for i := range f.bots {
		if f.bots[i].ID == id {
			return &f.bots[i]
		}
	}
	return nil
}

func (f *fakeAPI) Bots(context.Context) ([]models.Bot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.bots), nil
}

func (f *fakeAPI) CreateBot(_ context.Context, p tc.BotPayload) (models.Bot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("create"); err != nil {
		return models.Bot{}, err
	}
	f.payloads = append(f.payloads, p)
	f.nextID++
	b := models.Bot{ID: f.nextID, Name: p.Name, Pairs: slices.Clone(p.Pairs), MaxActiveDeals: p.MaxActiveDeals}
	f.bots = append(f.bots, b)
	return b, nil
}

func (f *fakeAPI) UpdateBot(_ context.Context, id int64, p tc.BotPayload) (models.Bot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("update"); err != nil {
		return models.Bot{}, err
	}
	f.payloads = append(f.payloads, p)
	b := f.find(id)
	if b == nil {
		return models.Bot{}, errors.New("not found")
	}
	b.Name, b.Pairs, b.MaxActiveDeals = p.Name, slices.Clone(p.Pairs), p.MaxActiveDeals
	return *b, nil
}

func (f *fakeAPI) setEnabled(op string, id int64, v bool) (models.Bot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record(op); err != nil {
		return models.Bot{}, err
	}
	b := f.find(id)
	if b == nil {
		return models.Bot{}, errors.New("not found")
	}
	b.IsEnabled = v
	return *b, nil
}

func (f *fakeAPI) EnableBot(_ context.Context, id int64) (models.Bot, error) {
	return f.setEnabled("enable", id, true)
}

func (f *fakeAPI) DisableBot(_ context.Context, id int64) (models.Bot, error) {
	return f.setEnabled("disable", id, false)
}

func (f *fakeAPI) DeleteBot(_ context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.record("delete"); err != nil {
		return err
	}
	f.bots = slices.DeleteFunc(f.bots, func(b models.Bot) bool { return b.ID == id })
	return nil
}

func (f *fakeAPI) StartNewDeal(_ context.Context, _ int64, pair string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.record("start " + pair)
}

func (f *fakeAPI) ActiveDeals(context.Context, int64) ([]models.Deal, error) {
	return []models.Deal{{Pair: "USDT_ETH", CreatedAt: time.Now().Add(-time.Hour), BaseOrderVolume: 10}}, nil
}

func (f *fakeAPI) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

type fakeConditions struct{ c models.TradingConditions }

func (f *fakeConditions) Snapshot() models.TradingConditions { return f.c }

func tradeable(pairs ...string) *fakeConditions {
	c := models.DefaultConditions()
	for _, p := range pairs {
		c.Pairs[p] = struct{}{}
	}
	return &fakeConditions{c: c}
}

func testConfig(mut func(*config.Config)) *config.Config {
	cfg := &config.Config{
		Bot: config.Bot{Market: "USDT", SinglebotUpdate: true},
		Profiles: map[models.ProfileName]models.DcaProfile{
			models.ProfileDefault: {
				Name: models.ProfileDefault, Prefix: "3CQSBOT", Subprefix: "MULTI", Suffix: "TA",
				TakeProfit: 1.5, BaseOrder: 10, SafetyOrder: 20, VolumeScale: 1.05, StepScale: 1, SafetyOrderStep: 2.4,
				MaxSafetyOrders: 2, ActiveSafety: 1, MaxActiveDeals: 2, SameDealsPerPair: 1, SingleCount: 2,
				DealMode: models.DealModeSignal,
			},
		},
	}
	if mut != nil {
		mut(cfg)
	}
	return cfg
}

func newTestMachine(api BotAPI, cond Conditions, cfg *config.Config) (*Machine, *notify.Memory) {
	n := &notify.Memory{}
	m := NewMachine(api, nil, cond, cfg, n)
	m.pick = func(int) int { return 0 }
	m.sleep = func(context.Context, time.Duration) error { return nil }
	return m, n
}

func multiBot(enabled bool, active int, pairs ...string) models.Bot {
	return models.Bot{ID: 1, Name: "3CQSBOT_MULTI_TA", IsEnabled: enabled, Pairs: pairs, MaxActiveDeals: 2, ActiveDealsCount: active}
}

func TestSignalCreatesMultiBotAndTriggersOneDeal(t *testing.T) {
	api := newFakeAPI()
	m, _ := newTestMachine(api, tradeable("USDT_ETH", "USDT_BTC"), testConfig(nil))
	require.NoError(t, m.Init(t.Context(), models.Account{ID: 42}))

	err := m.HandleSignal(t.Context(), models.Signal{Pair: "USDT_ETH", Action: models.ActionStart})
	require.NoError(t, err)

	assert.Equal(t, []string{"create", "enable", "update", "start USDT_ETH"}, api.Calls())
	created := api.payloads[0]
	assert.Equal(t, []string{"USDT_ETH", "USDT_BTC"}, created.Pairs)
	assert.Equal(t, 2, created.MaxActiveDeals)
	assert.Equal(t, int64(42), created.AccountID)
	assert.Nil(t, created.DisableAfterDealsCount, "deals_count 0 is not sent on create")
	assert.True(t, m.Active())
}

func TestNoDealWhenCapacityReached(t *testing.T) {
	api := newFakeAPI(multiBot(true, 2, "USDT_ETH", "USDT_BTC"))
	m, n := newTestMachine(api, tradeable("USDT_ETH", "USDT_BTC", "USDT_SOL"), testConfig(nil))
	require.NoError(t, m.Init(t.Context(), models.Account{ID: 42}))
	require.True(t, m.Active())

	err := m.HandleSignal(t.Context(), models.Signal{Pair: "USDT_SOL", Action: models.ActionStart})
	require.NoError(t, err)

	assert.Equal(t, []string{"update", "update"}, api.Calls())
	assert.Equal(t, []string{"USDT_ETH", "USDT_BTC", "USDT_SOL"}, m.Bot().Pairs)
	assert.Contains(t, n.Messages, "Max active deals of 2 reached, not triggering a new one.")
}

func TestStopSignalKeepsPairInSignalMode(t *testing.T) {
	api := newFakeAPI(multiBot(true, 0, "USDT_ETH", "USDT_BTC"))
	m, _ := newTestMachine(api, tradeable("USDT_ETH", "USDT_BTC"), testConfig(nil))
	require.NoError(t, m.Init(t.Context(), models.Account{}))

	require.NoError(t, m.HandleSignal(t.Context(), models.Signal{Pair: "USDT_ETH", Action: models.ActionStop}))
	assert.Equal(t, []string{"USDT_ETH", "USDT_BTC"}, m.Bot().Pairs)
	assert.NotContains(t, api.Calls(), "start USDT_ETH")
}

func TestStopOfLastPairDisablesInsteadOfEmptyUpdate(t *testing.T) {
	cfg := testConfig(func(c *config.Config) {
		p := c.Profiles[models.ProfileDefault]
		p.DealMode = `[{"strategy":"nonstop"}]`
		c.Profiles[models.ProfileDefault] = p
	})
	api := newFakeAPI(multiBot(true, 0, "USDT_ETH"))
	m, n := newTestMachine(api, tradeable("USDT_ETH"), cfg)
	require.NoError(t, m.Init(t.Context(), models.Account{}))

	require.NoError(t, m.HandleSignal(t.Context(), models.Signal{Pair: "USDT_ETH", Action: models.ActionStop}))
	assert.Equal(t, []string{"disable"}, api.Calls())
	assert.Empty(t, api.payloads)
	assert.False(t, m.Active())
	assert.NotNil(t, m.Bot(), "mirror is kept")
	assert.Contains(t, n.Messages, noPairsLeft)
}

func TestReconcileIsIdempotent(t *testing.T) {
	api := newFakeAPI(multiBot(false, 0, "USDT_ETH", "USDT_BTC"))
	cond := tradeable("USDT_ETH", "USDT_BTC")
	m, _ := newTestMachine(api, cond, testConfig(nil))
	require.NoError(t, m.Init(t.Context(), models.Account{}))
	require.False(t, m.Active())

	require.NoError(t, m.Reconcile(t.Context()))
	assert.True(t, m.Active())
	after := len(api.Calls())

	require.NoError(t, m.Reconcile(t.Context()))
	assert.Len(t, api.Calls(), after, "second run changes nothing")

	cond.c.PriceTrendDowntrend = true
	require.NoError(t, m.Reconcile(t.Context()))
	require.NoError(t, m.Reconcile(t.Context()))
	assert.False(t, m.Active())
	assert.Equal(t, []string{"update", "enable", "disable"}, api.Calls())
}

func TestReconcileSkippedWithExternalSwitch(t *testing.T) {
	api := newFakeAPI(multiBot(false, 0, "USDT_ETH", "USDT_BTC"))
	m, _ := newTestMachine(api, tradeable(), testConfig(func(c *config.Config) { c.Bot.ExtBotswitch = true }))
	require.NoError(t, m.Init(t.Context(), models.Account{}))

	require.NoError(t, m.Reconcile(t.Context()))
	assert.Equal(t, []string{"update"}, api.Calls())
}

func TestInitFatalWithoutBotForSentimentProfiles(t *testing.T) {
	api := newFakeAPI()
	m, _ := newTestMachine(api, tradeable(), testConfig(func(c *config.Config) { c.Pulse.FgiTrading = true }))

	err := m.Init(t.Context(), models.Account{})
	require.ErrorIs(t, err, config.ErrFatalConfig)
}

func TestInitRenamesBotFoundByID(t *testing.T) {
	api := newFakeAPI(models.Bot{ID: 7, Name: "old name", Pairs: []string{"USDT_ETH"}, MaxActiveDeals: 5})
	m, n := newTestMachine(api, tradeable(), testConfig(func(c *config.Config) {
		p := c.Profiles[models.ProfileDefault]
		p.BotID = 7
		c.Profiles[models.ProfileDefault] = p
	}))
	require.NoError(t, m.Init(t.Context(), models.Account{}))

	require.Equal(t, []string{"update"}, api.Calls())
	assert.Equal(t, "3CQSBOT_MULTI_TA", api.payloads[0].Name)
	assert.Equal(t, 1, api.payloads[0].MaxActiveDeals, "mad lowered to pair count")
	assert.Equal(t, "3CQSBOT_MULTI_TA", m.Bot().Name)
	assert.Contains(t, n.Messages, "Renaming bot name from 'old name' to '3CQSBOT_MULTI_TA' (botid: 7)")
}

func TestRanksBuildMultiBotPairs(t *testing.T) {
	cfg := testConfig(func(c *config.Config) {
		p := c.Profiles[models.ProfileDefault]
		p.DealMode = `[{"strategy":"nonstop"}]`
		p.MaxActiveDeals = 3
		c.Profiles[models.ProfileDefault] = p
		c.Bot.RandomPair = true
	})
	api := newFakeAPI()
	m, _ := newTestMachine(api, tradeable("USDT_ETH", "USDT_SOL", "USDT_ADA"), cfg)
	require.NoError(t, m.Init(t.Context(), models.Account{}))
	assert.True(t, m.AwaitingRanks())

	used, err := m.HandleRanks(t.Context(), models.RankList{"ETH", "DOGE", "SOL", "ADA"})
	require.NoError(t, err)
	assert.True(t, used)
	assert.False(t, m.AwaitingRanks())

	assert.Equal(t, []string{"create", "enable", "start USDT_ETH"}, api.Calls())
	assert.Equal(t, []string{"USDT_ETH", "USDT_SOL", "USDT_ADA"}, api.payloads[0].Pairs)
	assert.Equal(t, []map[string]any{{"strategy": "nonstop"}}, api.payloads[0].StrategyList)

	used, err = m.HandleRanks(t.Context(), models.RankList{"ETH"})
	require.NoError(t, err)
	assert.False(t, used, "ranks only apply while awaited")
}

func TestRanksWithNothingTradeableDisablesBot(t *testing.T) {
	cfg := testConfig(func(c *config.Config) {
		p := c.Profiles[models.ProfileDefault]
		p.DealMode = `[{"strategy":"nonstop"}]`
		c.Profiles[models.ProfileDefault] = p
	})
	api := newFakeAPI(multiBot(true, 0))
	m, n := newTestMachine(api, tradeable(), cfg)
	require.NoError(t, m.Init(t.Context(), models.Account{}))

	_, err := m.HandleRanks(t.Context(), models.RankList{"DOGE"})
	require.NoError(t, err)
	assert.False(t, m.Active())
	assert.Equal(t, []string{"update", "disable"}, api.Calls())
	assert.Contains(t, n.Messages[len(n.Messages)-3], "No (filtered) pairs left")
}

func singleConfig(mut func(*config.Config)) *config.Config {
	return testConfig(func(c *config.Config) {
		c.Bot.Single = true
		c.Bot.DeleteSingleBots = true
		if mut != nil {
			mut(c)
		}
	})
}

func singleBot(id int64, pair string, enabled bool, deals int) models.Bot {
	return models.Bot{ID: id, Name: "3CQSBOT_MULTI_" + pair + "_TA", Pairs: []string{pair}, IsEnabled: enabled, ActiveDealsCount: deals}
}

func TestSingleStartCreatesAndEnables(t *testing.T) {
	api := newFakeAPI()
	m, _ := newTestMachine(api, tradeable("USDT_ETH"), singleConfig(nil))
	require.NoError(t, m.Init(t.Context(), models.Account{}))

	require.NoError(t, m.HandleSignal(t.Context(), models.Signal{Pair: "USDT_ETH", Action: models.ActionStart}))
	assert.Equal(t, []string{"create", "enable"}, api.Calls())
	assert.Equal(t, "3CQSBOT_MULTI_USDT_ETH_TA", api.payloads[0].Name)
	assert.Equal(t, []map[string]any{{"strategy": "nonstop"}}, api.payloads[0].StrategyList)
	assert.Zero(t, api.payloads[0].AllowedDealsOnSamePair)
	assert.True(t, m.Active())
}

func TestSingleCapacity(t *testing.T) {
	cases := []struct {
		name string
		bots []models.Bot
	}{
		{"enabled bots", []models.Bot{singleBot(1, "USDT_ADA", true, 0), singleBot(2, "USDT_SOL", true, 0)}},
		{"active deals", []models.Bot{singleBot(1, "USDT_ADA", true, 2)}},
		{"disabled with deals", []models.Bot{singleBot(1, "USDT_ADA", true, 0), singleBot(2, "USDT_SOL", false, 1)}},
	}
	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI(tt.bots...)
			m, _ := newTestMachine(api, tradeable("USDT_ETH"), singleConfig(nil))
			require.NoError(t, m.HandleSignal(t.Context(), models.Signal{Pair: "USDT_ETH", Action: models.ActionStart}))
			assert.Empty(t, api.Calls())
		})
	}
}

func TestSingleIgnoresForeignBots(t *testing.T) {
	api := newFakeAPI(
		models.Bot{ID: 1, Name: "OTHER_USDT_ADA_TA", IsEnabled: true},
		models.Bot{ID: 2, Name: "3CQSBOT_MULTI_USDT_SOL_TAX", IsEnabled: true},
	)
	m, _ := newTestMachine(api, tradeable("USDT_ETH"), singleConfig(nil))
	require.NoError(t, m.HandleSignal(t.Context(), models.Signal{Pair: "USDT_ETH", Action: models.ActionStart}))
	assert.Equal(t, []string{"create", "enable"}, api.Calls())
}

func TestSingleStop(t *testing.T) {
	t.Run("delete without deals", func(t *testing.T) {
		api := newFakeAPI(singleBot(1, "USDT_ETH", true, 0))
		m, _ := newTestMachine(api, tradeable(), singleConfig(nil))
		require.NoError(t, m.HandleSignal(t.Context(), models.Signal{Pair: "USDT_ETH", Action: models.ActionStop}))
		assert.Equal(t, []string{"delete"}, api.Calls())
	})
	t.Run("disable with deals", func(t *testing.T) {
		api := newFakeAPI(singleBot(1, "USDT_ETH", true, 1))
		m, _ := newTestMachine(api, tradeable(), singleConfig(nil))
		require.NoError(t, m.HandleSignal(t.Context(), models.Signal{Pair: "USDT_ETH", Action: models.ActionStop}))
		assert.Equal(t, []string{"disable"}, api.Calls())
	})
	t.Run("absent bot", func(t *testing.T) {
		api := newFakeAPI()
		m, _ := newTestMachine(api, tradeable(), singleConfig(nil))
		require.NoError(t, m.HandleSignal(t.Context(), models.Signal{Pair: "USDT_ETH", Action: models.ActionStop}))
		assert.Empty(t, api.Calls())
	})
}

func TestSingleEnableRefreshesChangedSettings(t *testing.T) {
	b := singleBot(1, "USDT_ETH", false, 0)
	api := newFakeAPI(b)
	m, _ := newTestMachine(api, tradeable(), singleConfig(nil))
	require.NoError(t, m.HandleSignal(t.Context(), models.Signal{Pair: "USDT_ETH", Action: models.ActionStart}))
	assert.Equal(t, []string{"update", "enable"}, api.Calls())

	b.Settings = m.profile().Settings()
	api = newFakeAPI(b)
	m, _ = newTestMachine(api, tradeable(), singleConfig(nil))
	require.NoError(t, m.HandleSignal(t.Context(), models.Signal{Pair: "USDT_ETH", Action: models.ActionStart}))
	assert.Equal(t, []string{"enable"}, api.Calls())
}

func TestDisableAllSingleCollectsErrors(t *testing.T) {
	api := newFakeAPI(singleBot(1, "USDT_ETH", true, 0), singleBot(2, "USDT_ADA", true, 0), singleBot(3, "USDT_SOL", false, 0))
	api.fail["disable"] = errors.New("boom")
	cond := tradeable()
	m, _ := newTestMachine(api, cond, singleConfig(nil))
	require.NoError(t, m.Reconcile(t.Context()))
	require.True(t, m.Active())

	cond.c.SentimentAllowsTrading = false
	err := m.Reconcile(t.Context())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "USDT_ETH")
	assert.Contains(t, err.Error(), "USDT_ADA")
	assert.Equal(t, []string{"disable", "disable"}, api.Calls())
	assert.False(t, m.Active())
}

func TestPayloadSendsDealsCountOnUpdate(t *testing.T) {
	m, _ := newTestMachine(newFakeAPI(), tradeable(), testConfig(func(c *config.Config) {
		c.Bot.TradeFuture = true
		c.Bot.LeverageType = "custom"
		c.Bot.LeverageValue = 3
	}))

	upd, err := m.payload("x", []string{"USDT_ETH"}, 1, false)
	require.NoError(t, err)
	require.NotNil(t, upd.DisableAfterDealsCount)
	assert.Equal(t, 0, *upd.DisableAfterDealsCount)
	assert.Equal(t, 1, upd.AllowedDealsOnSamePair)
	assert.Equal(t, "custom", upd.LeverageType)
	assert.Equal(t, 3.0, upd.LeverageCustomValue)

	again, err := m.payload("x", []string{"USDT_ETH"}, 1, false)
	require.NoError(t, err)
	assert.Equal(t, upd.String(), again.String())
}

func TestPayloadBadDealModeIsFatal(t *testing.T) {
	m, _ := newTestMachine(newFakeAPI(), tradeable(), testConfig(func(c *config.Config) {
		p := c.Profiles[models.ProfileDefault]
		p.DealMode = "nonsense"
		c.Profiles[models.ProfileDefault] = p
	}))
	_, err := m.payload("x", nil, 1, true)
	assert.ErrorIs(t, err, config.ErrFatalConfig)
}

func TestReport(t *testing.T) {
	api := newFakeAPI(multiBot(true, 1, "USDT_ETH", "USDT_BTC"))
	m, _ := newTestMachine(api, tradeable(), testConfig(nil))
	require.NoError(t, m.Init(t.Context(), models.Account{}))

	lines, err := m.Report(t.Context())
	require.NoError(t, err)
	require.Len(t, lines, 4)
	assert.Equal(t, "Deals active: 1/2", lines[0])
	assert.Contains(t, lines[3], "Deal USDT_ETH open since 1 hour")
	assert.Contains(t, lines[3], "Bought volume: $10")
}
