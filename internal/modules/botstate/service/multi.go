package service

import (
	"context"
	"fmt"
	"slices"

	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
	dca "signal_bot/internal/modules/dca/service"
	"signal_bot/pkg/logger"

	"github.com/pkg/errors"
)

// DealResult: исход попытки открыть сделку.
type DealResult int

const (
	DealNoPair DealResult = iota
	DealTriggered
	DealCapacityReached
	DealFailed
)

func (r DealResult) String() string {
	switch r {
	case DealTriggered:
		return "triggered"
	case DealCapacityReached:
		return "capacity reached"
	case DealFailed:
		return "failed"
	}
	return "no pair"
}

// searchRename ищет мультибот сначала по botid, потом по имени, и сразу
// обновляет найденный (с переименованием, если имя не совпадает).
func (m *Machine) searchRename(ctx context.Context) error {
	p := m.profile()
	name := p.BotName()
	botID := m.cfg.Profile(models.ProfileDefault).BotID

	bots, err := m.api.Bots(ctx)
	if err != nil {
		return errors.Wrap(err, "list bots")
	}

	var found *models.Bot
	if botID != 0 {
		logger.Info("[BOT] searching for multi bot with botid %d", botID)
		for i := range bots {
			if bots[i].ID == botID {
				found = &bots[i]
				break
			}
		}
		if found == nil {
			logger.Info("[BOT] multi bot not found with botid %d", botID)
		} else if found.Name != name {
			m.notify.Notify(fmt.Sprintf("Renaming bot name from '%s' to '%s' (botid: %d)", found.Name, name, found.ID))
		}
	}
	if found == nil {
		logger.Info("[BOT] searching for multi bot with name '%s'", name)
		for i := range bots {
			if bots[i].Name == name {
				found = &bots[i]
				break
			}
		}
	}

	if found == nil {
		if m.cfg.Pulse.FgiTrading && botID == 0 {
			return errors.Wrapf(config.ErrFatalConfig,
				"no botid set in [dcabot] and no bot '%s' found on 3commas. FGI adapted DCA settings are only applied to an existing bot: "+
					"create one manually on 3commas, leave it disabled and put its id into [dcabot] botid", name)
		}
		logger.Info("[BOT] multi bot '%s' not found", name)
		m.multi = nil
		return nil
	}

	logger.Info("[BOT] multi bot '%s' with botid %d found", found.Name, found.ID)
	pairs := slices.Clone(found.Pairs)
	body, err := m.payload(name, pairs, m.adjustMad(len(pairs)), false)
	if err != nil {
		return err
	}
	updated, err := m.api.UpdateBot(ctx, found.ID, body)
	if err != nil {
		// листинг тоже ответ сервера, им и пользуемся
		logger.Error("[BOT] status update of %d failed: %v", found.ID, err)
		m.multi = found.Clone()
		return nil
	}
	m.multi = &updated
	return nil
}

const noPairsLeft = "No (filtered) pairs left for multi bot. Either weak market phase or symrank/topcoin filter too strict. Bot will be disabled to wait for better times"

func (m *Machine) ensureMulti(ctx context.Context) (*models.Bot, error) {
	if m.multi == nil {
		if err := m.searchRename(ctx); err != nil {
			return nil, err
		}
	}
	return m.multi, nil
}

func (m *Machine) enableMulti(ctx context.Context) error {
	b, err := m.ensureMulti(ctx)
	if err != nil {
		return err
	}
	if b == nil {
		logger.Info("[BOT] '%s' not found to enable", m.profile().BotName())
		return nil
	}
	if b.IsEnabled {
		logger.Info("[BOT] '%s' (botid: %d) already enabled", b.Name, b.ID)
		m.active.Store(true)
		return nil
	}

	m.notify.Notify(fmt.Sprintf("Enabling bot: %s (botid: %d)", b.Name, b.ID))
	updated, err := m.api.EnableBot(ctx, b.ID)
	if err != nil {
		m.multi = nil
		return errors.Wrapf(err, "enable bot %d", b.ID)
	}
	m.multi = &updated
	m.active.Store(updated.IsEnabled)
	m.notify.Notify("Enabling successful")
	return nil
}

func (m *Machine) disableMulti(ctx context.Context) error {
	b, err := m.ensureMulti(ctx)
	if err != nil {
		return err
	}
	if b == nil {
		logger.Info("[BOT] '%s' not found to disable", m.profile().BotName())
		m.active.Store(false)
		return nil
	}
	if !b.IsEnabled {
		logger.Info("[BOT] '%s' (botid: %d) already disabled", b.Name, b.ID)
		m.active.Store(false)
		return nil
	}

	m.notify.Notify(fmt.Sprintf("Disabling bot: %s (botid: %d)", b.Name, b.ID))
	updated, err := m.api.DisableBot(ctx, b.ID)
	if err != nil {
		m.multi = nil
		return errors.Wrapf(err, "disable bot %d", b.ID)
	}
	m.multi = &updated
	m.active.Store(updated.IsEnabled)
	m.notify.Notify("Disabling successful")
	return nil
}

// enableAfterMutation включает бот после create/update, если условия позволяют и внешнего свитча нет.
func (m *Machine) enableAfterMutation(ctx context.Context) error {
	if m.cfg.Bot.ExtBotswitch {
		m.notify.Notify("ext_botswitch set to true, bot enabling/disabling has to be managed by an external signal")
		return nil
	}
	if !m.cond.Snapshot().ShouldTrade() {
		return nil
	}
	return m.enableMulti(ctx)
}

// newDeal: ручной старт сделки. Пустая pair, случайная пара бота при random_pair.
// При исчерпанном лимите сделок в 3Commas не ходим.
func (m *Machine) newDeal(ctx context.Context, pair string) DealResult {
	b := m.multi
	if b == nil {
		return DealNoPair
	}
	if pair == "" {
		if !m.cfg.Bot.RandomPair || len(b.Pairs) == 0 {
			return DealNoPair
		}
		pair = b.Pairs[m.pick(len(b.Pairs))]
		logger.Info("[BOT] %s is the randomly chosen pair to start", pair)
	}
	if b.ActiveDealsCount >= b.MaxActiveDeals {
		if b.MaxActiveDeals == m.profile().MaxActiveDeals {
			m.notify.Notify(fmt.Sprintf("Max active deals of %d reached, not triggering a new one.", b.MaxActiveDeals))
		} else {
			logger.Info("[BOT] deal with %s already active, not triggering a new one", pair)
		}
		return DealCapacityReached
	}

	if err := m.api.StartNewDeal(ctx, b.ID, pair); err != nil {
		m.notify.Notify(fmt.Sprintf("Triggering new deal for pair %s - unsuccessful", pair))
		logger.Error("[BOT] start deal %s on %d: %v", pair, b.ID, err)
		return DealFailed
	}
	m.notify.Notify(fmt.Sprintf("Triggering new deal for pair %s - successful", pair))
	// настоящий счётчик придёт со следующим ответом сервера
	b.ActiveDealsCount++
	return DealTriggered
}

// createMulti создаёт или обновляет мультибот: в signal-режиме из пары сигнала, иначе из ranks.
func (m *Machine) createMulti(ctx context.Context, sig *models.Signal, ranks models.RankList) error {
	p := m.profile()
	signalMode := p.SignalDriven()
	cond := m.cond.Snapshot()

	if _, err := m.ensureMulti(ctx); err != nil {
		return err
	}
	var pairs []string
	if m.multi != nil {
		pairs = slices.Clone(m.multi.Pairs)
	}

	var candidates []string
	if signalMode && sig != nil {
		candidates = []string{sig.Pair}
	} else {
		for _, sym := range ranks {
			candidates = append(candidates, m.cfg.Bot.Market+"_"+sym)
		}
	}

	candidates, err := m.topcoins(ctx, candidates)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		logger.Info("[BOT] no pair(s) left after topcoin filter")
		return nil
	}

	for _, pair := range candidates {
		switch {
		case slices.Contains(pairs, pair):
			logger.Info("[BOT] %s is already included in the pair list", pair)
		case cond.Tradeable(pair):
			pairs = append(pairs, pair)
		default:
			logger.Info("[BOT] %s not included: blacklisted, in token_denylist or not tradeable on '%s'", pair, m.cfg.ThreeCommas.AccountName)
		}
	}

	if m.cfg.Bot.LimitInitialPairs {
		maxPairs := min(len(pairs), p.MaxActiveDeals)
		if p.MaxActiveDeals == 1 {
			maxPairs = min(len(pairs), 1)
		}
		pairs = pairs[:maxPairs]
	}

	mad := m.adjustMad(len(pairs))
	if !signalMode {
		m.notify.Notify(fmt.Sprintf("%d out of %d symrank pairs selected %v. Maximum active deals (mad) set to %d out of %d",
			len(pairs), len(ranks), pairs, mad, p.MaxActiveDeals))
	}

	name := p.BotName()
	switch {
	case mad == 0:
		m.notify.Notify(noPairsLeft)
		return m.disableMulti(ctx)

	case m.multi == nil:
		m.notify.Notify(fmt.Sprintf("Creating multi bot '%s'", name))
		m.reportFunds(p)
		// мультипарному боту нужно минимум две пары
		if mad == 1 {
			extra := m.cfg.Bot.Market + "_BTC"
			pairs = append(pairs, extra)
			m.notify.Notify(fmt.Sprintf("For creating a multipair bot at least 2 pairs needed, adding %s to signal pair %s", extra, pairs[0]))
			mad = 2
		}
		body, err := m.payload(name, pairs, mad, true)
		if err != nil {
			return err
		}
		created, err := m.api.CreateBot(ctx, body)
		if err != nil {
			return errors.Wrapf(err, "create bot %s", name)
		}
		m.multi = &created
		if err := m.enableAfterMutation(ctx); err != nil {
			return err
		}
		// в signal-режиме сделку откроет trigger по той же паре
		if !signalMode {
			m.newDeal(ctx, "")
		}
		return nil

	default:
		m.notify.Notify(fmt.Sprintf("Updating multi bot '%s' (botid: %d) with filtered pair(s)", m.multi.Name, m.multi.ID))
		m.reportFunds(p)
		body, err := m.payload(name, pairs, mad, false)
		if err != nil {
			return err
		}
		updated, err := m.api.UpdateBot(ctx, m.multi.ID, body)
		if err != nil {
			id := m.multi.ID
			m.multi = nil
			return errors.Wrapf(err, "update bot %d", id)
		}
		m.multi = &updated
		return m.enableAfterMutation(ctx)
	}
}

// triggerMulti: START добавляет пару, STOP убирает (кроме signal-режима), затем всегда update.
func (m *Machine) triggerMulti(ctx context.Context, sig models.Signal) error {
	if !m.active.Load() && !m.cfg.Bot.ContinuousUpdate {
		return nil
	}
	p := m.profile()
	signalMode := p.SignalDriven()
	b := m.multi.Clone()
	pair := sig.Pair

	if !m.active.Load() {
		logger.Info("[BOT] continuous update active for disabled bot")
	} else {
		logger.Info("[BOT] got new 3cqs %s signal for %s", sig.Action, pair)
	}

	switch sig.Action {
	case models.ActionStart:
		passed, err := m.signalPassesTopcoins(ctx, pair)
		if err != nil {
			return err
		}
		switch {
		case !passed:
			logger.Info("[BOT] %s is not in the top coin list - not added", pair)
			pair = ""
		case b.HasPair(pair):
			logger.Info("[BOT] %s is already included in the pair list", pair)
		default:
			b.Pairs = append(b.Pairs, pair)
			m.notify.Notify("Adding " + pair)
		}
	case models.ActionStop:
		switch {
		case signalMode:
			logger.Info("[BOT] %s not removed from pair list because deal_mode is 'signal'", pair)
		case b.HasPair(pair):
			b.Pairs = slices.DeleteFunc(b.Pairs, func(s string) bool { return s == pair })
			m.notify.Notify("Removing " + pair)
		default:
			logger.Info("[BOT] %s not removed because it was not in the pair list", pair)
		}
		pair = ""
	}

	// пустой список пар 3Commas не примет
	if len(b.Pairs) == 0 {
		m.notify.Notify(noPairsLeft)
		return m.disableMulti(ctx)
	}

	mad := m.adjustMad(len(b.Pairs))
	if mad > b.MaxActiveDeals {
		m.notify.Notify(fmt.Sprintf("Adjusting mad to: %d", mad))
	}

	// update шлём всегда, ответ заодно обновляет счётчики сделок
	body, err := m.payload(p.BotName(), b.Pairs, mad, false)
	if err != nil {
		return err
	}
	updated, err := m.api.UpdateBot(ctx, b.ID, body)
	if err != nil {
		m.multi = nil
		return errors.Wrapf(err, "update bot %d", b.ID)
	}
	m.multi = &updated

	if pair != "" && signalMode && m.active.Load() {
		if m.newDeal(ctx, pair) == DealTriggered {
			m.reportMultiDeals(ctx)
		}
	}
	return nil
}

func (m *Machine) reportFunds(p models.DcaProfile) {
	for _, line := range dca.Report(p, m.cfg.Bot.Single) {
		m.notify.Notify(line)
	}
}
