package service

import (
	"context"
	"fmt"
	"regexp"

	"signal_bot/internal/models"
	"signal_bot/pkg/logger"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// singlePattern: prefix_subprefix_MARKET…_suffix, все синглботы этого инстанса.
func (m *Machine) singlePattern() *regexp.Regexp {
	p := m.cfg.Profile(models.ProfileDefault)
	return regexp.MustCompile("^" + regexp.QuoteMeta(p.Prefix+"_"+p.Subprefix+"_"+m.cfg.Bot.Market) +
		"(.*)" + regexp.QuoteMeta("_"+p.Suffix) + "$")
}

// singleName: prefix_subprefix_PAIR_suffix.
func (m *Machine) singleName(pair string) string {
	p := m.cfg.Profile(models.ProfileDefault)
	return p.Prefix + "_" + p.Subprefix + "_" + pair + "_" + p.Suffix
}

type singleCounts struct {
	enabled           int
	deals             int
	disabledWithDeals int
}

func (m *Machine) singleBots(ctx context.Context) ([]models.Bot, error) {
	all, err := m.api.Bots(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list bots")
	}
	re := m.singlePattern()
	mine := all[:0:0]
	for _, b := range all {
		if re.MatchString(b.Name) {
			mine = append(mine, b)
		}
	}
	return mine, nil
}

func countSingles(bots []models.Bot) singleCounts {
	var c singleCounts
	for _, b := range bots {
		c.deals += b.ActiveDealsCount
		switch {
		case b.IsEnabled:
			c.enabled++
		case b.ActiveDealsCount > 0:
			c.disabledWithDeals++
		}
	}
	return c
}

// blocked: причина отказа по лимитам single_count, пусто если лимиты не мешают.
func (c singleCounts) blocked(limit int) string {
	switch {
	case c.enabled >= limit:
		return fmt.Sprintf("maximum enabled bots of %d reached", limit)
	case c.deals >= limit:
		return fmt.Sprintf("maximum active deals of %d reached", limit)
	case c.enabled+c.disabledWithDeals >= limit:
		return fmt.Sprintf("last enabled bot can potentially reach max deals of %d", limit)
	}
	return ""
}

func (m *Machine) triggerSingle(ctx context.Context, sig models.Signal) error {
	bots, err := m.singleBots(ctx)
	if err != nil {
		return err
	}
	limit := m.profile().SingleCount
	counts := countSingles(bots)

	name := m.singleName(sig.Pair)
	var existing *models.Bot
	for i := range bots {
		if bots[i].Name == name {
			existing = &bots[i]
			break
		}
	}

	if existing == nil {
		if sig.Action == models.ActionStop {
			logger.Info("[SINGLE] stop command on non-existing single bot for pair %s ignored", sig.Pair)
			return nil
		}
		if reason := counts.blocked(limit); reason != "" {
			logger.Info("[SINGLE] single bot with %s not created: %s", sig.Pair, reason)
			return nil
		}
		passed, err := m.signalPassesTopcoins(ctx, sig.Pair)
		if err != nil {
			return err
		}
		if !passed {
			logger.Info("[SINGLE] pair %s is not in the top coin list - not added", sig.Pair)
			return nil
		}
		return m.createSingle(ctx, sig.Pair)
	}

	if sig.Action == models.ActionStop {
		return m.stopSingle(ctx, *existing)
	}
	if existing.IsEnabled {
		logger.Info("[SINGLE] %s already enabled", existing.Name)
		return nil
	}
	if reason := counts.blocked(limit); reason != "" {
		logger.Info("[SINGLE] %s not enabled: %s", existing.Name, reason)
		return nil
	}
	return m.enableSingle(ctx, *existing)
}

func (m *Machine) createSingle(ctx context.Context, pair string) error {
	p := m.profile()
	name := m.singleName(pair)
	body, err := m.payload(name, []string{pair}, p.MaxActiveDeals, true)
	if err != nil {
		return err
	}
	created, err := m.api.CreateBot(ctx, body)
	if err != nil {
		return errors.Wrapf(err, "create single bot %s", name)
	}
	m.notify.Notify(fmt.Sprintf("Creating single bot with pair %s and name %s.", pair, created.Name))
	m.reportFunds(p)

	if err := m.sleep(ctx, m.settle); err != nil {
		return err
	}
	// только что созданный бот уже с настройками профиля
	return m.enable(ctx, created, false)
}

func (m *Machine) enableSingle(ctx context.Context, b models.Bot) error {
	return m.enable(ctx, b, m.cfg.Bot.SinglebotUpdate)
}

// Синглботы не кешируются: каждый сигнал заново читает список ботов,
// поэтому ответы update/enable/disable здесь не нужны.
func (m *Machine) enable(ctx context.Context, b models.Bot, refresh bool) error {
	p := m.profile()
	m.notify.Notify(fmt.Sprintf("Enabling single bot %s with DCA settings [%s]", b.Name, p.Name))

	if refresh && b.Settings != p.Settings() {
		body, err := m.payload(b.Name, b.Pairs, p.MaxActiveDeals, false)
		if err != nil {
			return err
		}
		if _, err := m.api.UpdateBot(ctx, b.ID, body); err != nil {
			logger.Error("[SINGLE] update of %s failed: %v", b.Name, err)
		}
	}

	if _, err := m.api.EnableBot(ctx, b.ID); err != nil {
		return errors.Wrapf(err, "enable single bot %s", b.Name)
	}
	m.active.Store(true)
	return nil
}

// stopSingle: без сделок и с delete_single_bots, удалить, иначе выключить включённый.
func (m *Machine) stopSingle(ctx context.Context, b models.Bot) error {
	switch {
	case b.ActiveDealsCount == 0 && m.cfg.Bot.DeleteSingleBots:
		m.notify.Notify(fmt.Sprintf("Delete single bot %s", b.Name))
		return errors.Wrapf(m.api.DeleteBot(ctx, b.ID), "delete single bot %s", b.Name)
	case b.IsEnabled:
		m.notify.Notify(fmt.Sprintf("Disabling single bot %s because of a STOP signal", b.Name))
		_, err := m.api.DisableBot(ctx, b.ID)
		return errors.Wrapf(err, "disable single bot %s", b.Name)
	}
	logger.Info("[SINGLE] %s not enabled, nothing to do", b.Name)
	return nil
}

// disableAllSingle выключает все включённые синглботы за один проход, ошибки копит.
func (m *Machine) disableAllSingle(ctx context.Context) error {
	bots, err := m.singleBots(ctx)
	if err != nil {
		return err
	}
	m.active.Store(false)
	m.notify.Notify("Disabling all single bots because trading is currently not allowed")

	var errs error
	for _, b := range bots {
		if !b.IsEnabled {
			continue
		}
		if _, err := m.api.DisableBot(ctx, b.ID); err != nil {
			errs = multierr.Append(errs, errors.Wrapf(err, "disable %s", b.Name))
			continue
		}
		logger.Info("[SINGLE] %s disabled", b.Name)
	}
	return errs
}
