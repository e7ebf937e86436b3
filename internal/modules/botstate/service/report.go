package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"signal_bot/internal/models"
	dca "signal_bot/internal/modules/dca/service"
	"signal_bot/pkg/logger"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
)

// Report: сводка по сделкам: для мультибота из зеркала, для синглботов по каждому боту.
func (m *Machine) Report(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cfg.Bot.Single {
		return m.singleReport(ctx)
	}
	return m.multiReport(ctx)
}

func (m *Machine) reportMultiDeals(ctx context.Context) {
	lines, err := m.multiReport(ctx)
	if err != nil {
		logger.Error("[BOT] deals report: %v", err)
	}
	for _, l := range lines {
		m.notify.Notify(l)
	}
}

func (m *Machine) multiReport(ctx context.Context) ([]string, error) {
	b := m.multi
	if b == nil {
		return []string{"No multi bot found"}, nil
	}
	out := []string{
		fmt.Sprintf("Deals active: %d/%d", b.ActiveDealsCount, b.MaxActiveDeals),
		fmt.Sprintf("Profits of %d finished deals: %s", b.FinishedDealsCount, dca.Money(b.FinishedDealsProfitUSD)),
		fmt.Sprintf("uPNL of active deals: %s", dca.Money(b.ActiveDealsUSDProfit)),
	}
	deals, err := m.dealLines(ctx, b.ID)
	return append(out, deals...), err
}

func (m *Machine) singleReport(ctx context.Context) ([]string, error) {
	bots, err := m.singleBots(ctx)
	if err != nil {
		return nil, err
	}
	out := []string{fmt.Sprintf("Single bots active: %d/%d", countSingles(bots).enabled, m.profile().SingleCount)}
	for _, b := range bots {
		pair := b.Name
		if len(b.Pairs) > 0 {
			pair = b.Pairs[0]
		}
		out = append(out, fmt.Sprintf("Bot %s with %d finished deals. Total profit: %s",
			pair, b.FinishedDealsCount, dca.Money(b.FinishedDealsProfitUSD)))
		deals, err := m.dealLines(ctx, b.ID)
		if err != nil {
			return out, err
		}
		out = append(out, deals...)
	}
	return out, nil
}

func (m *Machine) dealLines(ctx context.Context, botID int64) ([]string, error) {
	deals, err := m.api.ActiveDeals(ctx, botID)
	if err != nil {
		return nil, errors.Wrapf(err, "active deals of %d", botID)
	}
	now := time.Now()
	out := make([]string, 0, len(deals))
	for _, d := range deals {
		out = append(out, formatDeal(d, now))
	}
	return out, nil
}

func formatDeal(d models.Deal, now time.Time) string {
	return fmt.Sprintf("Deal %s open since %s   Actual profit: %s (%.2f%%)   Bought volume: %s   Deal error: %t",
		d.Pair, strings.TrimSpace(humanize.RelTime(d.CreatedAt, now, "", "")), dca.Money(d.ActualUSDProfit),
		d.ActualProfitPercentage, dca.Money(d.Volume()), d.HasError)
}
