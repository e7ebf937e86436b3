package service

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"signal_bot/internal/models"

	"github.com/pkg/errors"
)

func (c *Client) Accounts(ctx context.Context) ([]models.Account, error) {
	var dtos []accountDTO
	if err := c.do(ctx, "accounts.list", retryAll, http.MethodGet, "/ver1/accounts", nil, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]models.Account, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, models.Account{ID: d.ID, Name: d.Name, MarketCode: d.MarketCode})
	}
	return out, nil
}

// AccountByName: первый аккаунт с таким именем.
func (c *Client) AccountByName(ctx context.Context, name string) (models.Account, error) {
	accounts, err := c.Accounts(ctx)
	if err != nil {
		return models.Account{}, err
	}
	for _, a := range accounts {
		if a.Name == name {
			return a, nil
		}
	}
	return models.Account{}, errors.Errorf("account %q not found", name)
}

// MarketPairs: все пары биржи, вида USDT_BTC.
func (c *Client) MarketPairs(ctx context.Context, marketCode string) ([]string, error) {
	q := url.Values{}
	q.Set("market_code", marketCode)
	var pairs []string
	if err := c.do(ctx, "accounts.market_pairs", retryAll, http.MethodGet, "/ver1/accounts/market_pairs", q, nil, &pairs); err != nil {
		return nil, err
	}
	return pairs, nil
}

func (c *Client) BlacklistedPairs(ctx context.Context) ([]string, error) {
	var resp struct {
		Pairs []string `json:"pairs"`
	}
	if err := c.do(ctx, "bots.pairs_black_list", retryAll, http.MethodGet, "/ver1/bots/pairs_black_list", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Pairs, nil
}

// ActiveDeals: открытые сделки бота.
func (c *Client) ActiveDeals(ctx context.Context, botID int64) ([]models.Deal, error) {
	q := url.Values{}
	q.Set("bot_id", strconv.FormatInt(botID, 10))
	q.Set("scope", "active")
	q.Set("limit", "100")
	var dtos []dealDTO
	if err := c.do(ctx, "deals.list", retryAll, http.MethodGet, "/ver1/deals", q, nil, &dtos); err != nil {
		return nil, err
	}
	out := make([]models.Deal, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, d.model())
	}
	return out, nil
}
