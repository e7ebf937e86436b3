package service

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"signal_bot/internal/models"
	"signal_bot/pkg/metrics"
)

const botsPageSize = 100

// Bots: все боты аккаунта, постранично до system_bot_value.
func (c *Client) Bots(ctx context.Context) ([]models.Bot, error) {
	var out []models.Bot
	for page := 0; page < c.pageCount; page++ {
		q := url.Values{}
		q.Set("limit", strconv.Itoa(botsPageSize))
		q.Set("offset", strconv.Itoa(page*botsPageSize))

		var dtos []botDTO
		if err := c.do(ctx, "bots.list", retryAll, http.MethodGet, "/ver1/bots", q, nil, &dtos); err != nil {
			return nil, err
		}
		for _, d := range dtos {
			out = append(out, d.model())
		}
		if len(dtos) < botsPageSize {
			break
		}
	}
	return out, nil
}

// Bot: один бот по id.
func (c *Client) Bot(ctx context.Context, id int64) (models.Bot, error) {
	var d botDTO
	if err := c.do(ctx, "bots.show", retryAll, http.MethodGet, botPath(id, "show"), nil, nil, &d); err != nil {
		return models.Bot{}, err
	}
	return d.model(), nil
}

func (c *Client) CreateBot(ctx context.Context, p BotPayload) (models.Bot, error) {
	return c.mutate(ctx, "create", retryThrottled, http.MethodPost, "/ver1/bots/create_bot", nil, p)
}

func (c *Client) UpdateBot(ctx context.Context, id int64, p BotPayload) (models.Bot, error) {
	return c.mutate(ctx, "update", retryAll, http.MethodPatch, botPath(id, "update"), nil, p)
}

func (c *Client) EnableBot(ctx context.Context, id int64) (models.Bot, error) {
	return c.mutate(ctx, "enable", retryAll, http.MethodPost, botPath(id, "enable"), nil, nil)
}

func (c *Client) DisableBot(ctx context.Context, id int64) (models.Bot, error) {
	return c.mutate(ctx, "disable", retryAll, http.MethodPost, botPath(id, "disable"), nil, nil)
}

func (c *Client) DeleteBot(ctx context.Context, id int64) error {
	if err := c.do(ctx, "bots.delete", retryThrottled, http.MethodPost, botPath(id, "delete"), nil, nil, nil); err != nil {
		return err
	}
	metrics.BotMutationsTotal.WithLabelValues("delete").Inc()
	return nil
}

// StartNewDeal: ручной старт сделки по паре.
func (c *Client) StartNewDeal(ctx context.Context, id int64, pair string) error {
	q := url.Values{}
	q.Set("pair", pair)
	if err := c.do(ctx, "bots.start_new_deal", retryThrottled, http.MethodPost, botPath(id, "start_new_deal"), q, nil, nil); err != nil {
		return err
	}
	metrics.BotMutationsTotal.WithLabelValues("deal").Inc()
	return nil
}

func (c *Client) mutate(ctx context.Context, op string, mode retryMode, method, path string, q url.Values, body any) (models.Bot, error) {
	var d botDTO
	if err := c.do(ctx, "bots."+op, mode, method, path, q, body, &d); err != nil {
		return models.Bot{}, err
	}
	metrics.BotMutationsTotal.WithLabelValues(op).Inc()
	return d.model(), nil
}

func botPath(id int64, action string) string {
	return "/ver1/bots/" + strconv.FormatInt(id, 10) + "/" + action
}
