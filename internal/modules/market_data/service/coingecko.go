package service

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"signal_bot/internal/modules/config"
	"signal_bot/pkg/logger"
	"signal_bot/pkg/metrics"
	"signal_bot/pkg/tracing"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

const (
	cgPerPage  = 250
	cgCacheTTL = time.Hour
	// бесплатный тариф CoinGecko режет чаще ~30 запросов в минуту
	cgMinInterval = 2200 * time.Millisecond
)

type cgMarket struct {
	ID            string  `json:"id"`
	Symbol        string  `json:"symbol"`
	MarketCapRank int     `json:"market_cap_rank"`
	TotalVolume   float64 `json:"total_volume"`
}

type cgTickers struct {
	Tickers []struct {
		Base            string             `json:"base"`
		Target          string             `json:"target"`
		ConvertedVolume map[string]float64 `json:"converted_volume"`
	} `json:"tickers"`
}

type coinInfo struct {
	id   string
	rank int
}

// TopCoins: фильтр пар по рангу капитализации и суточному объёму на бирже.
type TopCoins struct {
	http     *http.Client
	base     string
	exchange string
	limiter  *rate.Limiter

	mu      sync.Mutex
	coins   map[string]coinInfo // символ в нижнем регистре
	covered int                 // сколько мест рейтинга уже выкачано
	fetched time.Time
	now     func() time.Time
}

func NewTopCoins(cfg *config.Config) *TopCoins {
	return &TopCoins{
		http:     &http.Client{Timeout: 15 * time.Second},
		base:     strings.TrimRight(cfg.Filter.CoingeckoURL, "/"),
		exchange: cfg.Filter.TopcoinExchange,
		limiter:  rate.NewLimiter(rate.Every(cgMinInterval), 1),
		now:      time.Now,
	}
}

// Filter оставляет пары, базовая монета которых в топ-rankLimit, а объём на бирже
// в BTC не меньше minVolume. Порядок пар сохраняется.
func (t *TopCoins) Filter(ctx context.Context, pairs []string, rankLimit int, minVolume float64) (out []string, err error) {
	span, ctx := tracing.StartSpan(ctx, "coingecko.filter")
	defer func() { tracing.Finish(span, err) }()

	coins, err := t.ranking(ctx, rankLimit)
	if err != nil {
		return nil, err
	}

	for _, pair := range pairs {
		quote, base, ok := strings.Cut(pair, "_")
		if !ok {
			continue
		}
		info, ok := coins[strings.ToLower(base)]
		if !ok || info.rank == 0 || info.rank > rankLimit {
			logger.Debug("[TOPCOIN] %s outside top %d", pair, rankLimit)
			continue
		}
		if minVolume > 0 {
			vol, err := t.exchangeVolume(ctx, info.id, quote)
			if err != nil {
				return nil, err
			}
			if vol < minVolume {
				logger.Debug("[TOPCOIN] %s volume %.2f BTC below %.2f", pair, vol, minVolume)
				continue
			}
		}
		out = append(out, pair)
	}
	return out, nil
}

// ranking кэширует рейтинг на час; если нужен рейтинг глубже выкачанного, докачивает.
func (t *TopCoins) ranking(ctx context.Context, rankLimit int) (map[string]coinInfo, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.coins != nil && t.now().Sub(t.fetched) < cgCacheTTL && t.covered >= rankLimit {
		return t.coins, nil
	}

	coins := make(map[string]coinInfo)
	pages := (rankLimit + cgPerPage - 1) / cgPerPage
	for page := 1; page <= pages; page++ {
		q := url.Values{}
		q.Set("vs_currency", "btc")
		q.Set("order", "market_cap_desc")
		q.Set("per_page", strconv.Itoa(cgPerPage))
		q.Set("page", strconv.Itoa(page))

		var markets []cgMarket
		if err := t.get(ctx, "/coins/markets", q, &markets); err != nil {
			return nil, errors.Wrapf(err, "coingecko markets page %d", page)
		}
		for _, m := range markets {
			sym := strings.ToLower(m.Symbol)
			// одинаковые тикеры у разных монет, оставляем более крупную
			if _, seen := coins[sym]; !seen {
				coins[sym] = coinInfo{id: m.ID, rank: m.MarketCapRank}
			}
		}
		if len(markets) < cgPerPage {
			break
		}
	}

	t.coins, t.covered, t.fetched = coins, pages*cgPerPage, t.now()
	return coins, nil
}

func (t *TopCoins) exchangeVolume(ctx context.Context, coinID, quote string) (float64, error) {
	q := url.Values{}
	q.Set("coin_ids", coinID)
	var resp cgTickers
	if err := t.get(ctx, "/exchanges/"+url.PathEscape(t.exchange)+"/tickers", q, &resp); err != nil {
		return 0, errors.Wrapf(err, "coingecko tickers %s", coinID)
	}
	var vol float64
	for _, tk := range resp.Tickers {
		if strings.EqualFold(tk.Target, quote) {
			vol += tk.ConvertedVolume["btc"]
		}
	}
	return vol, nil
}

func (t *TopCoins) get(ctx context.Context, path string, q url.Values, out any) (err error) {
	defer func() {
		metrics.RemoteCallsTotal.WithLabelValues("coingecko", resultLabel(err)).Inc()
	}()
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return getJSON(ctx, t.http, t.base+path+"?"+q.Encode(), out)
}
