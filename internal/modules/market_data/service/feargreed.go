package service

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"time"

	"signal_bot/internal/models"
	"signal_bot/internal/modules/config"
	"signal_bot/pkg/metrics"
	"signal_bot/pkg/tracing"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

type fngPoint struct {
	Value           string `json:"value"`
	Timestamp       string `json:"timestamp"`
	TimeUntilUpdate string `json:"time_until_update,omitempty"`
}

type fngResponse struct {
	Data     []fngPoint `json:"data"`
	Metadata struct {
		Error *string `json:"error,omitempty"`
	} `json:"metadata"`
}

// FearGreed: клиент индекса alternative.me.
type FearGreed struct {
	http *http.Client
	url  string
}

func NewFearGreed(cfg *config.Config) *FearGreed {
	return &FearGreed{
		http: &http.Client{Timeout: 10 * time.Second},
		url:  cfg.Pulse.FgiURL,
	}
}

// FearGreed: последние limit значений, от старых к новым.
// TimeUntilUpdate берётся из самой свежей точки.
func (f *FearGreed) FearGreed(ctx context.Context, limit int) (series models.SentimentSeries, err error) {
	span, ctx := tracing.StartSpan(ctx, "feargreed.fetch")
	defer func() {
		tracing.Finish(span, err)
		metrics.RemoteCallsTotal.WithLabelValues("feargreed", resultLabel(err)).Inc()
	}()

	u, err := url.Parse(f.url)
	if err != nil {
		return models.SentimentSeries{}, errors.Wrapf(err, "fgi url %q", f.url)
	}
	q := u.Query()
	q.Set("limit", strconv.Itoa(limit))
	u.RawQuery = q.Encode()

	var raw fngResponse
	if err := getJSON(ctx, f.http, u.String(), &raw); err != nil {
		return models.SentimentSeries{}, errors.Wrap(err, "fgi")
	}
	if raw.Metadata.Error != nil {
		return models.SentimentSeries{}, errors.Errorf("fgi api error: %s", *raw.Metadata.Error)
	}
	if len(raw.Data) == 0 {
		return models.SentimentSeries{}, errors.New("fgi: no data returned")
	}

	values := make([]int, 0, len(raw.Data))
	for _, p := range raw.Data {
		v, err := strconv.Atoi(p.Value)
		if err != nil {
			return models.SentimentSeries{}, errors.Wrapf(err, "fgi: invalid value %q", p.Value)
		}
		values = append(values, v)
	}
	// API отдаёт от новых к старым
	slices.Reverse(values)

	var wait time.Duration
	if s := raw.Data[0].TimeUntilUpdate; s != "" {
		secs, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return models.SentimentSeries{}, errors.Wrapf(err, "fgi: invalid time_until_update %q", s)
		}
		wait = time.Duration(secs) * time.Second
	}
	return models.SentimentSeries{Values: values, TimeUntilUpdate: wait}, nil
}

func getJSON(ctx context.Context, c *http.Client, target string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return errors.Wrap(err, "build request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.Do(req)
	if err != nil {
		return errors.Wrap(err, "do request")
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "read body")
	}
	if resp.StatusCode/100 != 2 {
		return errors.Errorf("http %d: %s", resp.StatusCode, string(b))
	}
	if err := sonic.Unmarshal(b, out); err != nil {
		return errors.Wrap(err, "decode")
	}
	return nil
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
