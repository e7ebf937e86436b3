package service

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"signal_bot/internal/modules/config"
	"signal_bot/pkg/logger"
	"signal_bot/pkg/metrics"
	"signal_bot/pkg/tracing"

	"github.com/bytedance/sonic"
	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// Client: REST-клиент 3Commas: подпись, лимит запросов и повторы на сетевых/5xx ошибках.
type Client struct {
	http    *http.Client
	base    *url.URL
	key     string
	secret  string
	mode    string
	limiter *rate.Limiter

	retries    int
	retryDelay time.Duration
	pageCount  int
}

func NewClient(cfg *config.Config) (*Client, error) {
	tc := cfg.ThreeCommas
	base, err := url.Parse(strings.TrimRight(tc.BaseURL, "/"))
	if err != nil {
		return nil, errors.Wrapf(err, "threecommas base_url %q", tc.BaseURL)
	}

	limit := rate.Inf
	if tc.RateLimit > 0 {
		limit = rate.Limit(tc.RateLimit)
	}
	pages := (tc.SystemBotValue + botsPageSize - 1) / botsPageSize

	return &Client{
		http:       &http.Client{Timeout: tc.Timeout},
		base:       base,
		key:        tc.Key,
		secret:     tc.Secret,
		mode:       tc.TradeMode,
		limiter:    rate.NewLimiter(limit, 1),
		retries:    max(tc.Retries, 0),
		retryDelay: time.Duration(tc.RetryBackoff * float64(time.Second)),
		pageCount:  max(pages, 1),
	}, nil
}

// APIError: ответ 3Commas с кодом >= 400.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("3commas http %d: %s", e.Status, e.Code)
	}
	return fmt.Sprintf("3commas http %d: %s (%s)", e.Status, e.Code, e.Message)
}

// Retryable: лимит или упавший сервер, всё остальное повторять бессмысленно.
func (e *APIError) Retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// IsAPIError: достаёт *APIError из цепочки.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// sign: hex(HMAC-SHA256(secret, path?query + body)).
func (c *Client) sign(uri string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.secret))
	mac.Write([]byte(uri))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// retryMode: что можно повторять после неудачной попытки.
type retryMode int

const (
	// retryAll: запрос идемпотентен, повторяем сеть, 429 и 5xx.
	retryAll retryMode = iota
	// retryThrottled: повтор может задвоить бота или сделку, повторяем только 429.
	// После обрыва или 5xx сервер мог уже всё сделать.
	retryThrottled
)

// do выполняет запрос op (метка для метрик и трейса) и декодирует ответ в out, если он не nil.
func (c *Client) do(ctx context.Context, op string, mode retryMode, method, path string, query url.Values, body any, out any) (err error) {
	span, ctx := tracing.StartSpan(ctx, "threecommas."+op)
	defer func() {
		tracing.Finish(span, err)
		result := "ok"
		if err != nil {
			result = "error"
		}
		metrics.RemoteCallsTotal.WithLabelValues("3commas."+op, result).Inc()
	}()

	var payload []byte
	if body != nil {
		payload, err = sonic.Marshal(body)
		if err != nil {
			return errors.Wrapf(err, "%s: marshal", op)
		}
	}

	uri := c.base.Path + path
	if len(query) > 0 {
		uri += "?" + query.Encode()
	}
	target := c.base.Scheme + "://" + c.base.Host + uri
	signature := c.sign(uri, payload)

	var raw []byte
	attempt := func() error {
		if err := c.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, reader)
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "build request"))
		}
		req.Header.Set("APIKEY", c.key)
		req.Header.Set("Signature", signature)
		req.Header.Set("Forced-Mode", c.mode)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			if mode == retryThrottled {
				return backoff.Permanent(errors.Wrap(err, "do request, outcome unknown"))
			}
			return errors.Wrap(err, "do request")
		}
		defer resp.Body.Close()

		b, err := io.ReadAll(resp.Body)
		if err != nil {
			return errors.Wrap(err, "read body")
		}
		if resp.StatusCode >= 400 {
			apiErr := parseAPIError(resp.StatusCode, b)
			if apiErr.Retryable() && (mode == retryAll || apiErr.Status == http.StatusTooManyRequests) {
				return apiErr
			}
			return backoff.Permanent(apiErr)
		}
		raw = b
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryDelay
	policy.Multiplier = 2
	policy.MaxElapsedTime = 0
	err = backoff.RetryNotify(attempt,
		backoff.WithContext(backoff.WithMaxRetries(policy, uint64(c.retries)), ctx),
		func(err error, wait time.Duration) {
			logger.Warn("[3COMMAS] %s %s failed: %v, retry in %s", method, path, err, wait)
		})
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := sonic.Unmarshal(raw, out); err != nil {
		return errors.Wrapf(err, "%s: decode", op)
	}
	return nil
}

func parseAPIError(status int, body []byte) *APIError {
	var wire struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	apiErr := &APIError{Status: status}
	if err := sonic.Unmarshal(body, &wire); err != nil || wire.Error == "" {
		apiErr.Code = http.StatusText(status)
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}
	apiErr.Code = wire.Error
	apiErr.Message = wire.ErrorDescription
	return apiErr
}
