// Package graph реализует примитивы Instagram Graph API: контейнеры, опрос статуса,
// публикацию, чтение полей и обмен токенов.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ig-vote-bot/internal/infra/metrics"
)

const (
	defaultBaseURL          = "https://graph.facebook.com"
	defaultVersion          = "v21.0"
	defaultInstagramBaseURL = "https://graph.instagram.com"
	defaultTimeout          = 30 * time.Second
	maxBodyBytes            = 1 << 20
)

// Sleeper ждёт d или отмены ctx.
type Sleeper func(ctx context.Context, d time.Duration) error

// Options задаёт параметры клиента.
type Options struct {
	BaseURL          string
	Version          string
	InstagramBaseURL string
	HTTPClient       *http.Client
	Sleep            Sleeper
	Logger           zerolog.Logger
}

// Client выполняет запросы к Graph API. Токен передаётся в каждом вызове.
type Client struct {
	http      *http.Client
	baseURL   string
	igBaseURL string
	sleep     Sleeper
	log       zerolog.Logger
}

// NewClient создаёт клиента Graph API.
func NewClient(opts Options) *Client {
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	version := strings.Trim(opts.Version, "/")
	if version == "" {
		version = defaultVersion
	}
	igBase := strings.TrimRight(opts.InstagramBaseURL, "/")
	if igBase == "" {
		igBase = defaultInstagramBaseURL
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepContext
	}
	return &Client{
		http:      httpClient,
		baseURL:   base + "/" + version,
		igBaseURL: igBase,
		sleep:     sleep,
		log:       opts.Logger,
	}
}

// APIError содержит ответ Graph API с ошибкой.
type APIError struct {
	Op      string
	Status  int
	Message string
	Code    int
	Body    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("graph %s: status %d: %s (code %d)", e.Op, e.Status, e.Message, e.Code)
	}
	return fmt.Sprintf("graph %s: status %d: %s", e.Op, e.Status, e.Body)
}

type apiErrBody struct {
	Error *struct {
		Message   string `json:"message"`
		Type      string `json:"type"`
		Code      int    `json:"code"`
		FBTraceID string `json:"fbtrace_id,omitempty"`
	} `json:"error,omitempty"`
}

func (c *Client) postForm(ctx context.Context, op, endpoint string, params url.Values) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, strings.NewReader(params.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, op)
}

func (c *Client) get(ctx context.Context, op, rawURL string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return c.do(req, op)
}

func (c *Client) do(req *http.Request, op string) (map[string]any, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("instagram", op, req.URL.Host, start, err)
		return nil, fmt.Errorf("graph %s: request failed: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		metrics.ObserveNetworkRequest("instagram", op, req.URL.Host, start, err)
		return nil, fmt.Errorf("graph %s: read response: %w", op, err)
	}
	c.log.Debug().Str("op", op).Int("status", resp.StatusCode).Dur("duration", time.Since(start)).Msg("graph: ответ получен")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Op: op, Status: resp.StatusCode, Body: truncate(string(body), 500)}
		var parsed apiErrBody
		if json.Unmarshal(body, &parsed) == nil && parsed.Error != nil {
			apiErr.Message = parsed.Error.Message
			apiErr.Code = parsed.Error.Code
		}
		metrics.ObserveNetworkRequest("instagram", op, req.URL.Host, start, apiErr)
		return nil, apiErr
	}

	var out map[string]any
	if err := json.Unmarshal(body, &out); err != nil {
		err = fmt.Errorf("graph %s: parse response: %w (body: %s)", op, err, truncate(string(body), 200))
		metrics.ObserveNetworkRequest("instagram", op, req.URL.Host, start, err)
		return nil, err
	}
	metrics.ObserveNetworkRequest("instagram", op, req.URL.Host, start, nil)
	return out, nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case string:
		return v
	case float64:
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}

func intField(m map[string]any, key string) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case json.Number:
		n, _ := v.Int64()
		return int(n)
	default:
		return 0
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
