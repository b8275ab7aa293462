// Package imagegen вызывает HTTP-бэкенд генерации изображений.
package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ig-vote-bot/internal/domain"
	"ig-vote-bot/internal/infra/metrics"
)

const maxImageBytes = 20 << 20

// Options задаёт параметры бэкенда.
type Options struct {
	URL        string
	APIKey     string
	Width      int
	Height     int
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// Client реализует domain.ImageGenerator.
// Бэкенд может вернуть картинку напрямую, JSON с base64 или JSON со ссылкой.
type Client struct {
	http *http.Client
	opts Options
	log  zerolog.Logger
}

// New создаёт клиента генератора.
func New(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.URL) == "" {
		return nil, fmt.Errorf("%w: IMAGE_GEN_URL не задан", domain.ErrConfiguration)
	}
	if opts.Width <= 0 {
		opts.Width = 1024
	}
	if opts.Height <= 0 {
		opts.Height = 1024
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 120 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &Client{http: httpClient, opts: opts, log: opts.Logger}, nil
}

type generateRequest struct {
	Prompt string `json:"prompt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type generateResponse struct {
	Image       string `json:"image"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	Error       string `json:"error"`
}

// Generate создаёт изображение по промпту.
func (c *Client) Generate(ctx context.Context, prompt string) (domain.GeneratedImage, error) {
	if strings.TrimSpace(prompt) == "" {
		return domain.GeneratedImage{}, domain.ErrEmptyPrompt
	}
	payload, err := json.Marshal(generateRequest{Prompt: prompt, Width: c.opts.Width, Height: c.opts.Height})
	if err != nil {
		return domain.GeneratedImage{}, fmt.Errorf("imagegen: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.URL, bytes.NewReader(payload))
	if err != nil {
		return domain.GeneratedImage{}, fmt.Errorf("imagegen: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.opts.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.opts.APIKey)
	}

	start := time.Now()
	contentType, body, err := c.fetch(req)
	metrics.ObserveNetworkRequest("imagegen", "generate", req.URL.Host, start, err)
	if err != nil {
		return domain.GeneratedImage{}, err
	}
	if isImage(contentType) {
		return c.done(start, domain.GeneratedImage{Data: body, ContentType: contentType})
	}

	var parsed generateResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return domain.GeneratedImage{}, fmt.Errorf("imagegen: parse response: %w", err)
	}
	switch {
	case parsed.Error != "":
		return domain.GeneratedImage{}, fmt.Errorf("imagegen: %s", parsed.Error)
	case parsed.Image != "":
		data, err := base64.StdEncoding.DecodeString(stripDataURL(parsed.Image))
		if err != nil {
			return domain.GeneratedImage{}, fmt.Errorf("imagegen: decode base64: %w", err)
		}
		ct := parsed.ContentType
		if ct == "" {
			ct = http.DetectContentType(data)
		}
		return c.done(start, domain.GeneratedImage{Data: data, ContentType: ct})
	case parsed.URL != "":
		return c.download(ctx, start, parsed.URL)
	default:
		return domain.GeneratedImage{}, errors.New("imagegen: ответ без изображения")
	}
}

func (c *Client) download(ctx context.Context, start time.Time, rawURL string) (domain.GeneratedImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return domain.GeneratedImage{}, fmt.Errorf("imagegen: build download: %w", err)
	}
	dlStart := time.Now()
	contentType, body, err := c.fetch(req)
	metrics.ObserveNetworkRequest("imagegen", "download", req.URL.Host, dlStart, err)
	if err != nil {
		return domain.GeneratedImage{}, err
	}
	if !isImage(contentType) {
		contentType = http.DetectContentType(body)
	}
	return c.done(start, domain.GeneratedImage{Data: body, ContentType: contentType})
}

func (c *Client) fetch(req *http.Request) (string, []byte, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return "", nil, fmt.Errorf("imagegen: request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return "", nil, fmt.Errorf("imagegen: read: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := string(body)
		if len(snippet) > 300 {
			snippet = snippet[:300]
		}
		return "", nil, fmt.Errorf("imagegen: status %d: %s", resp.StatusCode, strings.TrimSpace(snippet))
	}
	return resp.Header.Get("Content-Type"), body, nil
}

func (c *Client) done(start time.Time, img domain.GeneratedImage) (domain.GeneratedImage, error) {
	if len(img.Data) == 0 {
		return domain.GeneratedImage{}, errors.New("imagegen: пустое изображение")
	}
	c.log.Info().Int("bytes", len(img.Data)).Str("content_type", img.ContentType).Dur("took", time.Since(start)).Msg("imagegen: изображение готово")
	return img, nil
}

func isImage(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	return err == nil && strings.HasPrefix(mediaType, "image/")
}

func stripDataURL(s string) string {
	if i := strings.Index(s, ";base64,"); i >= 0 && strings.HasPrefix(s, "data:") {
		return s[i+len(";base64,"):]
	}
	return s
}
