// Package whatsapp отправляет уведомления оператору через WhatsApp Cloud API.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ig-vote-bot/internal/adapters/telegram"
	"ig-vote-bot/internal/domain"
	"ig-vote-bot/internal/infra/metrics"
)

const (
	defaultBaseURL = "https://graph.facebook.com"
	defaultVersion = "v21.0"
	maxTextParams  = 3
)

// TokenSource возвращает токен Cloud API из хранилища.
type TokenSource interface {
	Token(ctx context.Context, tokenType domain.TokenType) (string, error)
}

// Options задаёт параметры уведомителя.
type Options struct {
	BaseURL         string
	Version         string
	PhoneNumberID   string
	To              string
	SuccessTemplate string
	FailureTemplate string
	Language        string
	HTTPClient      *http.Client
	Logger          zerolog.Logger
}

// Notifier реализует domain.Notifier поверх /{phone_id}/messages.
type Notifier struct {
	http     *http.Client
	endpoint string
	opts     Options
	tokens   TokenSource
	log      zerolog.Logger
}

// NewNotifier создаёт уведомитель. Без номера отправителя или получателя возвращает ErrConfiguration.
func NewNotifier(tokens TokenSource, opts Options) (*Notifier, error) {
	if strings.TrimSpace(opts.PhoneNumberID) == "" || strings.TrimSpace(opts.To) == "" {
		return nil, fmt.Errorf("%w: WHATSAPP_PHONE_NUMBER_ID или WHATSAPP_TO не заданы", domain.ErrConfiguration)
	}
	base := strings.TrimRight(opts.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	version := strings.Trim(opts.Version, "/")
	if version == "" {
		version = defaultVersion
	}
	if opts.Language == "" {
		opts.Language = "it"
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	return &Notifier{
		http:     httpClient,
		endpoint: base + "/" + version + "/" + url.PathEscape(opts.PhoneNumberID) + "/messages",
		opts:     opts,
		tokens:   tokens,
		log:      opts.Logger,
	}, nil
}

type message struct {
	MessagingProduct string        `json:"messaging_product"`
	To               string        `json:"to"`
	Type             string        `json:"type"`
	Text             *textBody     `json:"text,omitempty"`
	Image            *mediaLink    `json:"image,omitempty"`
	Template         *templateBody `json:"template,omitempty"`
}

type textBody struct {
	Body string `json:"body"`
}

type mediaLink struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

type templateBody struct {
	Name       string      `json:"name"`
	Language   language    `json:"language"`
	Components []component `json:"components"`
}

type language struct {
	Code string `json:"code"`
}

type component struct {
	Type       string      `json:"type"`
	Parameters []parameter `json:"parameters"`
}

type parameter struct {
	Type  string     `json:"type"`
	Text  string     `json:"text,omitempty"`
	Image *mediaLink `json:"image,omitempty"`
}

// NotifySuccess отправляет шаблон с картинкой либо фото с подписью.
// При отказе в отправке картинки повторяет отчёт текстом.
func (n *Notifier) NotifySuccess(ctx context.Context, report domain.PostReport) error {
	params := []string{report.OriginalPrompt, report.RefinedPrompt, report.Caption}
	text := successText(report)

	var msg message
	switch {
	case n.opts.SuccessTemplate != "" && report.ImageURL != "":
		msg = n.template(n.opts.SuccessTemplate, report.ImageURL, params)
	case report.ImageURL != "":
		msg = n.image(report.ImageURL, text)
	default:
		return n.send(ctx, "text", n.text(text))
	}
	err := n.send(ctx, msg.Type, msg)
	if err == nil {
		return nil
	}
	n.log.Warn().Err(err).Msg("whatsapp: картинка не отправлена, пробуем текст")
	return n.send(ctx, "text", n.text(text))
}

// NotifyFailure отправляет шаблон ошибки либо текст.
func (n *Notifier) NotifyFailure(ctx context.Context, report domain.PostReport) error {
	errText := "unknown error"
	if report.Err != nil {
		errText = report.Err.Error()
	}
	if n.opts.FailureTemplate != "" {
		return n.send(ctx, "template", n.template(n.opts.FailureTemplate, "", []string{report.OriginalPrompt, report.RefinedPrompt, errText}))
	}
	text := fmt.Sprintf("❌ Pubblicazione fallita\n\nPrompt: %s\nRefined: %s\nErrore: %s", report.OriginalPrompt, report.RefinedPrompt, errText)
	return n.send(ctx, "text", n.text(text))
}

// NotifyWinner отправляет фото победителя с итогами.
func (n *Notifier) NotifyWinner(ctx context.Context, winner domain.ScoredImage, post domain.PublishResult) error {
	return n.send(ctx, "image", n.image(winner.Image.ImageURL, telegram.WinnerText(winner, post)))
}

func successText(report domain.PostReport) string {
	parts := []string{"✅ Post pubblicato"}
	if report.Caption != "" {
		parts = append(parts, report.Caption)
	}
	if report.Permalink != "" {
		parts = append(parts, report.Permalink)
	}
	return strings.Join(parts, "\n\n")
}

func (n *Notifier) text(body string) message {
	return message{MessagingProduct: "whatsapp", To: n.opts.To, Type: "text", Text: &textBody{Body: body}}
}

func (n *Notifier) image(link, caption string) message {
	return message{MessagingProduct: "whatsapp", To: n.opts.To, Type: "image", Image: &mediaLink{Link: link, Caption: caption}}
}

func (n *Notifier) template(name, imageURL string, texts []string) message {
	var components []component
	if imageURL != "" {
		components = append(components, component{
			Type:       "header",
			Parameters: []parameter{{Type: "image", Image: &mediaLink{Link: imageURL}}},
		})
	}
	if len(texts) > maxTextParams {
		texts = texts[:maxTextParams]
	}
	body := make([]parameter, 0, len(texts))
	for _, t := range texts {
		body = append(body, parameter{Type: "text", Text: t})
	}
	components = append(components, component{Type: "body", Parameters: body})
	return message{
		MessagingProduct: "whatsapp",
		To:               n.opts.To,
		Type:             "template",
		Template: &templateBody{
			Name:       name,
			Language:   language{Code: n.opts.Language},
			Components: components,
		},
	}
}

func (n *Notifier) send(ctx context.Context, op string, msg message) error {
	token, err := n.tokens.Token(ctx, domain.TokenWhatsApp)
	if err != nil {
		return fmt.Errorf("whatsapp: токен: %w", err)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("whatsapp: marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("whatsapp: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	start := time.Now()
	resp, err := n.http.Do(req)
	if err != nil {
		metrics.ObserveNetworkRequest("whatsapp", op, req.URL.Host, start, err)
		return fmt.Errorf("whatsapp: request: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		err = errors.New("whatsapp: status " + resp.Status + ": " + strings.TrimSpace(string(body)))
	}
	metrics.ObserveNetworkRequest("whatsapp", op, req.URL.Host, start, err)
	return err
}
