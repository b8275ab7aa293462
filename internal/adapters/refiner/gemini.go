package refiner

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/genai"

	"ig-vote-bot/internal/infra/metrics"
)

// GeminiModel генерирует текст через Gemini API.
type GeminiModel struct {
	client *genai.Client
	model  string
}

// NewGeminiModel создаёт клиента Gemini. baseURL нужен только для тестов.
func NewGeminiModel(ctx context.Context, apiKey, model, baseURL string) (*GeminiModel, error) {
	cfg := &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: создание клиента: %w", err)
	}
	return &GeminiModel{client: client, model: model}, nil
}

// Name возвращает имя провайдера.
func (m *GeminiModel) Name() string { return "gemini" }

// GenerateText вызывает generateContent и возвращает текст ответа.
func (m *GeminiModel) GenerateText(ctx context.Context, instruction string) (string, error) {
	start := time.Now()
	resp, err := m.client.Models.GenerateContent(ctx, m.model, genai.Text(instruction), nil)
	metrics.ObserveNetworkRequest("gemini", "generate_content", m.model, start, err)
	if err != nil {
		return "", err
	}
	if usage := resp.UsageMetadata; usage != nil {
		metrics.ObserveLLMGeneration(m.model, time.Since(start), int(usage.PromptTokenCount), int(usage.CandidatesTokenCount), int(usage.TotalTokenCount))
	}
	return resp.Text(), nil
}
