package refiner

import (
	"context"

	"ig-vote-bot/internal/infra/openai"
)

// OpenAIModel генерирует текст через Chat Completions.
type OpenAIModel struct {
	client      *openai.Client
	model       string
	temperature float64
}

// NewOpenAIModel создаёт модель OpenAI.
func NewOpenAIModel(client *openai.Client, model string) *OpenAIModel {
	return &OpenAIModel{client: client, model: model, temperature: 0.8}
}

// Name возвращает имя провайдера.
func (m *OpenAIModel) Name() string { return "openai" }

// GenerateText отправляет инструкцию как сообщение пользователя.
func (m *OpenAIModel) GenerateText(ctx context.Context, instruction string) (string, error) {
	return m.client.Complete(ctx, m.model, "", instruction, m.temperature)
}
