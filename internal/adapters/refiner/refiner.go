// Package refiner уточняет промпты и пишет подписи через текстовую LLM.
package refiner

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"ig-vote-bot/internal/domain"
)

// TextModel генерирует текст по одной инструкции.
type TextModel interface {
	GenerateText(ctx context.Context, instruction string) (string, error)
	Name() string
}

// Instructions — шаблоны инструкций для модели.
type Instructions struct {
	Refine  string
	Default string
}

// Service реализует domain.Refiner.
type Service struct {
	model        TextModel
	instructions Instructions
	maxHashtags  int
	log          zerolog.Logger
}

// NewService создаёт уточнитель. maxHashtags <= 0 отключает ограничение хэштегов.
func NewService(model TextModel, instructions Instructions, maxHashtags int, logger zerolog.Logger) *Service {
	return &Service{model: model, instructions: instructions, maxHashtags: maxHashtags, log: logger}
}

// RefinePrompt переписывает промпт пользователя.
func (s *Service) RefinePrompt(ctx context.Context, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", domain.ErrEmptyPrompt
	}
	return s.generate(ctx, "refine", s.instructions.Refine+" "+prompt)
}

// DefaultPrompt придумывает промпт, когда очередь пуста.
func (s *Service) DefaultPrompt(ctx context.Context) (string, error) {
	return s.generate(ctx, "default", s.instructions.Default)
}

// Caption пишет подпись по готовой инструкции и обрезает лишние хэштеги.
func (s *Service) Caption(ctx context.Context, instruction string) (string, error) {
	text, err := s.generate(ctx, "caption", instruction)
	if err != nil {
		return "", err
	}
	return LimitHashtags(text, s.maxHashtags), nil
}

func (s *Service) generate(ctx context.Context, kind, instruction string) (string, error) {
	text, err := s.model.GenerateText(ctx, strings.TrimSpace(instruction))
	if err != nil {
		return "", fmt.Errorf("%s %s: %w", s.model.Name(), kind, err)
	}
	text = strings.Trim(strings.TrimSpace(text), "\"")
	if text == "" {
		return "", fmt.Errorf("%s %s: %w", s.model.Name(), kind, domain.ErrEmptyPrompt)
	}
	s.log.Debug().Str("kind", kind).Int("len", len(text)).Msg("refiner: текст получен")
	return text, nil
}

// LimitHashtags оставляет первые limit хэштегов, остальные удаляет.
func LimitHashtags(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	lines := strings.Split(text, "\n")
	seen := 0
	for i, line := range lines {
		words := strings.Fields(line)
		kept := words[:0]
		for _, w := range words {
			if strings.HasPrefix(w, "#") && len(w) > 1 {
				seen++
				if seen > limit {
					continue
				}
			}
			kept = append(kept, w)
		}
		if len(kept) != len(words) {
			lines[i] = strings.Join(kept, " ")
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
