package scoring

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"ig-vote-bot/internal/domain"
)

// Weights — множители лайков, комментариев и голосов.
type Weights struct {
	Like    float64
	Comment float64
	Vote    float64
}

// DefaultWeights возвращает единичные множители.
func DefaultWeights() Weights {
	return Weights{Like: 1, Comment: 1, Vote: 1}
}

// Score считает likes*Wl + comments*Wc + votes*Wv.
func (w Weights) Score(m domain.MediaMetrics, votes int) float64 {
	return float64(m.LikeCount)*w.Like + float64(m.CommentsCount)*w.Comment + float64(votes)*w.Vote
}

// ImageLister возвращает текущий пул кандидатов.
type ImageLister interface {
	ListImages(ctx context.Context) ([]domain.VotingImage, error)
}

// Service считает рейтинг кандидатов.
type Service struct {
	images      ImageLister
	metrics     domain.MetricsSource
	weights     Weights
	concurrency int
	log         zerolog.Logger
}

// NewService создаёт сервис оценки.
func NewService(images ImageLister, metricsSource domain.MetricsSource, weights Weights, concurrency int, logger zerolog.Logger) *Service {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Service{images: images, metrics: metricsSource, weights: weights, concurrency: concurrency, log: logger}
}

// ScoreItems оценивает кандидатов, сохраняя входной порядок.
// Ошибка получения метрик поста считается нулевыми лайками и комментариями.
func (s *Service) ScoreItems(ctx context.Context, items []domain.VotingImage) []domain.ScoredImage {
	scored := make([]domain.ScoredImage, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i, item := range items {
		scored[i] = domain.ScoredImage{Image: item, Position: i}
		if item.InstagramPostID == "" || s.metrics == nil {
			continue
		}
		g.Go(func() error {
			m, err := s.metrics.MediaMetrics(gctx, item.InstagramPostID)
			if err != nil {
				s.log.Warn().Err(err).Str("post_id", item.InstagramPostID).Msg("scoring: метрики недоступны, считаем нулями")
				return nil
			}
			scored[i].Metrics = m
			return nil
		})
	}
	_ = g.Wait()
	for i := range scored {
		scored[i].Score = s.weights.Score(scored[i].Metrics, scored[i].Image.Votes)
	}
	return scored
}

// PickBest возвращает кандидата со строго наибольшим рейтингом; при равенстве побеждает первый.
func PickBest(scored []domain.ScoredImage) (domain.ScoredImage, bool) {
	if len(scored) == 0 {
		return domain.ScoredImage{}, false
	}
	best := scored[0]
	for _, item := range scored[1:] {
		if item.Score > best.Score {
			best = item
		}
	}
	return best, true
}

// GetBestPhoto загружает пул и выбирает победителя.
func (s *Service) GetBestPhoto(ctx context.Context) (domain.ScoredImage, error) {
	images, err := s.images.ListImages(ctx)
	if err != nil {
		return domain.ScoredImage{}, fmt.Errorf("получение кандидатов: %w", err)
	}
	if len(images) == 0 {
		return domain.ScoredImage{}, domain.ErrNoImages
	}
	best, _ := PickBest(s.ScoreItems(ctx, images))
	s.log.Info().
		Str("image_url", best.Image.ImageURL).
		Float64("score", best.Score).
		Int("votes", best.Image.Votes).
		Int("likes", best.Metrics.LikeCount).
		Int("comments", best.Metrics.CommentsCount).
		Msg("scoring: выбран победитель")
	return best, nil
}
