package graph

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ig-vote-bot/internal/domain"
	"ig-vote-bot/internal/infra/metrics"
)

const maxCarouselItems = 10

// TokenSource возвращает актуальный токен, продлевая его при необходимости.
type TokenSource interface {
	Token(ctx context.Context, tokenType domain.TokenType) (string, error)
}

// MediaAPI — примитивы, из которых собираются протоколы публикации.
type MediaAPI interface {
	CreateMediaContainer(ctx context.Context, p ContainerParams) (string, error)
	PollContainerStatus(ctx context.Context, p PollParams) (PollResult, error)
	PublishContainer(ctx context.Context, p PublishParams) (string, error)
	Permalink(ctx context.Context, token, mediaID string) (string, error)
	FetchMetrics(ctx context.Context, token, mediaID string) (domain.MediaMetrics, error)
}

var (
	_ domain.Publisher     = (*Publisher)(nil)
	_ domain.MetricsSource = (*Publisher)(nil)
)

// Publisher реализует одиночную публикацию, карусель и сторис для одной страницы.
type Publisher struct {
	api          MediaAPI
	tokens       TokenSource
	accountID    string
	pollInterval time.Duration
	pollAttempts int
	log          zerolog.Logger
}

// NewPublisher создаёт публикатор для аккаунта accountID.
func NewPublisher(api MediaAPI, tokens TokenSource, accountID string, pollInterval time.Duration, pollAttempts int, logger zerolog.Logger) *Publisher {
	return &Publisher{
		api:          api,
		tokens:       tokens,
		accountID:    accountID,
		pollInterval: pollInterval,
		pollAttempts: pollAttempts,
		log:          logger,
	}
}

// PublishSingle публикует одно изображение с подписью.
func (p *Publisher) PublishSingle(ctx context.Context, url, caption string) (res domain.PublishResult, err error) {
	start := time.Now()
	defer func() { metrics.ObservePublish("single", start, err) }()

	token, err := p.tokens.Token(ctx, domain.TokenInstagram)
	if err != nil {
		return domain.PublishResult{}, err
	}
	containerID, err := p.api.CreateMediaContainer(ctx, ContainerParams{Token: token, AccountID: p.accountID, URL: url, Caption: caption})
	if err != nil {
		return domain.PublishResult{}, err
	}
	return p.finish(ctx, token, containerID, "")
}

// PublishCarousel публикует карусель: дочерние контейнеры создаются по порядку.
func (p *Publisher) PublishCarousel(ctx context.Context, urls []string, caption string) (res domain.PublishResult, err error) {
	start := time.Now()
	defer func() { metrics.ObservePublish("carousel", start, err) }()

	if len(urls) < 2 || len(urls) > maxCarouselItems {
		return domain.PublishResult{}, fmt.Errorf("%w: карусель из %d элементов, допустимо от 2 до %d", domain.ErrMediaCreation, len(urls), maxCarouselItems)
	}
	token, err := p.tokens.Token(ctx, domain.TokenInstagram)
	if err != nil {
		return domain.PublishResult{}, err
	}
	children := make([]string, 0, len(urls))
	for i, url := range urls {
		id, err := p.api.CreateMediaContainer(ctx, ContainerParams{Token: token, AccountID: p.accountID, URL: url, IsCarouselItem: true})
		if err != nil {
			return domain.PublishResult{}, fmt.Errorf("элемент карусели %d: %w", i+1, err)
		}
		children = append(children, id)
	}
	parentID, err := p.api.CreateMediaContainer(ctx, ContainerParams{
		Token:       token,
		AccountID:   p.accountID,
		Caption:     caption,
		MediaType:   MediaCarousel,
		ChildrenIDs: children,
	})
	if err != nil {
		return domain.PublishResult{}, fmt.Errorf("контейнер карусели: %w", err)
	}
	return p.finish(ctx, token, parentID, "")
}

// PublishStory публикует сторис, опционально со стикером-ссылкой на пост.
func (p *Publisher) PublishStory(ctx context.Context, url, stickerAssetID string) (res domain.PublishResult, err error) {
	start := time.Now()
	defer func() { metrics.ObservePublish("story", start, err) }()

	token, err := p.tokens.Token(ctx, domain.TokenInstagram)
	if err != nil {
		return domain.PublishResult{}, err
	}
	containerID, err := p.api.CreateMediaContainer(ctx, ContainerParams{Token: token, AccountID: p.accountID, URL: url, MediaType: MediaStories})
	if err != nil {
		return domain.PublishResult{}, err
	}
	return p.finish(ctx, token, containerID, stickerAssetID)
}

// MediaMetrics реализует domain.MetricsSource.
func (p *Publisher) MediaMetrics(ctx context.Context, mediaID string) (domain.MediaMetrics, error) {
	token, err := p.tokens.Token(ctx, domain.TokenInstagram)
	if err != nil {
		return domain.MediaMetrics{}, err
	}
	return p.api.FetchMetrics(ctx, token, mediaID)
}

func (p *Publisher) finish(ctx context.Context, token, containerID, stickerAssetID string) (domain.PublishResult, error) {
	poll, err := p.api.PollContainerStatus(ctx, PollParams{
		Token:       token,
		ContainerID: containerID,
		Interval:    p.pollInterval,
		MaxAttempts: p.pollAttempts,
	})
	if err != nil {
		return domain.PublishResult{}, fmt.Errorf("опрос контейнера %s: %w", containerID, err)
	}
	switch poll.Status {
	case StatusFinished:
	case StatusTimeout:
		return domain.PublishResult{}, fmt.Errorf("%w: контейнер %s после %d попыток", domain.ErrTimeout, containerID, poll.Attempts)
	default:
		return domain.PublishResult{}, fmt.Errorf("%w: контейнер %s в статусе %s: %v", domain.ErrPublish, containerID, poll.Status, poll.Last["status"])
	}

	mediaID, err := p.api.PublishContainer(ctx, PublishParams{
		Token:          token,
		AccountID:      p.accountID,
		ContainerID:    containerID,
		StickerAssetID: stickerAssetID,
	})
	if err != nil {
		return domain.PublishResult{}, err
	}
	res := domain.PublishResult{ContainerID: containerID, MediaID: mediaID}
	link, err := p.api.Permalink(ctx, token, mediaID)
	if err != nil {
		p.log.Warn().Err(err).Str("media_id", mediaID).Msg("graph: не удалось получить permalink")
		return res, nil
	}
	res.Permalink = link
	return res, nil
}
