package graph

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"ig-vote-bot/internal/domain"
	"ig-vote-bot/internal/infra/metrics"
)

// Статусы контейнера.
const (
	StatusFinished   = "FINISHED"
	StatusError      = "ERROR"
	StatusInProgress = "IN_PROGRESS"
	StatusTimeout    = "TIMEOUT"
)

// Типы медиа.
const (
	MediaCarousel = "CAROUSEL"
	MediaStories  = "STORIES"
	MediaReels    = "REELS"
	MediaVideo    = "VIDEO"
)

const (
	defaultPollInterval = time.Second
	defaultPollAttempts = 30
)

// ContainerParams описывает создаваемый контейнер.
type ContainerParams struct {
	Token          string
	AccountID      string
	URL            string
	IsVideo        bool
	Caption        string
	MediaType      string
	IsCarouselItem bool
	ChildrenIDs    []string
}

// CreateMediaContainer создаёт контейнер и возвращает его id.
func (c *Client) CreateMediaContainer(ctx context.Context, p ContainerParams) (string, error) {
	params := url.Values{"access_token": {p.Token}}
	if p.URL != "" {
		if p.IsVideo {
			params.Set("video_url", p.URL)
		} else {
			params.Set("image_url", p.URL)
		}
	}
	if p.Caption != "" {
		params.Set("caption", p.Caption)
	}
	if p.MediaType != "" {
		params.Set("media_type", p.MediaType)
	}
	if p.IsCarouselItem {
		params.Set("is_carousel_item", "true")
	}
	if len(p.ChildrenIDs) > 0 {
		params.Set("children", strings.Join(p.ChildrenIDs, ","))
	}

	resp, err := c.postForm(ctx, "create_container", "/"+p.AccountID+"/media", params)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrMediaCreation, err)
	}
	id := stringField(resp, "id")
	if id == "" {
		return "", fmt.Errorf("%w: ответ без id", domain.ErrMediaCreation)
	}
	c.log.Info().Str("container_id", id).Str("media_type", p.MediaType).Bool("carousel_item", p.IsCarouselItem).Msg("graph: контейнер создан")
	return id, nil
}

// PollParams задаёт опрос статуса контейнера.
type PollParams struct {
	Token       string
	ContainerID string
	Interval    time.Duration
	MaxAttempts int
}

// PollResult — итог опроса: FINISHED, ERROR или TIMEOUT и последний ответ.
type PollResult struct {
	Status   string
	Attempts int
	Last     map[string]any
}

// PollContainerStatus опрашивает status_code до FINISHED или ERROR.
// Временные ошибки запросов логируются и не прерывают опрос.
// Исчерпание попыток возвращает TIMEOUT без ошибки.
func (c *Client) PollContainerStatus(ctx context.Context, p PollParams) (PollResult, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	maxAttempts := p.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultPollAttempts
	}
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, p.ContainerID, url.Values{
		"fields":       {"status_code,status"},
		"access_token": {p.Token},
	}.Encode())

	result := PollResult{Status: StatusTimeout}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result.Attempts = attempt
		resp, err := c.get(ctx, "container_status", endpoint)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			c.log.Warn().Err(err).Str("container_id", p.ContainerID).Int("attempt", attempt).Msg("graph: ошибка опроса статуса, повторяем")
		} else {
			result.Last = resp
			switch code := stringField(resp, "status_code"); code {
			case StatusFinished, StatusError:
				result.Status = code
				metrics.ContainerPollAttempts.Observe(float64(attempt))
				return result, nil
			default:
				c.log.Debug().Str("container_id", p.ContainerID).Str("status", code).Int("attempt", attempt).Msg("graph: контейнер ещё обрабатывается")
			}
		}
		if attempt == maxAttempts {
			break
		}
		if err := c.sleep(ctx, interval); err != nil {
			return result, err
		}
	}
	metrics.ContainerPollAttempts.Observe(float64(result.Attempts))
	return result, nil
}

// PublishParams описывает публикацию контейнера.
type PublishParams struct {
	Token          string
	AccountID      string
	ContainerID    string
	StickerAssetID string
}

// PublishContainer публикует контейнер и возвращает id медиа.
func (c *Client) PublishContainer(ctx context.Context, p PublishParams) (string, error) {
	params := url.Values{
		"creation_id":  {p.ContainerID},
		"access_token": {p.Token},
	}
	if p.StickerAssetID != "" {
		params.Set("sticker_asset_id", p.StickerAssetID)
	}
	resp, err := c.postForm(ctx, "media_publish", "/"+p.AccountID+"/media_publish", params)
	if err != nil {
		return "", fmt.Errorf("%w: контейнер %s: %w", domain.ErrPublish, p.ContainerID, err)
	}
	id := stringField(resp, "id")
	if id == "" {
		return "", fmt.Errorf("%w: контейнер %s: ответ без id", domain.ErrPublish, p.ContainerID)
	}
	c.log.Info().Str("container_id", p.ContainerID).Str("media_id", id).Msg("graph: контейнер опубликован")
	return id, nil
}

// FetchFields читает произвольные поля объекта.
func (c *Client) FetchFields(ctx context.Context, token, id string, fields ...string) (map[string]any, error) {
	if id == "" {
		return nil, errors.New("graph: пустой id объекта")
	}
	endpoint := fmt.Sprintf("%s/%s?%s", c.baseURL, id, url.Values{
		"fields":       {strings.Join(fields, ",")},
		"access_token": {token},
	}.Encode())
	return c.get(ctx, "fetch_fields", endpoint)
}

// Permalink возвращает постоянную ссылку на медиа.
func (c *Client) Permalink(ctx context.Context, token, mediaID string) (string, error) {
	resp, err := c.FetchFields(ctx, token, mediaID, "permalink")
	if err != nil {
		return "", err
	}
	return stringField(resp, "permalink"), nil
}

// FetchMetrics возвращает лайки и комментарии поста.
func (c *Client) FetchMetrics(ctx context.Context, token, mediaID string) (domain.MediaMetrics, error) {
	resp, err := c.FetchFields(ctx, token, mediaID, "like_count", "comments_count")
	if err != nil {
		return domain.MediaMetrics{}, err
	}
	return domain.MediaMetrics{
		LikeCount:     intField(resp, "like_count"),
		CommentsCount: intField(resp, "comments_count"),
	}, nil
}
