package queue

import (
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"ig-vote-bot/internal/domain"
)

// Open выбирает реализацию очереди по драйверу rabbitmq или redis.
// Возвращаемая функция освобождает ресурсы очереди.
func Open(driver, rabbitURL string, redisClient *redis.Client, key string) (domain.PostQueue, func(), error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "rabbitmq":
		q, err := NewRabbitPostQueue(rabbitURL, key)
		if err != nil {
			return nil, nil, err
		}
		return q, func() { _ = q.Close() }, nil
	case "redis":
		if redisClient == nil {
			return nil, nil, fmt.Errorf("%w: QUEUE_DRIVER=redis требует REDIS_ADDR", domain.ErrConfiguration)
		}
		return NewRedisPostQueue(redisClient, key), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("%w: неизвестный QUEUE_DRIVER %q", domain.ErrConfiguration, driver)
	}
}
