package telegram

import (
	"strconv"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ig-vote-bot/internal/infra/metrics"
)

// captionLimit — максимальная длина подписи к медиа в Telegram.
const captionLimit = 1024

// BotAPI — часть клиента Bot API, которой пользуются адаптеры.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	SendMediaGroup(config tgbotapi.MediaGroupConfig) ([]tgbotapi.Message, error)
}

func send(bot BotAPI, op string, chatID int64, c tgbotapi.Chattable) (tgbotapi.Message, error) {
	start := time.Now()
	msg, err := bot.Send(c)
	metrics.ObserveNetworkRequest("telegram_bot", op, strconv.FormatInt(chatID, 10), start, err)
	if err != nil {
		metrics.BotSendErrors.Inc()
	}
	return msg, err
}

func request(bot BotAPI, op string, chatID int64, c tgbotapi.Chattable) error {
	start := time.Now()
	_, err := bot.Request(c)
	metrics.ObserveNetworkRequest("telegram_bot", op, strconv.FormatInt(chatID, 10), start, err)
	return err
}

func fitsCaption(text string) bool {
	return len([]rune(text)) <= captionLimit
}
