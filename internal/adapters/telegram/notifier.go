package telegram

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ig-vote-bot/internal/domain"
)

// Notifier отправляет отчёты оператору в Telegram.
type Notifier struct {
	bot             BotAPI
	chatID          int64
	successTemplate string
	failureTemplate string
}

// NewNotifier создаёт уведомитель оператора.
func NewNotifier(bot BotAPI, chatID int64, successTemplate, failureTemplate string) *Notifier {
	return &Notifier{bot: bot, chatID: chatID, successTemplate: successTemplate, failureTemplate: failureTemplate}
}

// NotifySuccess сообщает об опубликованном посте: {0} промпт, {1} уточнённый промпт, {2} подпись, {3} ссылка.
func (n *Notifier) NotifySuccess(ctx context.Context, report domain.PostReport) error {
	text := domain.FormatTemplate(n.successTemplate, report.OriginalPrompt, report.RefinedPrompt, report.Caption, report.Permalink)
	return n.deliver(ctx, report.ImageURL, text)
}

// NotifyFailure сообщает об ошибке: {0} промпт, {1} уточнённый промпт, {2} ошибка.
func (n *Notifier) NotifyFailure(ctx context.Context, report domain.PostReport) error {
	errText := "unknown error"
	if report.Err != nil {
		errText = report.Err.Error()
	}
	text := domain.FormatTemplate(n.failureTemplate, report.OriginalPrompt, report.RefinedPrompt, errText)
	return n.deliver(ctx, report.ImageURL, text)
}

// NotifyWinner объявляет победителя голосования.
func (n *Notifier) NotifyWinner(ctx context.Context, winner domain.ScoredImage, post domain.PublishResult) error {
	return n.deliver(ctx, winner.Image.ImageURL, WinnerText(winner, post))
}

// WinnerText формирует объявление победителя.
func WinnerText(winner domain.ScoredImage, post domain.PublishResult) string {
	text := fmt.Sprintf("🏆 Vincitore #%d\nVoti: %d\nLike: %d\nCommenti: %d\nPunteggio: %s",
		winner.Position+1,
		winner.Image.Votes,
		winner.Metrics.LikeCount,
		winner.Metrics.CommentsCount,
		strconv.FormatFloat(winner.Score, 'f', -1, 64),
	)
	if post.Permalink != "" {
		text += "\n\n" + post.Permalink
	}
	return text
}

func (n *Notifier) deliver(_ context.Context, imageURL, text string) error {
	if imageURL != "" {
		photo := tgbotapi.NewPhoto(n.chatID, tgbotapi.FileURL(imageURL))
		if fitsCaption(text) {
			photo.Caption = text
			_, err := send(n.bot, "send_photo", n.chatID, photo)
			return err
		}
		if _, err := send(n.bot, "send_photo", n.chatID, photo); err != nil {
			return err
		}
	}
	for _, part := range SplitMessage(text) {
		if _, err := send(n.bot, "send_message", n.chatID, tgbotapi.NewMessage(n.chatID, part)); err != nil {
			return err
		}
	}
	return nil
}
