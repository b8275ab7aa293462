package telegram

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"ig-vote-bot/internal/domain"
)

const buttonsPerRow = 3

// Messenger публикует материалы голосования в чат страницы.
type Messenger struct {
	bot    BotAPI
	chatID int64
}

// NewMessenger создаёт отправителя для чата голосования.
func NewMessenger(bot BotAPI, chatID int64) *Messenger {
	return &Messenger{bot: bot, chatID: chatID}
}

// ChatID возвращает чат голосования.
func (m *Messenger) ChatID() int64 { return m.chatID }

// SendAlbum отправляет до 10 фото одним альбомом и возвращает id первого сообщения.
// Одиночное фото уходит через sendPhoto: альбом требует минимум два элемента.
func (m *Messenger) SendAlbum(_ context.Context, photos []domain.AlbumPhoto) (int, error) {
	switch {
	case len(photos) == 0:
		return 0, errors.New("пустой альбом")
	case len(photos) > 10:
		return 0, fmt.Errorf("альбом из %d фото превышает лимит 10", len(photos))
	case len(photos) == 1:
		cfg := tgbotapi.NewPhoto(m.chatID, tgbotapi.FileURL(photos[0].URL))
		cfg.Caption = photos[0].Caption
		msg, err := send(m.bot, "send_photo", m.chatID, cfg)
		if err != nil {
			return 0, err
		}
		return msg.MessageID, nil
	}

	media := make([]interface{}, 0, len(photos))
	for _, p := range photos {
		item := tgbotapi.NewInputMediaPhoto(tgbotapi.FileURL(p.URL))
		item.Caption = p.Caption
		media = append(media, item)
	}
	msgs, err := m.bot.SendMediaGroup(tgbotapi.NewMediaGroup(m.chatID, media))
	if err != nil {
		return 0, fmt.Errorf("sendMediaGroup: %w", err)
	}
	if len(msgs) == 0 {
		return 0, errors.New("sendMediaGroup: пустой ответ")
	}
	return msgs[0].MessageID, nil
}

// SendKeyboard отправляет сообщение с кнопками голосования.
func (m *Messenger) SendKeyboard(_ context.Context, text string, buttons []domain.VoteButton) (int, error) {
	msg := tgbotapi.NewMessage(m.chatID, text)
	if len(buttons) > 0 {
		markup := VoteKeyboard(buttons)
		msg.ReplyMarkup = &markup
	}
	sent, err := send(m.bot, "send_keyboard", m.chatID, msg)
	if err != nil {
		return 0, err
	}
	return sent.MessageID, nil
}

// EditCaption меняет подпись медиа-сообщения.
func (m *Messenger) EditCaption(_ context.Context, messageID int, caption string) error {
	return request(m.bot, "edit_caption", m.chatID, tgbotapi.NewEditMessageCaption(m.chatID, messageID, caption))
}

// DeleteMessage удаляет сообщение.
func (m *Messenger) DeleteMessage(_ context.Context, messageID int) error {
	return request(m.bot, "delete_message", m.chatID, tgbotapi.NewDeleteMessage(m.chatID, messageID))
}

// VoteKeyboard раскладывает кнопки голосования по рядам.
func VoteKeyboard(buttons []domain.VoteButton) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	for start := 0; start < len(buttons); start += buttonsPerRow {
		end := min(start+buttonsPerRow, len(buttons))
		row := make([]tgbotapi.InlineKeyboardButton, 0, end-start)
		for _, b := range buttons[start:end] {
			row = append(row, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
		}
		rows = append(rows, tgbotapi.NewInlineKeyboardRow(row...))
	}
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}
