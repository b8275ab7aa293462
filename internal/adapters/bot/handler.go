package bot

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"ig-vote-bot/internal/adapters/telegram"
	"ig-vote-bot/internal/domain"
	"ig-vote-bot/internal/infra/metrics"
	"ig-vote-bot/internal/usecase/voting"
)

// updateTTL — сколько помним обработанные update_id.
const updateTTL = 24 * time.Hour

// Ответы на нажатие кнопки голоса.
const (
	AnswerAccepted  = "✅ Voto registrato, grazie!"
	AnswerDuplicate = "Hai già votato in questo turno."
	AnswerNotFound  = "Votazione chiusa o immagine non trovata."
	AnswerFailed    = "Errore, riprova più tardi."
)

// Voter учитывает голос по хэшу изображения.
type Voter interface {
	CastVote(ctx context.Context, voterID, hash string) (domain.VotingImage, error)
}

// Handler обслуживает вебхук бота.
type Handler struct {
	bot   telegram.BotAPI
	log   zerolog.Logger
	votes Voter
	seen  domain.Cache
}

// NewHandler создаёт обработчик. seen может быть nil: тогда повторы апдейтов не отсекаются.
func NewHandler(bot telegram.BotAPI, log zerolog.Logger, votes Voter, seen domain.Cache) *Handler {
	return &Handler{bot: bot, log: log, votes: votes, seen: seen}
}

// HandleUpdate обрабатывает входящий апдейт. Повторная доставка того же update_id игнорируется.
func (h *Handler) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if h.seen == nil || upd.UpdateID == 0 {
		h.dispatch(ctx, upd)
		return
	}
	key := "tg:update:" + strconv.Itoa(upd.UpdateID)
	err := h.seen.Once(ctx, key, updateTTL, func() error {
		h.dispatch(ctx, upd)
		return nil
	})
	if err != nil {
		h.log.Warn().Err(err).Int("update_id", upd.UpdateID).Msg("не удалось проверить повтор апдейта")
		h.dispatch(ctx, upd)
	}
}

func (h *Handler) dispatch(ctx context.Context, upd tgbotapi.Update) {
	if upd.CallbackQuery != nil {
		h.handleCallback(ctx, upd.CallbackQuery)
	} else if upd.Message != nil {
		h.handleMessage(upd.Message)
	}
}

func (h *Handler) handleMessage(msg *tgbotapi.Message) {
	text := strings.TrimSpace(msg.Text)
	switch {
	case strings.HasPrefix(text, "/start"), strings.HasPrefix(text, "/help"):
		h.reply(msg.Chat.ID, helpMessage())
	}
}

func (h *Handler) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	answer := ""
	if hash, ok := strings.CutPrefix(cb.Data, voting.CallbackPrefix); ok && cb.From != nil {
		answer = h.vote(ctx, strconv.FormatInt(cb.From.ID, 10), hash)
	}
	var userID int64
	if cb.From != nil {
		userID = cb.From.ID
	}
	start := time.Now()
	_, err := h.bot.Request(tgbotapi.NewCallback(cb.ID, answer))
	metrics.ObserveNetworkRequest("telegram_bot", "answer_callback", strconv.FormatInt(userID, 10), start, err)
	if err != nil {
		h.log.Error().Err(err).Msg("не удалось ответить на callback")
	}
}

func (h *Handler) vote(ctx context.Context, voterID, hash string) string {
	_, err := h.votes.CastVote(ctx, voterID, hash)
	switch {
	case err == nil:
		return AnswerAccepted
	case errors.Is(err, domain.ErrDuplicateVote):
		return AnswerDuplicate
	case errors.Is(err, domain.ErrImageNotFound):
		return AnswerNotFound
	default:
		h.log.Error().Err(err).Str("voter", voterID).Msg("не удалось учесть голос")
		return AnswerFailed
	}
}

func (h *Handler) reply(chatID int64, text string) {
	for _, part := range telegram.SplitMessage(text) {
		start := time.Now()
		_, err := h.bot.Send(tgbotapi.NewMessage(chatID, part))
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(chatID, 10), start, err)
		if err != nil {
			h.log.Error().Err(err).Msg("не удалось отправить сообщение")
			return
		}
	}
}

func helpMessage() string {
	return strings.Join([]string{
		"👋 Ogni settimana scegliamo insieme l'immagine migliore.",
		"Quando la votazione è aperta, premi il pulsante \"Vota #N\" sotto le foto.",
		"Puoi votare una sola volta per turno.",
	}, "\n")
}
