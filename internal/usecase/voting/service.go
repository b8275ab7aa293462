package voting

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ig-vote-bot/internal/domain"
	"ig-vote-bot/internal/infra/metrics"
)

// Действия оркестратора.
const (
	ActionVoting  = "voting"
	ActionPublish = "publish"
	ActionIdle    = "idle"
	ActionBusy    = "busy"
)

// CallbackPrefix — префикс callback-данных кнопки голоса.
const CallbackPrefix = "vote:"

const maxBatchSize = 10

// Scorer выбирает победителя.
type Scorer interface {
	GetBestPhoto(ctx context.Context) (domain.ScoredImage, error)
}

// CaptionWriter пишет подпись к посту победителя.
type CaptionWriter interface {
	Caption(ctx context.Context, instruction string) (string, error)
}

// Announcer объявляет победителя оператору.
type Announcer interface {
	Winner(ctx context.Context, winner domain.ScoredImage, post domain.PublishResult)
}

// FolderCleaner удаляет папку CDN.
type FolderCleaner interface {
	DeleteFolder(ctx context.Context, folder string) error
}

// Deps — зависимости оркестратора.
type Deps struct {
	Repo      domain.VotingRepo
	Messages  domain.MessageRepo
	Messenger domain.VotingMessenger
	Scorer    Scorer
	Publisher domain.Publisher
	Captions  CaptionWriter
	Announcer Announcer
	CDN       FolderCleaner
	Locker    domain.Locker
}

// Config — настройки раунда.
type Config struct {
	BatchSize           int
	OpenText            string
	ClosedText          string
	OpenStoryURL        string
	CloseStoryURL       string
	WinnerCoverURL      string
	WinnerCaptionPrompt string
	CleanupCDN          bool
	LockKey             string
	LockTTL             time.Duration
}

// RunResult — итог запуска оркестратора.
type RunResult struct {
	Action     string  `json:"action"`
	Candidates int     `json:"candidates,omitempty"`
	Winner     string  `json:"winner,omitempty"`
	Score      float64 `json:"score,omitempty"`
	MediaID    string  `json:"media_id,omitempty"`
	Permalink  string  `json:"permalink,omitempty"`
}

// Service управляет жизненным циклом раунда: открытие, голоса, закрытие.
type Service struct {
	deps Deps
	cfg  Config
	now  func() time.Time
	log  zerolog.Logger
}

// NewService создаёт оркестратор.
func NewService(deps Deps, cfg Config, logger zerolog.Logger) *Service {
	if cfg.BatchSize <= 0 || cfg.BatchSize > maxBatchSize {
		cfg.BatchSize = maxBatchSize
	}
	if cfg.LockKey == "" {
		cfg.LockKey = "voting:run"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &Service{deps: deps, cfg: cfg, now: time.Now, log: logger}
}

// Run открывает раунд, если кандидаты ещё не отправлены, иначе закрывает его.
func (s *Service) Run(ctx context.Context) (res RunResult, err error) {
	if s.deps.Locker != nil {
		release, ok, lockErr := s.deps.Locker.Lock(ctx, s.cfg.LockKey, s.cfg.LockTTL)
		if lockErr != nil {
			return RunResult{}, fmt.Errorf("блокировка раунда: %w", lockErr)
		}
		if !ok {
			s.log.Info().Msg("voting: раунд уже обрабатывается другим запуском")
			return RunResult{Action: ActionBusy}, nil
		}
		defer release()
	}

	images, err := s.deps.Repo.ListImages(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("получение кандидатов: %w", err)
	}
	if len(images) == 0 {
		s.log.Info().Msg("voting: пул пуст, нечего делать")
		return RunResult{Action: ActionIdle}, nil
	}

	for _, img := range images {
		if img.Sent() {
			res, err = s.Close(ctx)
			metrics.IncRound(ActionPublish, err)
			return res, err
		}
	}
	res, err = s.Open(ctx, images)
	metrics.IncRound(ActionVoting, err)
	return res, err
}

// Open рассылает кандидатов с кнопками голосования и помечает их отправленными.
func (s *Service) Open(ctx context.Context, images []domain.VotingImage) (RunResult, error) {
	if len(images) == 0 {
		return RunResult{Action: ActionIdle}, nil
	}
	if s.cfg.OpenStoryURL != "" {
		s.bestEffort(ctx, "open_story", func(ctx context.Context) error {
			_, err := s.deps.Publisher.PublishStory(ctx, s.cfg.OpenStoryURL, "")
			return err
		})
	}

	chatID := s.deps.Messenger.ChatID()
	firstMediaID := 0
	for start := 0; start < len(images); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(images))
		photos := make([]domain.AlbumPhoto, 0, end-start)
		for i := start; i < end; i++ {
			photos = append(photos, domain.AlbumPhoto{URL: images[i].ImageURL, Caption: "#" + strconv.Itoa(i+1)})
		}
		msgID, err := s.deps.Messenger.SendAlbum(ctx, photos)
		if err != nil {
			return RunResult{}, fmt.Errorf("отправка кандидатов %d-%d: %w", start+1, end, err)
		}
		if firstMediaID == 0 {
			firstMediaID = msgID
		}
	}

	buttons := make([]domain.VoteButton, 0, len(images))
	for i, img := range images {
		buttons = append(buttons, domain.VoteButton{
			Label: "Vota #" + strconv.Itoa(i+1),
			Data:  CallbackPrefix + domain.ImageHash(img.ImageURL),
		})
	}
	keyboardID, err := s.deps.Messenger.SendKeyboard(ctx, s.cfg.OpenText, buttons)
	if err != nil {
		return RunResult{}, fmt.Errorf("отправка клавиатуры: %w", err)
	}

	refs := []domain.MessageRef{
		{Purpose: domain.PurposeVotingMedia, ChatID: chatID, MessageID: firstMediaID},
		{Purpose: domain.PurposeVotingKeyboard, ChatID: chatID, MessageID: keyboardID},
	}
	for _, ref := range refs {
		if err := s.deps.Messages.SaveMessageRef(ctx, ref); err != nil {
			return RunResult{}, err
		}
	}
	if err := s.deps.Repo.MarkSent(ctx, s.now().UTC()); err != nil {
		return RunResult{}, err
	}
	s.log.Info().Int("candidates", len(images)).Int("keyboard_id", keyboardID).Msg("voting: голосование открыто")
	return RunResult{Action: ActionVoting, Candidates: len(images)}, nil
}

// Close выбирает победителя, публикует его и сбрасывает состояние раунда.
// Сбой выбора или публикации прерывает закрытие до очистки.
func (s *Service) Close(ctx context.Context) (RunResult, error) {
	if s.cfg.CloseStoryURL != "" {
		s.bestEffort(ctx, "close_story", func(ctx context.Context) error {
			_, err := s.deps.Publisher.PublishStory(ctx, s.cfg.CloseStoryURL, "")
			return err
		})
	}

	winner, err := s.deps.Scorer.GetBestPhoto(ctx)
	if err != nil {
		return RunResult{}, fmt.Errorf("выбор победителя: %w", err)
	}
	caption := s.winnerCaption(ctx, winner)

	var post domain.PublishResult
	if s.cfg.WinnerCoverURL != "" {
		post, err = s.deps.Publisher.PublishCarousel(ctx, []string{s.cfg.WinnerCoverURL, winner.Image.ImageURL}, caption)
	} else {
		post, err = s.deps.Publisher.PublishSingle(ctx, winner.Image.ImageURL, caption)
	}
	if err != nil {
		return RunResult{}, fmt.Errorf("публикация победителя: %w", err)
	}
	s.log.Info().Str("media_id", post.MediaID).Str("permalink", post.Permalink).Msg("voting: победитель опубликован")
	// Пост уже в ленте: отмена вызывающего не должна оставить пул неочищенным.
	ctx = context.WithoutCancel(ctx)

	s.bestEffort(ctx, "winner_story", func(ctx context.Context) error {
		_, err := s.deps.Publisher.PublishStory(ctx, winner.Image.ImageURL, post.MediaID)
		return err
	})
	if s.deps.Announcer != nil {
		s.deps.Announcer.Winner(ctx, winner, post)
	}
	s.closeMessages(ctx)

	if err := s.cleanup(ctx); err != nil {
		return RunResult{}, err
	}
	return RunResult{
		Action:    ActionPublish,
		Winner:    winner.Image.ImageURL,
		Score:     winner.Score,
		MediaID:   post.MediaID,
		Permalink: post.Permalink,
	}, nil
}

// CastVote учитывает голос по короткому хэшу из кнопки.
func (s *Service) CastVote(ctx context.Context, voterID, hash string) (domain.VotingImage, error) {
	return s.vote(ctx, voterID, func(img domain.VotingImage) bool {
		return domain.ImageHash(img.ImageURL) == hash
	})
}

// VoteByURL учитывает голос по полному URL изображения.
func (s *Service) VoteByURL(ctx context.Context, voterID, imageURL string) (domain.VotingImage, error) {
	return s.vote(ctx, voterID, func(img domain.VotingImage) bool {
		return img.ImageURL == imageURL
	})
}

func (s *Service) vote(ctx context.Context, voterID string, match func(domain.VotingImage) bool) (domain.VotingImage, error) {
	voterID = strings.TrimSpace(voterID)
	if voterID == "" {
		return domain.VotingImage{}, errors.New("пустой идентификатор голосующего")
	}
	voted, err := s.deps.Repo.HasVoted(ctx, voterID)
	if err != nil {
		return domain.VotingImage{}, err
	}
	if voted {
		metrics.IncVote("duplicate")
		return domain.VotingImage{}, domain.ErrDuplicateVote
	}

	images, err := s.deps.Repo.ListImages(ctx)
	if err != nil {
		return domain.VotingImage{}, err
	}
	var target *domain.VotingImage
	for i := range images {
		if match(images[i]) {
			target = &images[i]
			break
		}
	}
	if target == nil {
		metrics.IncVote("not_found")
		return domain.VotingImage{}, domain.ErrImageNotFound
	}
	if !target.Sent() {
		metrics.IncVote("not_found")
		return domain.VotingImage{}, fmt.Errorf("%w: голосование не открыто", domain.ErrImageNotFound)
	}

	if err := s.deps.Repo.RecordVote(ctx, voterID, target.ImageURL); err != nil {
		if errors.Is(err, domain.ErrDuplicateVote) {
			metrics.IncVote("duplicate")
			return domain.VotingImage{}, domain.ErrDuplicateVote
		}
		metrics.IncVote("error")
		return domain.VotingImage{}, err
	}
	metrics.IncVote("accepted")
	target.Votes++
	s.log.Debug().Str("voter", voterID).Str("image_url", target.ImageURL).Msg("voting: голос учтён")
	return *target, nil
}

func (s *Service) winnerCaption(ctx context.Context, winner domain.ScoredImage) string {
	fallback := fmt.Sprintf("🏆 L'immagine più votata della settimana: %d voti, %d like e %d commenti. Grazie a tutti per aver partecipato!",
		winner.Image.Votes, winner.Metrics.LikeCount, winner.Metrics.CommentsCount)
	if s.deps.Captions == nil || s.cfg.WinnerCaptionPrompt == "" {
		return fallback
	}
	instruction := strings.NewReplacer(
		"{votes}", strconv.Itoa(winner.Image.Votes),
		"{likes}", strconv.Itoa(winner.Metrics.LikeCount),
		"{comments}", strconv.Itoa(winner.Metrics.CommentsCount),
	).Replace(s.cfg.WinnerCaptionPrompt)
	caption, err := s.deps.Captions.Caption(ctx, instruction)
	if err != nil || strings.TrimSpace(caption) == "" {
		s.log.Warn().Err(err).Msg("voting: подпись не сгенерирована, используем шаблон")
		return fallback
	}
	return caption
}

func (s *Service) closeMessages(ctx context.Context) {
	if ref, ok, err := s.deps.Messages.GetMessageRef(ctx, domain.PurposeVotingMedia); err != nil {
		s.log.Warn().Err(err).Msg("voting: не удалось прочитать сообщение с кандидатами")
	} else if ok {
		s.bestEffort(ctx, "edit_media", func(ctx context.Context) error {
			return s.deps.Messenger.EditCaption(ctx, ref.MessageID, s.cfg.ClosedText)
		})
	}
	if ref, ok, err := s.deps.Messages.GetMessageRef(ctx, domain.PurposeVotingKeyboard); err != nil {
		s.log.Warn().Err(err).Msg("voting: не удалось прочитать сообщение с клавиатурой")
	} else if ok {
		s.bestEffort(ctx, "delete_keyboard", func(ctx context.Context) error {
			return s.deps.Messenger.DeleteMessage(ctx, ref.MessageID)
		})
	}
}

func (s *Service) cleanup(ctx context.Context) error {
	if s.cfg.CleanupCDN && s.deps.CDN != nil {
		folders, err := s.deps.Repo.ListFolders(ctx)
		if err != nil {
			s.log.Warn().Err(err).Msg("voting: не удалось получить папки CDN")
		}
		for _, folder := range folders {
			s.bestEffort(ctx, "delete_folder", func(ctx context.Context) error {
				return s.deps.CDN.DeleteFolder(ctx, folder)
			})
		}
	}
	if err := s.deps.Repo.ResetRound(ctx); err != nil {
		return fmt.Errorf("сброс раунда: %w", err)
	}
	s.log.Info().Msg("voting: состояние раунда очищено")
	return nil
}

func (s *Service) bestEffort(ctx context.Context, step string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		s.log.Warn().Err(err).Str("step", step).Msg("voting: побочный шаг не выполнен")
	}
}

// AddImage добавляет кандидата в пул следующего раунда.
func (s *Service) AddImage(ctx context.Context, image domain.VotingImage) error {
	if strings.TrimSpace(image.ImageURL) == "" {
		return errors.New("пустой URL кандидата")
	}
	return s.deps.Repo.AddImage(ctx, image)
}
