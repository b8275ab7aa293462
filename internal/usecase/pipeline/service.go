package pipeline

import (
	"context"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"ig-vote-bot/internal/domain"
	"ig-vote-bot/internal/infra/metrics"
)

// Uploader загружает изображение на CDN.
type Uploader interface {
	Upload(ctx context.Context, folder, name string, image domain.GeneratedImage) (string, error)
}

// SinglePublisher публикует одиночный пост.
type SinglePublisher interface {
	PublishSingle(ctx context.Context, url, caption string) (domain.PublishResult, error)
}

// CandidatePool принимает опубликованные изображения в голосование.
type CandidatePool interface {
	AddImage(ctx context.Context, image domain.VotingImage) error
}

// Reporter доставляет отчёт оператору.
type Reporter interface {
	Success(ctx context.Context, report domain.PostReport)
	Failure(ctx context.Context, report domain.PostReport)
}

// Deps — зависимости пайплайна.
type Deps struct {
	Prompts   domain.PromptQueue
	Refiner   domain.Refiner
	Images    domain.ImageGenerator
	CDN       Uploader
	Publisher SinglePublisher
	Pool      CandidatePool
	Reporter  Reporter
}

// Config — настройки ежедневного поста.
type Config struct {
	CaptionInstruction string
	MaxHashtags        int
	FolderPrefix       string
	Location           *time.Location
}

// Service выполняет ежедневную публикацию: промпт, картинка, CDN, Instagram, пул голосования.
type Service struct {
	deps Deps
	cfg  Config
	now  func() time.Time
	log  zerolog.Logger
}

// NewService создаёт пайплайн.
func NewService(deps Deps, cfg Config, logger zerolog.Logger) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.FolderPrefix == "" {
		cfg.FolderPrefix = "daily-posts"
	}
	return &Service{deps: deps, cfg: cfg, now: time.Now, log: logger}
}

// Execute обрабатывает задачу на публикацию. Ошибка означает, что пост не вышел.
func (s *Service) Execute(ctx context.Context, job domain.PostJob) (domain.PostReport, error) {
	start := time.Now()
	log := s.log.With().Str("job_id", job.ID).Int("sequence", job.Sequence).Logger()
	report, err := s.run(ctx, log)
	if err != nil {
		report.Err = err
		metrics.IncPostJob("failed")
		log.Error().Err(err).Dur("took", time.Since(start)).Msg("pipeline: публикация не удалась")
		s.deps.Reporter.Failure(ctx, report)
		return report, err
	}
	metrics.IncPostJob("success")
	log.Info().Str("permalink", report.Permalink).Dur("took", time.Since(start)).Msg("pipeline: пост опубликован")
	s.deps.Reporter.Success(ctx, report)
	return report, nil
}

func (s *Service) run(ctx context.Context, log zerolog.Logger) (domain.PostReport, error) {
	var report domain.PostReport

	queued, ok, err := s.deps.Prompts.NextPrompt(ctx)
	if err != nil {
		return report, fmt.Errorf("очередь промптов: %w", err)
	}
	if !ok {
		log.Info().Msg("pipeline: очередь пуста, генерируем промпт")
		text, err := s.deps.Refiner.DefaultPrompt(ctx)
		if err != nil {
			return report, fmt.Errorf("промпт по умолчанию: %w", err)
		}
		queued = domain.QueuedPrompt{Prompt: text}
	}
	report.OriginalPrompt = queued.Prompt

	refined, err := s.deps.Refiner.RefinePrompt(ctx, queued.Prompt)
	if err != nil {
		return report, fmt.Errorf("уточнение промпта: %w", err)
	}
	report.RefinedPrompt = refined

	image, err := s.deps.Images.Generate(ctx, refined)
	if err != nil {
		return report, fmt.Errorf("генерация изображения: %w", err)
	}

	folder := DailyFolder(s.cfg.FolderPrefix, s.now().In(s.cfg.Location))
	url, err := s.deps.CDN.Upload(ctx, folder, "", image)
	if err != nil {
		return report, fmt.Errorf("загрузка на CDN: %w", err)
	}
	report.ImageURL = url

	report.Caption = s.caption(ctx, log, refined)

	post, err := s.deps.Publisher.PublishSingle(ctx, url, report.Caption)
	if err != nil {
		return report, fmt.Errorf("публикация: %w", err)
	}
	report.Permalink = post.Permalink

	// Пост уже опубликован: ошибки ниже не возвращаются, отмена ctx их не прерывает.
	ctx = context.WithoutCancel(ctx)
	if err := s.deps.Pool.AddImage(ctx, domain.VotingImage{ImageURL: url, InstagramPostID: post.MediaID, Folder: folder}); err != nil {
		log.Error().Err(err).Str("image_url", url).Msg("pipeline: не удалось добавить кандидата в голосование")
	}
	if queued.ID != 0 {
		if err := s.deps.Prompts.RemovePrompt(ctx, queued.ID); err != nil {
			log.Error().Err(err).Int64("prompt_id", queued.ID).Msg("pipeline: не удалось удалить промпт")
		}
	}
	return report, nil
}

func (s *Service) caption(ctx context.Context, log zerolog.Logger, refined string) string {
	instruction := CaptionInstruction(s.cfg.CaptionInstruction, refined, s.cfg.MaxHashtags)
	caption, err := s.deps.Refiner.Caption(ctx, instruction)
	if err != nil {
		log.Warn().Err(err).Msg("pipeline: подпись не сгенерирована, используем промпт")
		return refined
	}
	return caption
}

// CaptionInstruction подставляет промпт и лимит хэштегов в шаблон {prompt}/{N}.
// Если плейсхолдера {prompt} нет, промпт дописывается в конец.
func CaptionInstruction(template, prompt string, maxHashtags int) string {
	out := strings.ReplaceAll(template, "{N}", strconv.Itoa(maxHashtags))
	if strings.Contains(out, "{prompt}") {
		return strings.ReplaceAll(out, "{prompt}", prompt)
	}
	return strings.TrimSpace(out + " " + prompt)
}

// DailyFolder возвращает папку ежедневных постов за дату.
func DailyFolder(prefix string, day time.Time) string {
	return path.Join(strings.Trim(prefix, "/"), day.Format("2006-01-02"))
}
