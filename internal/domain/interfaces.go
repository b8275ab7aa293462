package domain

import (
	"context"
	"time"
)

// CredentialRepo хранит зашифрованные токены.
type CredentialRepo interface {
	GetToken(ctx context.Context, tokenType TokenType) (ciphertext string, createdAt time.Time, err error)
	UpsertToken(ctx context.Context, tokenType TokenType, ciphertext string, createdAt time.Time) error
}

// VotingRepo управляет пулом кандидатов и проголосовавшими.
type VotingRepo interface {
	ListImages(ctx context.Context) ([]VotingImage, error)
	AddImage(ctx context.Context, image VotingImage) error
	MarkSent(ctx context.Context, at time.Time) error
	HasVoted(ctx context.Context, voterID string) (bool, error)
	// RecordVote атомарно добавляет голосующего и увеличивает счётчик.
	// Повторный голос возвращает ErrDuplicateVote.
	RecordVote(ctx context.Context, voterID, imageURL string) error
	ListFolders(ctx context.Context) ([]string, error)
	// ResetRound удаляет кандидатов, голосующих и ссылки на сообщения.
	ResetRound(ctx context.Context) error
}

// MessageRepo хранит ссылки на сообщения голосования.
type MessageRepo interface {
	SaveMessageRef(ctx context.Context, ref MessageRef) error
	GetMessageRef(ctx context.Context, purpose MessagePurpose) (MessageRef, bool, error)
}

// PromptQueue — очередь промптов для ежедневных постов.
type PromptQueue interface {
	NextPrompt(ctx context.Context) (QueuedPrompt, bool, error)
	RemovePrompt(ctx context.Context, id int64) error
	AddPrompt(ctx context.Context, prompt string) (QueuedPrompt, error)
	ListPrompts(ctx context.Context, limit int) ([]QueuedPrompt, error)
}

// Refiner улучшает промпты и пишет подписи.
type Refiner interface {
	RefinePrompt(ctx context.Context, prompt string) (string, error)
	DefaultPrompt(ctx context.Context) (string, error)
	Caption(ctx context.Context, instruction string) (string, error)
}

// GeneratedImage — результат генерации изображения.
type GeneratedImage struct {
	Data        []byte
	ContentType string
}

// ImageGenerator создаёт изображение по промпту.
type ImageGenerator interface {
	Generate(ctx context.Context, prompt string) (GeneratedImage, error)
}

// CDN загружает изображения и чистит папки.
type CDN interface {
	Upload(ctx context.Context, folder, name string, image GeneratedImage) (string, error)
	DeleteFolder(ctx context.Context, folder string) error
}

// MetricsSource возвращает лайки и комментарии поста.
type MetricsSource interface {
	MediaMetrics(ctx context.Context, mediaID string) (MediaMetrics, error)
}

// Publisher реализует составные протоколы публикации.
type Publisher interface {
	PublishSingle(ctx context.Context, url, caption string) (PublishResult, error)
	PublishCarousel(ctx context.Context, urls []string, caption string) (PublishResult, error)
	PublishStory(ctx context.Context, url, stickerAssetID string) (PublishResult, error)
}

// Notifier доставляет уведомления оператору.
type Notifier interface {
	NotifySuccess(ctx context.Context, report PostReport) error
	NotifyFailure(ctx context.Context, report PostReport) error
	NotifyWinner(ctx context.Context, winner ScoredImage, post PublishResult) error
}

// AlbumPhoto — фото кандидата в альбоме голосования.
type AlbumPhoto struct {
	URL     string
	Caption string
}

// VoteButton — кнопка голоса за кандидата.
type VoteButton struct {
	Label string
	Data  string
}

// VotingMessenger отправляет сообщения голосования в чат.
type VotingMessenger interface {
	ChatID() int64
	SendAlbum(ctx context.Context, photos []AlbumPhoto) (int, error)
	SendKeyboard(ctx context.Context, text string, buttons []VoteButton) (int, error)
	EditCaption(ctx context.Context, messageID int, caption string) error
	DeleteMessage(ctx context.Context, messageID int) error
}

// Locker выдаёт распределённую блокировку.
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}

// Cache используется для простых TTL-хранилищ.
type Cache interface {
	Once(ctx context.Context, key string, ttl time.Duration, fn func() error) error
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
}
