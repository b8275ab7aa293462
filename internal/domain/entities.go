package domain

import "time"

// TokenType определяет вид хранимого секрета.
type TokenType string

const (
	// TokenInstagram — long-lived токен Graph API.
	TokenInstagram TokenType = "INSTAGRAM"
	// TokenWhatsApp — токен WhatsApp Cloud API.
	TokenWhatsApp TokenType = "WHATSAPP"
)

// Valid сообщает, поддерживается ли тип токена.
func (t TokenType) Valid() bool {
	return t == TokenInstagram || t == TokenWhatsApp
}

// Credential содержит расшифрованный токен и время его выпуска.
type Credential struct {
	Type      TokenType
	Token     string
	CreatedAt time.Time
}

// TokenExchange — результат обмена или продления токена.
type TokenExchange struct {
	AccessToken string
	TokenType   string
	ExpiresIn   int
}

// VotingImage описывает кандидата текущего раунда голосования.
type VotingImage struct {
	ImageURL        string
	InstagramPostID string
	Votes           int
	SentDate        *time.Time
	Folder          string
	CreatedAt       time.Time
}

// Sent сообщает, было ли изображение уже отправлено на голосование.
func (i VotingImage) Sent() bool {
	return i.SentDate != nil
}

// VotingUser фиксирует, что участник уже проголосовал в раунде.
type VotingUser struct {
	ID        int64
	VoterID   string
	CreatedAt time.Time
}

// MessagePurpose задаёт назначение отслеживаемого сообщения Telegram.
type MessagePurpose string

const (
	// PurposeVotingKeyboard — сообщение с кнопками голосования.
	PurposeVotingKeyboard MessagePurpose = "voting_keyboard"
	// PurposeVotingMedia — первое сообщение альбома с кандидатами.
	PurposeVotingMedia MessagePurpose = "voting_media"
)

// MessageRef хранит ссылку на сообщение, которое нужно изменить при закрытии раунда.
type MessageRef struct {
	Purpose   MessagePurpose
	ChatID    int64
	MessageID int
	CreatedAt time.Time
}

// MediaMetrics содержит показатели поста Instagram.
type MediaMetrics struct {
	LikeCount     int
	CommentsCount int
}

// ScoredImage — кандидат с посчитанным рейтингом.
type ScoredImage struct {
	Image    VotingImage
	Metrics  MediaMetrics
	Score    float64
	Position int
}

// QueuedPrompt — промпт, ожидающий ежедневной публикации.
type QueuedPrompt struct {
	ID        int64
	Prompt    string
	CreatedAt time.Time
}

// PublishResult описывает опубликованный пост.
type PublishResult struct {
	ContainerID string
	MediaID     string
	Permalink   string
}

// PostReport передаётся оператору после ежедневной публикации.
type PostReport struct {
	OriginalPrompt string
	RefinedPrompt  string
	Caption        string
	ImageURL       string
	Permalink      string
	Err            error
}
