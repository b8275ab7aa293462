package credentials

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"ig-vote-bot/internal/domain"
	"ig-vote-bot/internal/infra/metrics"
)

// DefaultRefreshThreshold — возраст токена, после которого он продлевается.
const DefaultRefreshThreshold = 55 * 24 * time.Hour

// Exchanger продлевает long-lived токен.
type Exchanger interface {
	RefreshLongLivedToken(ctx context.Context, appID, appSecret, token string) (domain.TokenExchange, error)
	ExchangeShortLivedToken(ctx context.Context, appID, appSecret, shortToken string) (domain.TokenExchange, error)
}

// Manager следит за свежестью токенов перед использованием.
type Manager struct {
	store     *Store
	exchanger Exchanger
	appID     string
	appSecret string
	threshold time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewManager создаёт менеджер. threshold <= 0 означает 55 дней.
func NewManager(store *Store, exchanger Exchanger, appID, appSecret string, threshold time.Duration, logger zerolog.Logger) *Manager {
	if threshold <= 0 {
		threshold = DefaultRefreshThreshold
	}
	return &Manager{
		store:     store,
		exchanger: exchanger,
		appID:     appID,
		appSecret: appSecret,
		threshold: threshold,
		now:       time.Now,
		log:       logger,
	}
}

// NeedsRefresh сообщает, достиг ли токен порога обновления.
func (m *Manager) NeedsRefresh(cred domain.Credential) bool {
	return m.now().Sub(cred.CreatedAt) >= m.threshold
}

// EnsureFresh продлевает токен, если он старше порога, и сохраняет результат.
// Ошибка обмена или сохранения возвращается как domain.ErrRefreshFailed.
func (m *Manager) EnsureFresh(ctx context.Context, cred domain.Credential) (domain.Credential, error) {
	if !m.NeedsRefresh(cred) {
		return cred, nil
	}
	age := m.now().Sub(cred.CreatedAt)
	m.log.Info().Str("token_type", string(cred.Type)).Dur("age", age).Msg("credentials: токен устарел, обновляем")

	res, err := m.exchanger.RefreshLongLivedToken(ctx, m.appID, m.appSecret, cred.Token)
	if err != nil {
		metrics.IncTokenRefresh(err)
		return domain.Credential{}, fmt.Errorf("%w: обмен: %w", domain.ErrRefreshFailed, err)
	}
	refreshed, err := m.store.Set(ctx, cred.Type, res.AccessToken)
	if err != nil {
		metrics.IncTokenRefresh(err)
		return domain.Credential{}, fmt.Errorf("%w: сохранение: %w", domain.ErrRefreshFailed, err)
	}
	metrics.IncTokenRefresh(nil)
	m.log.Info().Str("token_type", string(cred.Type)).Int("expires_in", res.ExpiresIn).Msg("credentials: токен обновлён")
	return refreshed, nil
}

// Token читает токен и продлевает его при необходимости.
func (m *Manager) Token(ctx context.Context, tokenType domain.TokenType) (string, error) {
	cred, err := m.store.Get(ctx, tokenType)
	if err != nil {
		return "", err
	}
	if tokenType != domain.TokenInstagram {
		return cred.Token, nil
	}
	fresh, err := m.EnsureFresh(ctx, cred)
	if err != nil {
		return "", err
	}
	return fresh.Token, nil
}

// ForceRefresh продлевает токен независимо от возраста.
func (m *Manager) ForceRefresh(ctx context.Context, tokenType domain.TokenType) (domain.Credential, error) {
	cred, err := m.store.Get(ctx, tokenType)
	if err != nil {
		return domain.Credential{}, err
	}
	cred.CreatedAt = time.Time{}
	return m.EnsureFresh(ctx, cred)
}

// Exchange меняет короткий токен на long-lived и сохраняет его.
func (m *Manager) Exchange(ctx context.Context, tokenType domain.TokenType, shortToken string) (domain.Credential, error) {
	res, err := m.exchanger.ExchangeShortLivedToken(ctx, m.appID, m.appSecret, shortToken)
	if err != nil {
		return domain.Credential{}, err
	}
	return m.store.Set(ctx, tokenType, res.AccessToken)
}
