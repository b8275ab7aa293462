package credentials

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ig-vote-bot/internal/domain"
)

// Cipher шифрует и расшифровывает токены.
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Store хранит токены только в зашифрованном виде.
type Store struct {
	repo   domain.CredentialRepo
	cipher Cipher
	now    func() time.Time
}

// NewStore создаёт хранилище токенов.
func NewStore(repo domain.CredentialRepo, cipher Cipher) *Store {
	return &Store{repo: repo, cipher: cipher, now: time.Now}
}

// Get возвращает расшифрованный токен.
func (s *Store) Get(ctx context.Context, tokenType domain.TokenType) (domain.Credential, error) {
	ciphertext, createdAt, err := s.repo.GetToken(ctx, tokenType)
	if err != nil {
		return domain.Credential{}, err
	}
	token, err := s.cipher.Decrypt(ciphertext)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("токен %s: %w", tokenType, err)
	}
	return domain.Credential{Type: tokenType, Token: token, CreatedAt: createdAt}, nil
}

// Set шифрует и сохраняет токен как есть, create_date становится текущим временем.
// Токен с пробельными символами по краям отклоняется.
func (s *Store) Set(ctx context.Context, tokenType domain.TokenType, plaintext string) (domain.Credential, error) {
	if !tokenType.Valid() {
		return domain.Credential{}, fmt.Errorf("%w: неизвестный тип токена %q", domain.ErrConfiguration, tokenType)
	}
	if strings.TrimSpace(plaintext) == "" {
		return domain.Credential{}, fmt.Errorf("%w: пустой токен", domain.ErrCredential)
	}
	if plaintext != strings.TrimSpace(plaintext) {
		return domain.Credential{}, fmt.Errorf("%w: токен содержит пробелы по краям", domain.ErrCredential)
	}
	ciphertext, err := s.cipher.Encrypt(plaintext)
	if err != nil {
		return domain.Credential{}, fmt.Errorf("шифрование токена: %w", err)
	}
	now := s.now().UTC()
	if err := s.repo.UpsertToken(ctx, tokenType, ciphertext, now); err != nil {
		return domain.Credential{}, err
	}
	return domain.Credential{Type: tokenType, Token: plaintext, CreatedAt: now}, nil
}

// Mask скрывает середину токена для вывода оператору.
func Mask(token string) string {
	if len(token) <= 10 {
		return strings.Repeat("*", len(token))
	}
	return token[:6] + strings.Repeat("*", 8) + token[len(token)-4:]
}
