package secrets

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/scrypt"

	"ig-vote-bot/internal/domain"
)

const (
	keySize   = 32
	nonceSize = 12
	tagSize   = 16
	kdfSalt   = "tokens_salt"
)

// KeySource сообщает, как был получен ключ шифрования.
type KeySource string

const (
	KeyBase64     KeySource = "base64"
	KeyHex        KeySource = "hex"
	KeyPassphrase KeySource = "passphrase"
)

// Cipher шифрует токены AES-256-GCM в формате base64(nonce).base64(ct).base64(tag).
type Cipher struct {
	aead   cipher.AEAD
	source KeySource
}

// DeriveKey разбирает ключ: 32 байта в base64, затем 32 байта в hex,
// иначе выводит ключ из парольной фразы через scrypt.
func DeriveKey(raw string) ([]byte, KeySource, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, "", fmt.Errorf("%w: TOKENS_CRYPTO_KEY не задан", domain.ErrConfiguration)
	}
	if key, err := base64.StdEncoding.DecodeString(raw); err == nil && len(key) == keySize {
		return key, KeyBase64, nil
	}
	if key, err := hex.DecodeString(raw); err == nil && len(key) == keySize {
		return key, KeyHex, nil
	}
	key, err := scrypt.Key([]byte(raw), []byte(kdfSalt), 16384, 8, 1, keySize)
	if err != nil {
		return nil, "", fmt.Errorf("%w: scrypt: %v", domain.ErrConfiguration, err)
	}
	return key, KeyPassphrase, nil
}

// NewCipher создаёт шифр. Ключ из парольной фразы допустим, но слабее, о чём пишется предупреждение.
func NewCipher(rawKey string, logger zerolog.Logger) (*Cipher, error) {
	key, source, err := DeriveKey(rawKey)
	if err != nil {
		return nil, err
	}
	if source == KeyPassphrase {
		logger.Warn().Msg("secrets: TOKENS_CRYPTO_KEY не является 32-байтным ключом, используется scrypt от парольной фразы")
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: aes: %v", domain.ErrConfiguration, err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("%w: gcm: %v", domain.ErrConfiguration, err)
	}
	return &Cipher{aead: aead, source: source}, nil
}

// Source возвращает способ получения ключа.
func (c *Cipher) Source() KeySource {
	return c.source
}

// Encrypt шифрует строку со случайным nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	ct, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]
	enc := base64.StdEncoding
	return enc.EncodeToString(nonce) + "." + enc.EncodeToString(ct) + "." + enc.EncodeToString(tag), nil
}

// Decrypt проверяет тег и возвращает исходную строку.
// Любое повреждение возвращает domain.ErrCredential.
func (c *Cipher) Decrypt(payload string) (string, error) {
	parts := strings.Split(strings.TrimSpace(payload), ".")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: ожидалось 3 части, получено %d", domain.ErrCredential, len(parts))
	}
	decoded := make([][]byte, 3)
	for i, part := range parts {
		b, err := base64.StdEncoding.DecodeString(part)
		if err != nil {
			return "", fmt.Errorf("%w: часть %d: %v", domain.ErrCredential, i, err)
		}
		decoded[i] = b
	}
	nonce, ct, tag := decoded[0], decoded[1], decoded[2]
	if len(nonce) != nonceSize {
		return "", fmt.Errorf("%w: длина nonce %d", domain.ErrCredential, len(nonce))
	}
	if len(tag) != tagSize {
		return "", fmt.Errorf("%w: длина тега %d", domain.ErrCredential, len(tag))
	}
	sealed := make([]byte, 0, len(ct)+len(tag))
	sealed = append(sealed, ct...)
	sealed = append(sealed, tag...)
	plain, err := c.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrCredential, err)
	}
	return string(plain), nil
}
