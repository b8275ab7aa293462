package repo

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ig-vote-bot/internal/domain"
	"ig-vote-bot/internal/infra/metrics"
)

//go:embed schema.sql
var schemaSQL string

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.CredentialRepo = (*Postgres)(nil)
	_ domain.VotingRepo     = (*Postgres)(nil)
	_ domain.MessageRepo    = (*Postgres)(nil)
	_ domain.PromptQueue    = (*Postgres)(nil)
)

const uniqueViolation = "23505"

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// Migrate применяет схему. Повторный запуск безопасен.
func (p *Postgres) Migrate(ctx context.Context) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()
	start := time.Now()
	_, err := p.pool.Exec(ctx, schemaSQL)
	metrics.ObserveNetworkRequest("postgres", "migrate", "schema", start, err)
	if err != nil {
		return fmt.Errorf("применение схемы: %w", err)
	}
	return nil
}

// GetToken реализует domain.CredentialRepo.
func (p *Postgres) GetToken(ctx context.Context, tokenType domain.TokenType) (string, time.Time, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var (
		token     string
		createdAt time.Time
	)
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT token, create_date FROM tokens WHERE token_type = $1`, string(tokenType)).Scan(&token, &createdAt)
	metrics.ObserveNetworkRequest("postgres", "token_select", "tokens", start, ignoreNoRows(err))
	if errors.Is(err, pgx.ErrNoRows) {
		return "", time.Time{}, fmt.Errorf("%w: %s", domain.ErrCredentialNotFound, tokenType)
	}
	if err != nil {
		return "", time.Time{}, fmt.Errorf("чтение токена %s: %w", tokenType, err)
	}
	return token, createdAt, nil
}

// UpsertToken реализует domain.CredentialRepo.
func (p *Postgres) UpsertToken(ctx context.Context, tokenType domain.TokenType, ciphertext string, createdAt time.Time) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO tokens (token_type, token, create_date)
VALUES ($1, $2, $3)
ON CONFLICT (token_type) DO UPDATE SET token = EXCLUDED.token, create_date = EXCLUDED.create_date
`, string(tokenType), ciphertext, createdAt)
	metrics.ObserveNetworkRequest("postgres", "token_upsert", "tokens", start, err)
	if err != nil {
		return fmt.Errorf("сохранение токена %s: %w", tokenType, err)
	}
	return nil
}

// ListImages возвращает кандидатов в порядке добавления.
func (p *Postgres) ListImages(ctx context.Context) ([]domain.VotingImage, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT image_url, instagram_post_id, votes, sent_date, cdn_folder, created_at
FROM voting_images
ORDER BY created_at, image_url
`)
	metrics.ObserveNetworkRequest("postgres", "images_select", "voting_images", start, err)
	if err != nil {
		return nil, fmt.Errorf("получение кандидатов: %w", err)
	}
	defer rows.Close()

	var images []domain.VotingImage
	for rows.Next() {
		var (
			img      domain.VotingImage
			postID   sql.NullString
			sentDate sql.NullTime
			folder   sql.NullString
		)
		if err := rows.Scan(&img.ImageURL, &postID, &img.Votes, &sentDate, &folder, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("чтение кандидата: %w", err)
		}
		img.InstagramPostID = postID.String
		img.Folder = folder.String
		if sentDate.Valid {
			t := sentDate.Time
			img.SentDate = &t
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

// AddImage добавляет кандидата в пул. Повторная вставка обновляет id поста и папку.
func (p *Postgres) AddImage(ctx context.Context, image domain.VotingImage) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO voting_images (image_url, instagram_post_id, cdn_folder)
VALUES ($1, NULLIF($2, ''), NULLIF($3, ''))
ON CONFLICT (image_url) DO UPDATE SET
    instagram_post_id = COALESCE(EXCLUDED.instagram_post_id, voting_images.instagram_post_id),
    cdn_folder = COALESCE(EXCLUDED.cdn_folder, voting_images.cdn_folder)
`, image.ImageURL, image.InstagramPostID, image.Folder)
	metrics.ObserveNetworkRequest("postgres", "image_insert", "voting_images", start, err)
	if err != nil {
		return fmt.Errorf("добавление кандидата: %w", err)
	}
	return nil
}

// MarkSent проставляет sent_date всем ещё не отправленным кандидатам.
func (p *Postgres) MarkSent(ctx context.Context, at time.Time) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE voting_images SET sent_date = $1 WHERE sent_date IS NULL`, at)
	metrics.ObserveNetworkRequest("postgres", "images_mark_sent", "voting_images", start, err)
	if err != nil {
		return fmt.Errorf("отметка отправки: %w", err)
	}
	return nil
}

// HasVoted проверяет, голосовал ли участник в текущем раунде.
func (p *Postgres) HasVoted(ctx context.Context, voterID string) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var exists bool
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM voting_users WHERE voter_id = $1)`, voterID).Scan(&exists)
	metrics.ObserveNetworkRequest("postgres", "voter_exists", "voting_users", start, err)
	if err != nil {
		return false, fmt.Errorf("проверка голосующего: %w", err)
	}
	return exists, nil
}

// voteIncrementSQL увеличивает счётчик только у кандидата открытого раунда.
const voteIncrementSQL = `UPDATE voting_images SET votes = votes + 1 WHERE image_url = $1 AND sent_date IS NOT NULL`

// RecordVote в одной транзакции регистрирует голосующего и увеличивает счётчик.
// Нарушение уникальности voter_id означает повторный голос.
// Кандидат без sent_date или удалённый сбросом раунда даёт ErrImageNotFound, голосующий не сохраняется.
func (p *Postgres) RecordVote(ctx context.Context, voterID, imageURL string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "voting_users", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	start = time.Now()
	_, err = tx.Exec(ctx, `INSERT INTO voting_users (voter_id) VALUES ($1)`, voterID)
	metrics.ObserveNetworkRequest("postgres", "voter_insert", "voting_users", start, err)
	if err != nil {
		return voterInsertError(err, voterID)
	}

	start = time.Now()
	tag, err := tx.Exec(ctx, voteIncrementSQL, imageURL)
	metrics.ObserveNetworkRequest("postgres", "vote_increment", "voting_images", start, err)
	if err != nil {
		return fmt.Errorf("увеличение счётчика: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", domain.ErrImageNotFound, imageURL)
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit_tx", "voting_users", start, err)
	return err
}

// voterInsertError переводит нарушение уникальности voter_id в ErrDuplicateVote.
func voterInsertError(err error, voterID string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateVote, voterID)
	}
	return fmt.Errorf("регистрация голосующего: %w", err)
}

// ListFolders возвращает папки CDN текущего пула.
func (p *Postgres) ListFolders(ctx context.Context) ([]string, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT DISTINCT cdn_folder FROM voting_images
WHERE cdn_folder IS NOT NULL AND cdn_folder <> ''
ORDER BY cdn_folder
`)
	metrics.ObserveNetworkRequest("postgres", "folders_select", "voting_images", start, err)
	if err != nil {
		return nil, fmt.Errorf("получение папок: %w", err)
	}
	defer rows.Close()

	var folders []string
	for rows.Next() {
		var folder string
		if err := rows.Scan(&folder); err != nil {
			return nil, err
		}
		folders = append(folders, folder)
	}
	return folders, rows.Err()
}

// ResetRound очищает состояние раунда в одной транзакции.
func (p *Postgres) ResetRound(ctx context.Context) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "voting_reset", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, table := range []string{"voting_users", "voting_images", "telegram_messages"} {
		start = time.Now()
		_, err = tx.Exec(ctx, "DELETE FROM "+table)
		metrics.ObserveNetworkRequest("postgres", "delete_all", table, start, err)
		if err != nil {
			return fmt.Errorf("очистка %s: %w", table, err)
		}
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit_tx", "voting_reset", start, err)
	return err
}

// SaveMessageRef сохраняет ссылку на сообщение, заменяя прежнюю с тем же назначением.
func (p *Postgres) SaveMessageRef(ctx context.Context, ref domain.MessageRef) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO telegram_messages (purpose, chat_id, message_id)
VALUES ($1, $2, $3)
ON CONFLICT (purpose) DO UPDATE SET chat_id = EXCLUDED.chat_id, message_id = EXCLUDED.message_id, created_at = now()
`, string(ref.Purpose), ref.ChatID, ref.MessageID)
	metrics.ObserveNetworkRequest("postgres", "message_upsert", "telegram_messages", start, err)
	if err != nil {
		return fmt.Errorf("сохранение сообщения %s: %w", ref.Purpose, err)
	}
	return nil
}

// GetMessageRef возвращает ссылку на сообщение, если она есть.
func (p *Postgres) GetMessageRef(ctx context.Context, purpose domain.MessagePurpose) (domain.MessageRef, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	ref := domain.MessageRef{Purpose: purpose}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT chat_id, message_id, created_at FROM telegram_messages WHERE purpose = $1`, string(purpose)).
		Scan(&ref.ChatID, &ref.MessageID, &ref.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "message_select", "telegram_messages", start, ignoreNoRows(err))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.MessageRef{}, false, nil
	}
	if err != nil {
		return domain.MessageRef{}, false, fmt.Errorf("чтение сообщения %s: %w", purpose, err)
	}
	return ref, true, nil
}

// NextPrompt возвращает самый старый промпт из очереди.
func (p *Postgres) NextPrompt(ctx context.Context) (domain.QueuedPrompt, bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var q domain.QueuedPrompt
	start := time.Now()
	err := p.pool.QueryRow(ctx, `SELECT id, prompt, create_date FROM prompt_queue ORDER BY create_date, id LIMIT 1`).
		Scan(&q.ID, &q.Prompt, &q.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "prompt_next", "prompt_queue", start, ignoreNoRows(err))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.QueuedPrompt{}, false, nil
	}
	if err != nil {
		return domain.QueuedPrompt{}, false, fmt.Errorf("чтение очереди промптов: %w", err)
	}
	return q, true, nil
}

// RemovePrompt удаляет промпт из очереди.
func (p *Postgres) RemovePrompt(ctx context.Context, id int64) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `DELETE FROM prompt_queue WHERE id = $1`, id)
	metrics.ObserveNetworkRequest("postgres", "prompt_delete", "prompt_queue", start, err)
	if err != nil {
		return fmt.Errorf("удаление промпта %d: %w", id, err)
	}
	return nil
}

// AddPrompt ставит промпт в очередь.
func (p *Postgres) AddPrompt(ctx context.Context, prompt string) (domain.QueuedPrompt, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	q := domain.QueuedPrompt{Prompt: prompt}
	start := time.Now()
	err := p.pool.QueryRow(ctx, `INSERT INTO prompt_queue (prompt) VALUES ($1) RETURNING id, create_date`, prompt).
		Scan(&q.ID, &q.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "prompt_insert", "prompt_queue", start, err)
	if err != nil {
		return domain.QueuedPrompt{}, fmt.Errorf("добавление промпта: %w", err)
	}
	return q, nil
}

// ListPrompts возвращает промпты в порядке очереди.
func (p *Postgres) ListPrompts(ctx context.Context, limit int) ([]domain.QueuedPrompt, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	if limit <= 0 {
		limit = 50
	}
	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT id, prompt, create_date FROM prompt_queue ORDER BY create_date, id LIMIT $1`, limit)
	metrics.ObserveNetworkRequest("postgres", "prompt_list", "prompt_queue", start, err)
	if err != nil {
		return nil, fmt.Errorf("список промптов: %w", err)
	}
	defer rows.Close()

	var prompts []domain.QueuedPrompt
	for rows.Next() {
		var q domain.QueuedPrompt
		if err := rows.Scan(&q.ID, &q.Prompt, &q.CreatedAt); err != nil {
			return nil, err
		}
		prompts = append(prompts, q)
	}
	return prompts, rows.Err()
}

func ignoreNoRows(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil
	}
	return err
}
