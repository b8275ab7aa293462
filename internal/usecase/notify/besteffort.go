package notify

import (
	"context"

	"github.com/rs/zerolog"

	"ig-vote-bot/internal/domain"
)

// BestEffort рассылает уведомления во все каналы и только логирует сбои доставки.
type BestEffort struct {
	notifiers []namedNotifier
	log       zerolog.Logger
}

type namedNotifier struct {
	name string
	n    domain.Notifier
}

// NewBestEffort создаёт рассылку. Каналы с nil пропускаются.
func NewBestEffort(logger zerolog.Logger) *BestEffort {
	return &BestEffort{log: logger}
}

// With добавляет канал уведомлений.
func (b *BestEffort) With(name string, n domain.Notifier) *BestEffort {
	if n != nil {
		b.notifiers = append(b.notifiers, namedNotifier{name: name, n: n})
	}
	return b
}

// Success сообщает об успешной публикации.
func (b *BestEffort) Success(ctx context.Context, report domain.PostReport) {
	b.each(ctx, "success", func(ctx context.Context, n domain.Notifier) error { return n.NotifySuccess(ctx, report) })
}

// Failure сообщает о сбое.
func (b *BestEffort) Failure(ctx context.Context, report domain.PostReport) {
	b.each(ctx, "failure", func(ctx context.Context, n domain.Notifier) error { return n.NotifyFailure(ctx, report) })
}

// Winner объявляет победителя голосования.
func (b *BestEffort) Winner(ctx context.Context, winner domain.ScoredImage, post domain.PublishResult) {
	b.each(ctx, "winner", func(ctx context.Context, n domain.Notifier) error { return n.NotifyWinner(ctx, winner, post) })
}

func (b *BestEffort) each(ctx context.Context, kind string, send func(context.Context, domain.Notifier) error) {
	for _, item := range b.notifiers {
		if ctx.Err() != nil {
			ctx = context.WithoutCancel(ctx)
		}
		if err := send(ctx, item.n); err != nil {
			b.log.Warn().Err(err).Str("channel", item.name).Str("kind", kind).Msg("notify: уведомление не доставлено")
		}
	}
}
