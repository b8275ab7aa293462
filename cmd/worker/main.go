package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"ig-vote-bot/internal/app"
	"ig-vote-bot/internal/domain"
	"ig-vote-bot/internal/infra/config"
	applog "ig-vote-bot/internal/infra/log"
	"ig-vote-bot/internal/infra/metrics"
	"ig-vote-bot/internal/infra/queue"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "worker")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.HTTP.MetricsAddr)

	core, err := app.NewCore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось инициализировать зависимости")
	}
	defer core.Close()

	botAPI, err := core.Bot()
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось создать бота")
	}
	notifier := core.Notifier(botAPI)
	rounds, err := core.Voting(ctx, nil, notifier)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось собрать пул голосования")
	}
	posts, err := core.Pipeline(ctx, rounds, notifier)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось собрать пайплайн публикации")
	}

	postQueue, closeQueue, err := queue.Open(cfg.Queues.Driver, cfg.RabbitURL, core.Redis, cfg.Queues.Posts)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: не удалось открыть очередь публикаций")
	}
	defer closeQueue()

	w := &jobWorker{
		log:     logger,
		queue:   postQueue,
		once:    core.Cache,
		service: posts,
		backoff: time.Second,
	}
	logger.Info().Msg("worker: запуск обработки очереди")
	w.Run(ctx)
	logger.Info().Msg("worker: остановлен")
}

type postExecutor interface {
	Execute(ctx context.Context, job domain.PostJob) (domain.PostReport, error)
}

type jobWorker struct {
	log     zerolog.Logger
	queue   domain.PostQueue
	once    domain.Cache
	service postExecutor
	backoff time.Duration
}

// jobTTL покрывает повторную доставку одной и той же задачи брокером.
const jobTTL = 48 * time.Hour

func (w *jobWorker) Run(ctx context.Context) {
	for {
		job, ack, err := w.queue.Receive(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			w.log.Error().Err(err).Msg("worker: ошибка чтения очереди")
			sleep(ctx, w.backoff)
			continue
		}

		jobLog := w.log.With().
			Str("job_id", job.ID).
			Str("page", job.Page).
			Int("sequence", job.Sequence).
			Str("cause", string(job.Cause)).
			Logger()

		if job.ID == "" {
			jobLog.Error().Msg("worker: получена задача без идентификатора, подтверждаем и пропускаем")
			if err := ack(true); err != nil {
				jobLog.Error().Err(err).Msg("worker: не удалось подтвердить задачу без идентификатора")
			}
			continue
		}

		executed := false
		err = w.once.Once(ctx, "post:job:"+job.ID, jobTTL, func() error {
			executed = true
			_, err := w.service.Execute(ctx, job)
			return err
		})
		switch {
		case err != nil && ctx.Err() != nil:
			jobLog.Warn().Err(err).Msg("worker: остановка во время публикации, вернём задачу в очередь")
			if ackErr := ack(false); ackErr != nil {
				jobLog.Error().Err(ackErr).Msg("worker: не удалось вернуть задачу в очередь")
			}
			return
		case err != nil && !executed:
			jobLog.Error().Err(err).Msg("worker: не удалось зарегистрировать задачу")
			if ackErr := ack(false); ackErr != nil {
				jobLog.Error().Err(ackErr).Msg("worker: не удалось вернуть задачу в очередь")
			}
			sleep(ctx, w.backoff)
			continue
		case err != nil:
			jobLog.Error().Err(err).Msg("worker: публикация не удалась, оператор уведомлён")
		case !executed:
			jobLog.Info().Msg("worker: задача уже обработана, подтверждаем")
		}
		if err := ack(true); err != nil {
			jobLog.Error().Err(err).Msg("worker: не удалось подтвердить задачу")
		}
	}
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
