package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"ig-vote-bot/internal/adapters/telegram"
	"ig-vote-bot/internal/app"
	"ig-vote-bot/internal/domain"
	"ig-vote-bot/internal/infra/config"
	applog "ig-vote-bot/internal/infra/log"
	"ig-vote-bot/internal/infra/metrics"
	"ig-vote-bot/internal/infra/queue"
	"ig-vote-bot/internal/usecase/pipeline"
	"ig-vote-bot/internal/usecase/voting"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "scheduler")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.HTTP.MetricsAddr)

	core, err := app.NewCore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось инициализировать зависимости")
	}
	defer core.Close()

	botAPI, err := core.Bot()
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось создать бота")
	}
	notifier := core.Notifier(botAPI)
	rounds, err := core.Voting(ctx, telegram.NewMessenger(botAPI, core.Page.VotingChatID), notifier)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось собрать оркестратор")
	}

	posts, closeQueue, err := queue.Open(cfg.Queues.Driver, cfg.RabbitURL, core.Redis, cfg.Queues.Posts)
	if err != nil {
		logger.Fatal().Err(err).Msg("scheduler: не удалось открыть очередь публикаций")
	}
	defer closeQueue()

	votingTicker := time.NewTicker(cfg.Voting.Interval)
	defer votingTicker.Stop()
	postTicker := time.NewTicker(cfg.Daily.Interval)
	defer postTicker.Stop()

	logger.Info().
		Dur("voting_interval", cfg.Voting.Interval).
		Dur("post_interval", cfg.Daily.Interval).
		Msg("scheduler: запущен")
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("scheduler: остановлен")
			return
		case <-votingTicker.C:
			runRound(ctx, logger, rounds)
		case <-postTicker.C:
			jobs, err := pipeline.EnqueueDaily(ctx, posts, core.Page.Name, cfg.Daily.PostNumber, domain.PostCauseCron, time.Now())
			if err != nil {
				logger.Error().Err(err).Int("enqueued", len(jobs)).Msg("scheduler: не удалось поставить задачи публикации")
				continue
			}
			logger.Info().Int("enqueued", len(jobs)).Msg("scheduler: задачи публикации поставлены")
		}
	}
}

func runRound(ctx context.Context, logger zerolog.Logger, rounds *voting.Service) {
	res, err := rounds.Run(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("scheduler: раунд голосования завершился ошибкой")
		return
	}
	logger.Info().Str("action", res.Action).Int("candidates", res.Candidates).Str("permalink", res.Permalink).Msg("scheduler: раунд обработан")
}
