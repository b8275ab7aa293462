package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"ig-vote-bot/internal/adapters/bot"
	"ig-vote-bot/internal/adapters/telegram"
	"ig-vote-bot/internal/app"
	"ig-vote-bot/internal/infra/config"
	httpinfra "ig-vote-bot/internal/infra/http"
	applog "ig-vote-bot/internal/infra/log"
	"ig-vote-bot/internal/infra/metrics"
	"ig-vote-bot/internal/infra/queue"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv, "voting")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	core, err := app.NewCore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("voting: не удалось инициализировать зависимости")
	}
	defer core.Close()

	botAPI, err := core.Bot()
	if err != nil {
		logger.Fatal().Err(err).Msg("voting: не удалось создать бота")
	}
	notifier := core.Notifier(botAPI)
	report := app.FailureReporter(notifier)
	httpinfra.InstallPanicReporter(report)

	messenger := telegram.NewMessenger(botAPI, core.Page.VotingChatID)
	rounds, err := core.Voting(ctx, messenger, notifier)
	if err != nil {
		logger.Fatal().Err(err).Msg("voting: не удалось собрать оркестратор")
	}

	posts, closeQueue, err := queue.Open(cfg.Queues.Driver, cfg.RabbitURL, core.Redis, cfg.Queues.Posts)
	if err != nil {
		logger.Fatal().Err(err).Msg("voting: не удалось открыть очередь публикаций")
	}
	defer closeQueue()

	handlers := &api{
		log:        logger,
		rounds:     rounds,
		updates:    bot.NewHandler(botAPI, applog.Component(logger, "bot"), rounds, core.Cache),
		posts:      posts,
		page:       core.Page.Name,
		dailyPosts: cfg.Daily.PostNumber,
		report:     report,
		now:        time.Now,
	}

	srv := httpinfra.NewServer(logger, cfg.HTTP.RequestTimeout)
	handlers.mount(srv.Router, cfg.HTTP.CronSecret, cfg.Telegram.WebhookSecret)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(fmt.Sprintf(":%d", cfg.Port), cfg.HTTP.RequestTimeout+10*time.Second)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("voting: HTTP сервер остановлен с ошибкой")
		}
	}

	logger.Info().Msg("voting: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("voting: ошибка остановки HTTP сервера")
	}
}
