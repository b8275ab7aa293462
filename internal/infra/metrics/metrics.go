package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	BotSendErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "bot_send_errors_total",
		Help: "Ошибки отправки сообщений ботом",
	})

	VotesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "votes_total",
		Help: "Голоса по результату обработки",
	}, []string{"result"})

	VotingRoundsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "voting_rounds_total",
		Help: "Запуски оркестратора голосования",
	}, []string{"action", "status"})

	TokenRefreshTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "token_refresh_total",
		Help: "Обновления long-lived токенов",
	}, []string{"status"})

	PublishSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "publish_seconds",
		Help:    "Длительность протокола публикации",
		Buckets: []float64{1, 2.5, 5, 10, 20, 30, 45, 60, 90, 120},
	}, []string{"kind", "status"})

	ContainerPollAttempts = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "container_poll_attempts",
		Help:    "Число опросов статуса контейнера до финального состояния",
		Buckets: []float64{1, 2, 3, 5, 8, 13, 21, 30},
	})

	PostJobsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "post_jobs_total",
		Help: "Задачи ежедневной публикации по результату",
	}, []string{"status"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 30, 45, 60, 90, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})

	LLMGenerationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_generation_duration_seconds",
		Help:    "Длительность генерации ответа LLM",
		Buckets: prometheus.DefBuckets,
	}, []string{"model"})

	LLMTokensTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_tokens_total",
		Help: "Количество токенов, использованных LLM",
	}, []string{"model", "type"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		BotSendErrors,
		VotesTotal,
		VotingRoundsTotal,
		TokenRefreshTotal,
		PublishSeconds,
		ContainerPollAttempts,
		PostJobsTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
		LLMGenerationDuration,
		LLMTokensTotal,
	)
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := statusLabel(err)
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObserveLLMGeneration записывает длительность и токены генерации LLM.
func ObserveLLMGeneration(model string, duration time.Duration, promptTokens, completionTokens, totalTokens int) {
	if model == "" {
		model = "unknown"
	}
	LLMGenerationDuration.WithLabelValues(model).Observe(duration.Seconds())
	if promptTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "completion").Add(float64(completionTokens))
	}
	if totalTokens <= 0 {
		totalTokens = promptTokens + completionTokens
	}
	if totalTokens > 0 {
		LLMTokensTotal.WithLabelValues(model, "total").Add(float64(totalTokens))
	}
}

// ObservePublish записывает длительность протокола публикации.
func ObservePublish(kind string, start time.Time, err error) {
	PublishSeconds.WithLabelValues(kind, statusLabel(err)).Observe(time.Since(start).Seconds())
}

// IncVote увеличивает счётчик голосов с указанным результатом.
func IncVote(result string) {
	VotesTotal.WithLabelValues(result).Inc()
}

// IncRound фиксирует запуск оркестратора.
func IncRound(action string, err error) {
	VotingRoundsTotal.WithLabelValues(action, statusLabel(err)).Inc()
}

// IncTokenRefresh фиксирует попытку обновления токена.
func IncTokenRefresh(err error) {
	TokenRefreshTotal.WithLabelValues(statusLabel(err)).Inc()
}

// IncPostJob фиксирует результат задачи публикации.
func IncPostJob(status string) {
	PostJobsTotal.WithLabelValues(status).Inc()
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
