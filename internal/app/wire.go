// Package app собирает зависимости для бинарников из конфигурации окружения.
package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"ig-vote-bot/internal/adapters/cdn"
	"ig-vote-bot/internal/adapters/graph"
	"ig-vote-bot/internal/adapters/imagegen"
	"ig-vote-bot/internal/adapters/refiner"
	"ig-vote-bot/internal/adapters/repo"
	"ig-vote-bot/internal/adapters/telegram"
	"ig-vote-bot/internal/adapters/whatsapp"
	"ig-vote-bot/internal/domain"
	"ig-vote-bot/internal/infra/cache"
	"ig-vote-bot/internal/infra/config"
	"ig-vote-bot/internal/infra/db"
	httpinfra "ig-vote-bot/internal/infra/http"
	applog "ig-vote-bot/internal/infra/log"
	"ig-vote-bot/internal/infra/openai"
	"ig-vote-bot/internal/infra/secrets"
	"ig-vote-bot/internal/usecase/credentials"
	"ig-vote-bot/internal/usecase/notify"
	"ig-vote-bot/internal/usecase/pipeline"
	"ig-vote-bot/internal/usecase/scoring"
	"ig-vote-bot/internal/usecase/voting"
)

// Core — общие зависимости: БД, токены, Graph API, Redis.
type Core struct {
	Config    config.AppConfig
	Page      config.Page
	Log       zerolog.Logger
	Pool      *pgxpool.Pool
	Repo      *repo.Postgres
	Graph     *graph.Client
	Store     *credentials.Store
	Tokens    *credentials.Manager
	Publisher *graph.Publisher
	Redis     *redis.Client
	Cache     *cache.RedisCache
	Location  *time.Location
}

// NewCore подключается к Postgres и Redis, применяет схему и собирает слой токенов.
func NewCore(ctx context.Context, cfg config.AppConfig, logger zerolog.Logger) (*Core, error) {
	if err := config.Require(map[string]string{
		"PG_DSN":            cfg.PGDSN,
		"TOKENS_CRYPTO_KEY": cfg.Tokens.CryptoKey,
	}); err != nil {
		return nil, err
	}
	page, err := config.LoadPage(cfg.Page)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.TZ)
	if err != nil {
		logger.Warn().Err(err).Str("tz", cfg.TZ).Msg("app: неизвестная таймзона, используем UTC")
		loc = time.UTC
	}

	pool, err := db.Connect(ctx, cfg.PGDSN)
	if err != nil {
		return nil, fmt.Errorf("подключение к БД: %w", err)
	}
	repoAdapter := repo.NewPostgres(pool)
	if err := repoAdapter.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("миграция схемы: %w", err)
	}

	cipher, err := secrets.NewCipher(cfg.Tokens.CryptoKey, applog.Component(logger, "secrets"))
	if err != nil {
		pool.Close()
		return nil, err
	}
	store := credentials.NewStore(repoAdapter, cipher)

	graphClient := graph.NewClient(graph.Options{
		BaseURL:    cfg.Instagram.GraphBaseURL,
		Version:    cfg.Instagram.GraphVersion,
		HTTPClient: &http.Client{Timeout: cfg.Instagram.HTTPTimeout},
		Logger:     applog.Component(logger, "graph"),
	})
	threshold := time.Duration(cfg.Tokens.RefreshDays) * 24 * time.Hour
	manager := credentials.NewManager(store, graphClient, cfg.Instagram.AppID, cfg.Instagram.AppSecret, threshold, applog.Component(logger, "credentials"))
	publisher := graph.NewPublisher(graphClient, manager, page.IGUserID, cfg.Instagram.PollInterval, cfg.Instagram.PollAttempts, applog.Component(logger, "publisher"))

	redisClient, err := cache.NewClient(ctx, cfg.RedisAddr)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if redisClient == nil {
		logger.Warn().Msg("app: REDIS_ADDR не задан, блокировки и дедупликация работают локально")
	}

	return &Core{
		Config:    cfg,
		Page:      page,
		Log:       logger,
		Pool:      pool,
		Repo:      repoAdapter,
		Graph:     graphClient,
		Store:     store,
		Tokens:    manager,
		Publisher: publisher,
		Redis:     redisClient,
		Cache:     cache.NewRedis(redisClient),
		Location:  loc,
	}, nil
}

// Close освобождает соединения.
func (c *Core) Close() {
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	c.Pool.Close()
}

// Bot создаёт клиента Telegram Bot API.
func (c *Core) Bot() (*tgbotapi.BotAPI, error) {
	if strings.TrimSpace(c.Config.Telegram.Token) == "" {
		return nil, fmt.Errorf("%w: не указан токен Telegram (TG_BOT_TOKEN)", domain.ErrConfiguration)
	}
	bot, err := tgbotapi.NewBotAPI(c.Config.Telegram.Token)
	if err != nil {
		return nil, fmt.Errorf("создать бота: %w", err)
	}
	return bot, nil
}

// Notifier собирает рассылку по Telegram и, если настроен, WhatsApp.
func (c *Core) Notifier(bot telegram.BotAPI) *notify.BestEffort {
	log := applog.Component(c.Log, "notify")
	fanout := notify.NewBestEffort(log)
	tg := c.Config.Telegram
	if bot != nil && tg.OperatorChatID != 0 {
		fanout.With("telegram", telegram.NewNotifier(bot, tg.OperatorChatID, tg.SuccessTemplate, tg.FailureTemplate))
	}
	wa := c.Config.WhatsApp
	if wa.PhoneNumberID != "" {
		n, err := whatsapp.NewNotifier(c.Tokens, whatsapp.Options{
			BaseURL:         c.Config.Instagram.GraphBaseURL,
			Version:         c.Config.Instagram.GraphVersion,
			PhoneNumberID:   wa.PhoneNumberID,
			To:              wa.Recipient,
			SuccessTemplate: wa.SuccessTemplate,
			FailureTemplate: wa.FailureTemplate,
			Language:        wa.Language,
			Logger:          log,
		})
		if err != nil {
			log.Warn().Err(err).Msg("app: WhatsApp отключён")
		} else {
			fanout.With("whatsapp", n)
		}
	}
	return fanout
}

// FailureReporter превращает сбой HTTP-обработчика в уведомление оператору.
func FailureReporter(n pipeline.Reporter) httpinfra.FailureReporter {
	return func(ctx context.Context, route string, err error) {
		n.Failure(ctx, domain.PostReport{Err: fmt.Errorf("%s: %w", route, err)})
	}
}

// Refiner выбирает текстовую модель по REFINER_PROVIDER.
func (c *Core) Refiner(ctx context.Context) (*refiner.Service, error) {
	var model refiner.TextModel
	switch strings.ToLower(strings.TrimSpace(c.Config.Refiner.Provider)) {
	case "gemini":
		if err := config.Require(map[string]string{"GEMINI_API_KEY": c.Config.Gemini.APIKey}); err != nil {
			return nil, err
		}
		gm, err := refiner.NewGeminiModel(ctx, c.Config.Gemini.APIKey, c.Config.Gemini.Model, "")
		if err != nil {
			return nil, err
		}
		model = gm
	case "", "openai":
		if err := config.Require(map[string]string{"OPENAI_API_KEY": c.Config.OpenAI.APIKey}); err != nil {
			return nil, err
		}
		client := openai.NewClient(c.Config.OpenAI.APIKey, c.Config.OpenAI.BaseURL, c.Config.OpenAI.Timeout)
		model = refiner.NewOpenAIModel(client, c.Config.OpenAI.Model)
	default:
		return nil, fmt.Errorf("%w: неизвестный REFINER_PROVIDER %q", domain.ErrConfiguration, c.Config.Refiner.Provider)
	}
	return refiner.NewService(model, refiner.Instructions{
		Refine:  c.Config.Refiner.Instruction,
		Default: c.Config.Refiner.DefaultInstruction,
	}, c.Config.Refiner.MaxHashtags, applog.Component(c.Log, "refiner")), nil
}

// CDN создаёт хранилище изображений.
func (c *Core) CDN(ctx context.Context) (*cdn.Store, error) {
	cfg := c.Config.CDN
	if err := config.Require(map[string]string{"CDN_BUCKET": cfg.Bucket}); err != nil {
		return nil, err
	}
	return cdn.New(ctx, cdn.Options{
		Bucket:        cfg.Bucket,
		Region:        cfg.Region,
		Endpoint:      cfg.Endpoint,
		PublicBaseURL: cfg.PublicBaseURL,
		PresignTTL:    cfg.PresignTTL,
		Logger:        applog.Component(c.Log, "cdn"),
	})
}

// Voting собирает оркестратор раунда. Подпись победителя без модели берётся из шаблона.
func (c *Core) Voting(ctx context.Context, messenger domain.VotingMessenger, announcer voting.Announcer) (*voting.Service, error) {
	weights := scoring.Weights{
		Like:    c.Config.Scoring.LikeWeight,
		Comment: c.Config.Scoring.CommentWeight,
		Vote:    c.Config.Scoring.VoteWeight,
	}
	scorer := scoring.NewService(c.Repo, c.Publisher, weights, c.Config.Scoring.Concurrency, applog.Component(c.Log, "scoring"))

	deps := voting.Deps{
		Repo:      c.Repo,
		Messages:  c.Repo,
		Messenger: messenger,
		Scorer:    scorer,
		Publisher: c.Publisher,
		Announcer: announcer,
		Locker:    c.Cache,
	}
	if r, err := c.Refiner(ctx); err != nil {
		c.Log.Warn().Err(err).Msg("app: подписи победителя будут из шаблона")
	} else {
		deps.Captions = r
	}
	if c.Config.CDN.CleanupEnabled {
		store, err := c.CDN(ctx)
		if err != nil {
			return nil, err
		}
		deps.CDN = store
	}

	vc := c.Config.Voting
	return voting.NewService(deps, voting.Config{
		BatchSize:           vc.BatchSize,
		OpenText:            vc.OpenText,
		ClosedText:          vc.ClosedText,
		OpenStoryURL:        vc.OpenStoryURL,
		CloseStoryURL:       vc.CloseStoryURL,
		WinnerCoverURL:      c.Page.WinnerCoverURL,
		WinnerCaptionPrompt: c.Page.WinnerCaptionPrompt,
		CleanupCDN:          c.Config.CDN.CleanupEnabled,
		LockKey:             "voting:run:" + c.Page.Name,
		LockTTL:             vc.LockTTL,
	}, applog.Component(c.Log, "voting")), nil
}

// Pipeline собирает ежедневную публикацию.
func (c *Core) Pipeline(ctx context.Context, pool pipeline.CandidatePool, reporter pipeline.Reporter) (*pipeline.Service, error) {
	r, err := c.Refiner(ctx)
	if err != nil {
		return nil, err
	}
	images, err := imagegen.New(imagegen.Options{
		URL:     c.Config.ImageGen.URL,
		APIKey:  c.Config.ImageGen.APIKey,
		Width:   c.Config.ImageGen.Width,
		Height:  c.Config.ImageGen.Height,
		Timeout: c.Config.ImageGen.Timeout,
		Logger:  applog.Component(c.Log, "imagegen"),
	})
	if err != nil {
		return nil, err
	}
	store, err := c.CDN(ctx)
	if err != nil {
		return nil, err
	}
	return pipeline.NewService(pipeline.Deps{
		Prompts:   c.Repo,
		Refiner:   r,
		Images:    images,
		CDN:       store,
		Publisher: c.Publisher,
		Pool:      pool,
		Reporter:  reporter,
	}, pipeline.Config{
		CaptionInstruction: c.Page.CaptionInstruction,
		MaxHashtags:        c.Config.Refiner.MaxHashtags,
		FolderPrefix:       c.Config.CDN.FolderPrefix,
		Location:           c.Location,
	}, applog.Component(c.Log, "pipeline")), nil
}
