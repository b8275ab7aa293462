package config

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"ig-vote-bot/internal/domain"
)

// AppConfig описывает конфигурацию сервисов.
type AppConfig struct {
	AppEnv string `envconfig:"APP_ENV" default:"dev"`
	TZ     string `envconfig:"TZ" default:"Europe/Rome"`
	Port   int    `envconfig:"PORT" default:"8080"`
	Page   string `envconfig:"IG_PAGE"`

	Telegram struct {
		Token           string `envconfig:"TG_BOT_TOKEN"`
		WebhookURL      string `envconfig:"TG_WEBHOOK_URL"`
		WebhookSecret   string `envconfig:"TG_WEBHOOK_SECRET"`
		OperatorChatID  int64  `envconfig:"TELEGRAM_CHAT_ID"`
		SuccessTemplate string `envconfig:"TELEGRAM_SUCCESS_TEMPLATE" default:"✅ Post pubblicato\n\nPrompt: {0}\n\nRefined: {1}\n\n{2}\n\n{3}"`
		FailureTemplate string `envconfig:"TELEGRAM_FAILURE_TEMPLATE" default:"❌ Pubblicazione fallita\n\nPrompt: {0}\n\nRefined: {1}\n\nErrore: {2}"`
	} `envconfig:""`

	Instagram struct {
		GraphBaseURL string        `envconfig:"IG_GRAPH_BASE_URL" default:"https://graph.facebook.com"`
		GraphVersion string        `envconfig:"IG_GRAPH_VERSION" default:"v21.0"`
		AppID        string        `envconfig:"IG_APP_ID"`
		AppSecret    string        `envconfig:"IG_APP_SECRET"`
		PollInterval time.Duration `envconfig:"IG_POLL_INTERVAL" default:"1s"`
		PollAttempts int           `envconfig:"IG_POLL_MAX_ATTEMPTS" default:"30"`
		HTTPTimeout  time.Duration `envconfig:"IG_HTTP_TIMEOUT" default:"30s"`
	} `envconfig:""`

	Tokens struct {
		CryptoKey   string `envconfig:"TOKENS_CRYPTO_KEY"`
		RefreshDays int    `envconfig:"DAYS_BETWEEN_TOKEN_REFRESH" default:"55"`
	} `envconfig:""`

	Scoring struct {
		LikeWeight    float64 `envconfig:"SCORE_LIKE_MULTIPLIER" default:"1"`
		CommentWeight float64 `envconfig:"SCORE_COMMENT_MULTIPLIER" default:"1"`
		VoteWeight    float64 `envconfig:"SCORE_VOTE_MULTIPLIER" default:"1"`
		Concurrency   int     `envconfig:"SCORE_FETCH_CONCURRENCY" default:"4"`
	} `envconfig:""`

	Voting struct {
		BatchSize     int           `envconfig:"VOTING_BATCH_SIZE" default:"10"`
		OpenStoryURL  string        `envconfig:"VOTING_OPEN_STORY_URL"`
		CloseStoryURL string        `envconfig:"VOTING_CLOSE_STORY_URL"`
		OpenText      string        `envconfig:"VOTING_OPEN_TEXT" default:"🗳 Vota la tua immagine preferita!"`
		ClosedText    string        `envconfig:"VOTING_CLOSED_TEXT" default:"🔒 Votazione chiusa"`
		LockTTL       time.Duration `envconfig:"VOTING_LOCK_TTL" default:"10m"`
		Interval      time.Duration `envconfig:"VOTING_INTERVAL" default:"24h"`
	} `envconfig:""`

	CDN struct {
		Bucket         string        `envconfig:"CDN_BUCKET"`
		Region         string        `envconfig:"CDN_REGION" default:"eu-south-1"`
		Endpoint       string        `envconfig:"CDN_ENDPOINT"`
		PublicBaseURL  string        `envconfig:"CDN_PUBLIC_BASE_URL"`
		PresignTTL     time.Duration `envconfig:"CDN_PRESIGN_TTL" default:"168h"`
		CleanupEnabled bool          `envconfig:"CDN_CLEANUP_ENABLED" default:"false"`
		FolderPrefix   string        `envconfig:"CDN_FOLDER_PREFIX" default:"daily-posts"`
	} `envconfig:""`

	Refiner struct {
		Provider           string `envconfig:"REFINER_PROVIDER" default:"openai"`
		Instruction        string `envconfig:"REFINER_INSTRUCTION" default:"Rewrite the following image prompt so it is vivid, concrete and safe for Instagram. Answer with the prompt only."`
		DefaultInstruction string `envconfig:"REFINER_DEFAULT_INSTRUCTION" default:"Invent a short, original prompt for a striking square illustration. Answer with the prompt only."`
		MaxHashtags        int    `envconfig:"CAPTION_MAX_HASHTAGS" default:"5"`
	} `envconfig:""`

	OpenAI struct {
		APIKey  string        `envconfig:"OPENAI_API_KEY"`
		BaseURL string        `envconfig:"OPENAI_BASE_URL"`
		Model   string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
		Timeout time.Duration `envconfig:"OPENAI_TIMEOUT" default:"60s"`
	} `envconfig:""`

	Gemini struct {
		APIKey string `envconfig:"GEMINI_API_KEY"`
		Model  string `envconfig:"GEMINI_MODEL" default:"gemini-2.5-flash"`
	} `envconfig:""`

	ImageGen struct {
		URL     string        `envconfig:"IMAGE_GEN_URL"`
		APIKey  string        `envconfig:"IMAGE_GEN_API_KEY"`
		Width   int           `envconfig:"GENERATED_IMAGE_WIDTH" default:"1024"`
		Height  int           `envconfig:"GENERATED_IMAGE_HEIGHT" default:"1024"`
		Timeout time.Duration `envconfig:"IMAGE_GEN_TIMEOUT" default:"120s"`
	} `envconfig:""`

	WhatsApp struct {
		PhoneNumberID   string `envconfig:"WHATSAPP_PHONE_NUMBER_ID"`
		Recipient       string `envconfig:"WHATSAPP_TO"`
		SuccessTemplate string `envconfig:"WHATSAPP_SUCCESS_TEMPLATE"`
		FailureTemplate string `envconfig:"WHATSAPP_FAILURE_TEMPLATE"`
		Language        string `envconfig:"WHATSAPP_LANGUAGE" default:"it"`
	} `envconfig:""`

	Daily struct {
		PostNumber int           `envconfig:"DAILY_POST_NUMBER" default:"1"`
		Interval   time.Duration `envconfig:"DAILY_POST_INTERVAL" default:"24h"`
	} `envconfig:""`

	HTTP struct {
		CronSecret     string        `envconfig:"CRON_SECRET"`
		MetricsAddr    string        `envconfig:"METRICS_ADDR" default:":9090"`
		RequestTimeout time.Duration `envconfig:"HTTP_REQUEST_TIMEOUT" default:"5m"`
	} `envconfig:""`

	PGDSN string `envconfig:"PG_DSN"`

	RedisAddr string `envconfig:"REDIS_ADDR"`

	RabbitURL string `envconfig:"RABBITMQ_URL"`

	Queues struct {
		Driver string `envconfig:"QUEUE_DRIVER" default:"rabbitmq"`
		Posts  string `envconfig:"POST_QUEUE_KEY" default:"post_jobs"`
	} `envconfig:""`
}

// Page — настройки конкретной страницы Instagram.
type Page struct {
	Name                string `ignored:"true"`
	IGUserID            string `envconfig:"IG_USER_ID"`
	VotingChatID        int64  `envconfig:"TG_VOTING_CHAT_ID"`
	CaptionInstruction  string `envconfig:"CAPTION_INSTRUCTION" default:"Write a short, warm Instagram caption in Italian for an image generated from this prompt."`
	WinnerCoverURL      string `envconfig:"VOTING_WINNER_COVER_URL"`
	WinnerCaptionPrompt string `envconfig:"WINNER_CAPTION_PROMPT" default:"Write an Instagram caption announcing the winner of this week's community vote. It received {votes} votes, {likes} likes and {comments} comments."`
}

// Load загружает конфиг из окружения.
func Load() AppConfig {
	var cfg AppConfig
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatalf("не удалось загрузить конфиг: %v", err)
	}
	return cfg
}

// LoadPage читает настройки страницы: сначала PAGE_<NAME>_<KEY>, затем <KEY>.
func LoadPage(name string) (Page, error) {
	var page Page
	prefix := ""
	if name = strings.TrimSpace(name); name != "" {
		prefix = "PAGE_" + strings.ToUpper(name)
	}
	if err := envconfig.Process(prefix, &page); err != nil {
		return Page{}, fmt.Errorf("%w: page %q: %v", domain.ErrConfiguration, name, err)
	}
	page.Name = name
	return page, nil
}

// Require проверяет, что все перечисленные значения заданы.
func Require(values map[string]string) error {
	var missing []string
	for name, value := range values {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: не заданы %s", domain.ErrConfiguration, strings.Join(missing, ", "))
}
