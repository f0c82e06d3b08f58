package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"gopkg.in/yaml.v3"
)

const configPathEnv = "FEEDREFINER_CONFIG"

// Supported store backends.
const (
	StoreMongo    = "mongodb"
	StoreDynamo   = "dynamodb"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Run           RunConfig          `yaml:"run"`
	Store         StoreConfig        `yaml:"store"`
	AI            AIConfig           `yaml:"ai"`
	Scraper       ScraperConfig      `yaml:"scraper"`
	Feed          FeedConfig         `yaml:"feed"`
	Notifications NotificationConfig `yaml:"notifications"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	HTTP          HTTPConfig         `yaml:"http"`
}

// LoggingConfig selects slog level and handler.
type LoggingConfig struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"text"`
}

// RunConfig bounds a single invocation.
type RunConfig struct {
	// SoftLimit stays below the host's hard wall-clock limit so state can
	// still be written before the process is killed.
	SoftLimit       time.Duration `yaml:"softLimit" env:"RUN_SOFT_LIMIT" env-default:"550s"`
	TasksPerRun     int           `yaml:"tasksPerRun" env:"TASKS_PER_RUN" env-default:"2"`
	RefillThreshold int           `yaml:"refillThreshold" env:"REFILL_THRESHOLD" env-default:"2"`
	// Interval enables periodic runs in serve mode when positive.
	Interval time.Duration `yaml:"interval" env:"RUN_INTERVAL"`
}

// StoreConfig describes the document store backend and its collections.
type StoreConfig struct {
	Type               string        `yaml:"type" env:"STORE_TYPE" env-default:"mongodb"`
	URI                string        `yaml:"uri" env:"STORE_URI"`
	Database           string        `yaml:"database" env:"STORE_DATABASE" env-default:"news"`
	TasksCollection    string        `yaml:"tasksCollection" env:"TASKS_COLLECTION" env-default:"scrape_tasks"`
	ArticlesCollection string        `yaml:"articlesCollection" env:"ARTICLES_COLLECTION" env-default:"news_articles"`
	Region             string        `yaml:"region" env:"AWS_REGION" env-default:"us-east-1"`
	Endpoint           string        `yaml:"endpoint" env:"DYNAMODB_ENDPOINT"`
	Timeout            time.Duration `yaml:"timeout" env:"STORE_TIMEOUT" env-default:"10s"`
}

// AIConfig carries every provider credential of the refinement chain.
type AIConfig struct {
	Gemini     GeminiConfig     `yaml:"gemini"`
	OpenRouter OpenRouterConfig `yaml:"openrouter"`
	AvalAI     AvalAIConfig     `yaml:"avalai"`
}

// GeminiConfig is the primary provider.
type GeminiConfig struct {
	Endpoint string        `yaml:"endpoint" env:"GEMINI_ENDPOINT" env-default:"https://generativelanguage.googleapis.com/v1beta/models"`
	Model    string        `yaml:"model" env:"GEMINI_MODEL" env-default:"gemini-1.5-flash"`
	APIKey   string        `yaml:"apiKey" env:"GEMINI_API_KEY"`
	Timeout  time.Duration `yaml:"timeout" env:"GEMINI_TIMEOUT" env-default:"10s"`
}

// OpenRouterConfig is the secondary provider, tried once per key.
type OpenRouterConfig struct {
	Endpoint string        `yaml:"endpoint" env:"OPENROUTER_ENDPOINT" env-default:"https://openrouter.ai/api/v1/chat/completions"`
	Model    string        `yaml:"model" env:"OPENROUTER_MODEL" env-default:"meta-llama/llama-4-maverick:free"`
	Keys     []string      `yaml:"apiKeys"`
	Key1     string        `yaml:"-" env:"OPENROUTER_API_KEY_1"`
	Key2     string        `yaml:"-" env:"OPENROUTER_API_KEY_2"`
	Key3     string        `yaml:"-" env:"OPENROUTER_API_KEY_3"`
	Timeout  time.Duration `yaml:"timeout" env:"OPENROUTER_TIMEOUT" env-default:"5s"`
}

// APIKeys returns the ordered key list. File keys win over the numbered
// environment slots; empty slots are kept so they are reported as skipped.
func (o OpenRouterConfig) APIKeys() []string {
	if len(o.Keys) > 0 {
		return o.Keys
	}
	return []string{o.Key1, o.Key2, o.Key3}
}

// AvalAIConfig is the last-resort provider.
type AvalAIConfig struct {
	Endpoint string        `yaml:"endpoint" env:"AVALAI_ENDPOINT" env-default:"https://api.avalai.ir/v1/chat/completions"`
	Model    string        `yaml:"model" env:"AVALAI_MODEL" env-default:"gpt-4o-mini"`
	APIKey   string        `yaml:"apiKey" env:"AVALAI_API_KEY"`
	Timeout  time.Duration `yaml:"timeout" env:"AVALAI_TIMEOUT" env-default:"10s"`
}

// ScraperConfig tunes article page fetching.
type ScraperConfig struct {
	Timeout     time.Duration `yaml:"timeout" env:"SCRAPER_TIMEOUT" env-default:"5s"`
	UserAgent   string        `yaml:"userAgent" env:"SCRAPER_USER_AGENT" env-default:"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36"`
	MinFragment int           `yaml:"minFragment" env:"SCRAPER_MIN_FRAGMENT" env-default:"50"`
}

// FeedConfig tunes feed fetching.
type FeedConfig struct {
	Timeout time.Duration `yaml:"timeout" env:"FEED_TIMEOUT" env-default:"10s"`
}

// NotificationConfig encapsulates outbound channels.
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages. Broadcast is
// disabled when either the token or the chat is empty.
type TelegramConfig struct {
	BotToken string        `yaml:"botToken" env:"TELEGRAM_TOKEN"`
	ChatID   string        `yaml:"chatId" env:"TELEGRAM_CHAT_ID"`
	Endpoint string        `yaml:"endpoint" env:"TELEGRAM_ENDPOINT" env-default:"https://api.telegram.org"`
	Timeout  time.Duration `yaml:"timeout" env:"TELEGRAM_TIMEOUT" env-default:"5s"`
}

// Enabled reports whether both credentials are present.
func (t TelegramConfig) Enabled() bool {
	return t.BotToken != "" && t.ChatID != ""
}

// MetricsConfig controls run metrics export.
type MetricsConfig struct {
	PushgatewayURL string `yaml:"pushgatewayUrl" env:"PUSHGATEWAY_URL"`
	Job            string `yaml:"job" env:"METRICS_JOB" env-default:"feedrefiner"`
}

// HTTPConfig is used by the trigger server in serve mode.
type HTTPConfig struct {
	Addr string `yaml:"addr" env:"HTTP_ADDR" env-default:":8080"`
}

// Load reads the YAML file at path (or at $FEEDREFINER_CONFIG when path is
// empty), overlays environment variables and fills defaults for anything
// still unset.
func Load(path string) (Config, error) {
	var cfg Config

	if path == "" {
		path = os.Getenv(configPathEnv)
	}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return Config{}, fmt.Errorf("read env: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks values that would make a run meaningless.
func (c Config) Validate() error {
	var errs []error

	switch c.Store.Type {
	case StoreMongo, StoreDynamo, StorePostgres, StoreSQLite:
	default:
		errs = append(errs, fmt.Errorf("unsupported store type %q", c.Store.Type))
	}
	if c.Store.Type != StoreDynamo && c.Store.URI == "" {
		errs = append(errs, errors.New("store uri is required"))
	}
	if c.Run.SoftLimit <= 0 {
		errs = append(errs, errors.New("run soft limit must be positive"))
	}
	if c.Run.TasksPerRun < 1 {
		errs = append(errs, errors.New("tasks per run must be at least 1"))
	}
	if c.Run.RefillThreshold < 0 {
		errs = append(errs, errors.New("refill threshold must not be negative"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}
