package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultTimezone   = "Europe/Lisbon"
	configPathEnv     = "REDCARD_CONFIG"
	dotenvPathEnv     = "REDCARD_DOTENV"
	databaseDSNEnv    = "DATABASE_DSN"
	llmAPIKeyEnv      = "OPENROUTER_API_KEY"
	llmModelEnv       = "OPENROUTER_MODEL"
	telegramTokenEnv  = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv = "TELEGRAM_CHAT_ID"
	kafkaBrokersEnv   = "KAFKA_BROKERS"
	logLevelEnv       = "LOG_LEVEL"
	httpAddrEnv       = "HTTP_ADDR"
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Feeds         []FeedConfig       `yaml:"feeds"`
	Scraper       ScraperConfig      `yaml:"scraper"`
	LLM           LLMConfig          `yaml:"llm"`
	Pipeline      PipelineConfig     `yaml:"pipeline"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	HTTP          HTTPConfig         `yaml:"http"`
	Notifications NotificationConfig `yaml:"notifications"`
	Events        EventsConfig       `yaml:"events"`
}

// LoggingConfig selects the slog level and handler format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// DatabaseConfig describes the connection string. postgres:// DSNs use
// lib/pq, anything else is treated as a SQLite path.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// FeedConfig is one syndication feed of the publisher, keyed by topic.
type FeedConfig struct {
	Topic string `yaml:"topic"`
	URL   string `yaml:"url"`
}

// ScraperConfig tunes feed reading, page extraction and storage labels.
type ScraperConfig struct {
	MaxArticles      int               `yaml:"maxArticles"`
	UserAgent        string            `yaml:"userAgent"`
	FeedTimeout      time.Duration     `yaml:"feedTimeout"`
	PageTimeout      time.Duration     `yaml:"pageTimeout"`
	ConnectTimeout   time.Duration     `yaml:"connectTimeout"`
	PageInterval     time.Duration     `yaml:"pageInterval"`
	RespectRobots    bool              `yaml:"respectRobots"`
	ImageHosts       []string          `yaml:"imageHosts"`
	SourceLabel      string            `yaml:"sourceLabel"`
	Categories       map[string]string `yaml:"categories"`
	FallbackCategory string            `yaml:"fallbackCategory"`
}

// LLMConfig defines how to contact the OpenAI-compatible generation API.
type LLMConfig struct {
	Endpoint     string        `yaml:"endpoint"`
	Model        string        `yaml:"model"`
	APIKey       string        `yaml:"apiKey"`
	SystemPrompt string        `yaml:"systemPrompt"`
	Referer      string        `yaml:"referer"`
	AppTitle     string        `yaml:"appTitle"`
	Timeout      time.Duration `yaml:"timeout"`
	MaxAttempts  int           `yaml:"maxAttempts"`
	BackoffBase  time.Duration `yaml:"backoffBase"`
	Temperature  float32       `yaml:"temperature"`
	MaxTokens    int           `yaml:"maxTokens"`
}

// PipelineConfig bounds batch sizes and pacing of the orchestrator.
type PipelineConfig struct {
	BatchSize    int           `yaml:"batchSize"`
	ItemDelay    time.Duration `yaml:"itemDelay"`
	PublishLimit int           `yaml:"publishLimit"`
}

// SchedulerConfig defines when the recurring jobs fire.
type SchedulerConfig struct {
	PipelineCron  string         `yaml:"pipelineCron"`
	ScrapingCron  string         `yaml:"scrapingCron"`
	TransformCron string         `yaml:"transformCron"`
	Timezone      string         `yaml:"timezone"`
	AutoStart     bool           `yaml:"autoStart"`
	location      *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// HTTPConfig configures the operational control endpoint.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// EventsConfig configures publication events.
type EventsConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

// KafkaConfig enables the Kafka publisher when Brokers is not empty.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// Load reads .env and YAML configuration (if present) and applies environment overrides.
func Load() Config {
	dotenv := os.Getenv(dotenvPathEnv)
	if dotenv == "" {
		dotenv = ".env"
	}
	if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("config: cannot read %s: %v", dotenv, err)
	}

	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		loaded, err := loadFile(cfg, path)
		if err != nil {
			log.Printf("config: %v (falling back to defaults)", err)
		} else {
			cfg = loaded
		}
	}

	cfg.applyEnvOverrides()
	cfg.bindTimezone()

	if len(cfg.Feeds) == 0 {
		cfg.Feeds = defaultConfig().Feeds
	}

	return cfg
}

// loadFile decodes YAML on top of base so that absent keys keep their defaults.
func loadFile(base Config, path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("cannot read %s: %w", path, err)
	}
	cfg := base
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return base, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(llmAPIKeyEnv); v != "" {
		c.LLM.APIKey = v
	}

	if v := os.Getenv(llmModelEnv); v != "" {
		c.LLM.Model = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(kafkaBrokersEnv); v != "" {
		c.Events.Kafka.Brokers = splitAndTrim(v)
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(httpAddrEnv); v != "" {
		c.HTTP.Addr = v
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to UTC", tz)
		loc = time.UTC
	}
	c.Scheduler.location = loc
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Database.DSN) == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	for i, feed := range c.Feeds {
		if feed.Topic == "" || feed.URL == "" {
			errs = append(errs, fmt.Errorf("feeds[%d]: topic and url are required", i))
		}
	}
	if c.Scraper.MaxArticles <= 0 {
		errs = append(errs, errors.New("scraper.maxArticles must be positive"))
	}
	if c.Scraper.FeedTimeout <= 0 || c.Scraper.PageTimeout <= 0 {
		errs = append(errs, errors.New("scraper timeouts must be positive"))
	}
	if c.LLM.MaxAttempts <= 0 {
		errs = append(errs, errors.New("llm.maxAttempts must be positive"))
	}
	if c.Pipeline.BatchSize <= 0 {
		errs = append(errs, errors.New("pipeline.batchSize must be positive"))
	}
	if c.Pipeline.PublishLimit < 0 {
		errs = append(errs, errors.New("pipeline.publishLimit cannot be negative"))
	}
	return errors.Join(errs...)
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func defaultConfig() Config {
	tz, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		tz = time.UTC
	}
	return Config{
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Database: DatabaseConfig{DSN: "file:redcardnews.db"},
		Feeds: []FeedConfig{
			{Topic: "futebol", URL: "https://www.abola.pt/rss-articles.xml"},
		},
		Scraper: ScraperConfig{
			MaxArticles:    10,
			UserAgent:      "Mozilla/5.0 (compatible; RedCardNews/1.0; Sports News Aggregator)",
			FeedTimeout:    15 * time.Second,
			PageTimeout:    20 * time.Second,
			ConnectTimeout: 10 * time.Second,
			PageInterval:   time.Second,
			RespectRobots:  true,
			ImageHosts:     []string{"sportal365images.com"},
			SourceLabel:    "abola.pt",
			Categories: map[string]string{
				"futebol":       "Futebol",
				"modalidades":   "Outros Desportos",
				"internacional": "Internacional",
				"geral":         "Geral",
			},
			FallbackCategory: "Geral",
		},
		LLM: LLMConfig{
			Endpoint:    "https://openrouter.ai/api/v1",
			Model:       "google/gemini-2.0-flash-001",
			Referer:     "http://localhost:8080",
			AppTitle:    "RedCardNews",
			Timeout:     90 * time.Second,
			MaxAttempts: 3,
			BackoffBase: time.Second,
			Temperature: 0.8,
			MaxTokens:   10000,
		},
		Pipeline: PipelineConfig{
			BatchSize:    10,
			ItemDelay:    3 * time.Second,
			PublishLimit: 10,
		},
		Scheduler: SchedulerConfig{
			PipelineCron:  "0 */2 * * *",
			ScrapingCron:  "0 * * * *",
			TransformCron: "30 * * * *",
			Timezone:      defaultTimezone,
			location:      tz,
		},
		HTTP:   HTTPConfig{Addr: ":8080"},
		Events: EventsConfig{Kafka: KafkaConfig{Topic: "articles.published"}},
	}
}
