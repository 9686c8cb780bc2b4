package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the application configuration, populated from the environment.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// Database. Empty falls back to the in-memory stores, losing state
	// across restarts.
	DatabaseURL string `env:"DATABASE_URL"`

	// Google / Gmail
	GoogleClientID     string `env:"GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET"`
	GoogleProjectID    string `env:"GOOGLE_PROJECT_ID"`
	GoogleCredentials  string `env:"GOOGLE_APPLICATION_CREDENTIALS"`
	PubSubTopic        string `env:"PUBSUB_TOPIC" envDefault:"gmail-updates"`

	// Mailboxes to triage, comma separated. Token lists below pair with
	// mailboxes by position.
	Mailboxes          []string `env:"MAILBOXES"`
	GmailAccessTokens  []string `env:"GMAIL_ACCESS_TOKENS"`
	GmailRefreshTokens []string `env:"GMAIL_REFRESH_TOKENS"`

	// Classifier
	OpenRouterAPIKey  string        `env:"OPENROUTER_API_KEY,required"`
	OpenRouterBaseURL string        `env:"OPENROUTER_BASE_URL"`
	ClassifierModel   string        `env:"CLASSIFIER_MODEL" envDefault:"openai/gpt-5"`
	ClassifierTimeout time.Duration `env:"CLASSIFIER_TIMEOUT" envDefault:"60s"`

	// Telegram. Empty token disables notifications without erroring.
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `env:"TELEGRAM_CHAT_ID"`

	// Jobs
	DefaultBatchSize int           `env:"DEFAULT_BATCH_SIZE" envDefault:"50"`
	JobIdleTimeout   time.Duration `env:"JOB_IDLE_TIMEOUT" envDefault:"5m"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// TopicName returns the fully qualified Pub/Sub topic name.
func (c *Config) TopicName() string {
	return fmt.Sprintf("projects/%s/topics/%s", c.GoogleProjectID, c.PubSubTopic)
}

// PubSubEnabled reports whether the push notification intake can start.
func (c *Config) PubSubEnabled() bool {
	return c.GoogleProjectID != ""
}

// MailboxTokens pairs each configured mailbox with its access and refresh
// tokens by position.
func (c *Config) MailboxTokens() map[string][2]string {
	tokens := make(map[string][2]string, len(c.Mailboxes))
	for i, mailbox := range c.Mailboxes {
		var access, refresh string
		if i < len(c.GmailAccessTokens) {
			access = c.GmailAccessTokens[i]
		}
		if i < len(c.GmailRefreshTokens) {
			refresh = c.GmailRefreshTokens[i]
		}
		tokens[mailbox] = [2]string{access, refresh}
	}
	return tokens
}

// Load reads the configuration from the environment, honoring a local .env
// file when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.DefaultBatchSize <= 0 {
		return nil, fmt.Errorf("DEFAULT_BATCH_SIZE must be positive, got %d", cfg.DefaultBatchSize)
	}
	if len(cfg.GmailAccessTokens) > 0 && len(cfg.GmailAccessTokens) != len(cfg.Mailboxes) {
		return nil, fmt.Errorf("GMAIL_ACCESS_TOKENS must match MAILBOXES, got %d tokens for %d mailboxes",
			len(cfg.GmailAccessTokens), len(cfg.Mailboxes))
	}
	return cfg, nil
}
