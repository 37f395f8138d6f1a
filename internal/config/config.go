package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

type LLMProvider string

const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderYandex LLMProvider = "yandex"
)

type Config struct {
	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	// Telegram usernames without '@'. Admins implicitly have user rights.
	Users  []string `env:"USERS" envSeparator:":"`
	Admins []string `env:"ADMINS" envSeparator:":"`

	// Dialogue
	ConversationTimeout time.Duration `env:"CONVERSATION_TIMEOUT" envDefault:"10m"`
	DatetimeFormat      string        `env:"DATETIME_FORMAT" envDefault:"02.01.2006 15:04"`
	Timezone            string        `env:"TIMEZONE" envDefault:"UTC"`

	// LLM settings
	LLMProvider      LLMProvider `env:"LLM_PROVIDER" envDefault:"openai"`
	OpenAIAPIKey     string      `env:"OPENAI_API_KEY"`
	OpenAIBaseURL    string      `env:"OPENAI_BASE_URL"`
	OpenAIModel      string      `env:"OPENAI_MODEL" envDefault:"gpt-4o-mini"`
	YandexOAuthToken string      `env:"YANDEX_OAUTH_TOKEN"`
	YandexFolderID   string      `env:"YANDEX_FOLDER_ID"`

	// OpenRouter (optional)
	OpenRouterReferrer string `env:"OPENROUTER_REFERRER"`
	OpenRouterTitle    string `env:"OPENROUTER_TITLE"`

	// Summaries
	SummaryPromptPath string        `env:"SUMMARY_PROMPT_PATH" envDefault:"prompts/summary_prompt.txt"`
	SummaryTimeout    time.Duration `env:"SUMMARY_TIMEOUT" envDefault:"60s"`

	// Storage
	StoreDriver       string `env:"STORE_DRIVER" envDefault:"file"`
	StoreFilePath     string `env:"STORE_FILE_PATH" envDefault:"data/players.jsonl"`
	SQLitePath        string `env:"SQLITE_PATH" envDefault:"data/players.db"`
	DatabaseURL       string `env:"DATABASE_URL"`
	SessionFilePath   string `env:"SESSION_FILE_PATH" envDefault:"data/sessions.json"`
	AllowlistFilePath string `env:"ALLOWLIST_FILE_PATH" envDefault:"data/allowlist.json"`

	JanitorSchedule string `env:"JANITOR_SCHEDULE" envDefault:"@every 1m"`
}

// New parses the environment and exits on failure.
func New() *Config {
	cfg, err := Load()
	if err != nil {
		log.Fatalf("failed to parse config: %v", err)
	}
	return cfg
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("environment variables are invalid: %w", err)
	}
	cfg.Users = normalizeUsernames(cfg.Users)
	cfg.Admins = normalizeUsernames(cfg.Admins)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ConversationTimeout <= 0 {
		return fmt.Errorf("CONVERSATION_TIMEOUT must be positive, got %s", c.ConversationTimeout)
	}
	if c.SummaryTimeout <= 0 {
		return fmt.Errorf("SUMMARY_TIMEOUT must be positive, got %s", c.SummaryTimeout)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("TIMEZONE is invalid: %w", err)
	}
	switch strings.ToLower(c.StoreDriver) {
	case "memory", "file", "sqlite":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("STORE_DRIVER %q is not supported", c.StoreDriver)
	}
	switch c.LLMProvider {
	case ProviderOpenAI, ProviderYandex:
	default:
		return fmt.Errorf("LLM_PROVIDER %q is not supported", c.LLMProvider)
	}
	return nil
}

// Location returns the time zone used to display record timestamps.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func normalizeUsernames(in []string) []string {
	out := make([]string, 0, len(in))
	for _, u := range in {
		u = strings.TrimPrefix(strings.TrimSpace(u), "@")
		if u != "" {
			out = append(out, u)
		}
	}
	return out
}
