package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all environment backed configuration for the chat engine.
type Config struct {
	// Endpoints
	APIBaseURL string `env:"CHAT_API_BASE_URL,notEmpty" validate:"url"`
	PushURL    string `env:"CHAT_PUSH_URL,notEmpty" validate:"url"`

	// Session credential, issued by the auth layer and assumed valid.
	AuthToken   string `env:"CHAT_AUTH_TOKEN,notEmpty"`
	LocalUserID int64  `env:"CHAT_LOCAL_USER_ID,notEmpty" validate:"gt=0"`

	// History pagination
	PageSize int `env:"CHAT_PAGE_SIZE" envDefault:"30" validate:"gt=0,lte=100"`

	// Timing knobs
	TypingTTL             time.Duration `env:"CHAT_TYPING_TTL" envDefault:"2s"`
	TypingDebounce        time.Duration `env:"CHAT_TYPING_DEBOUNCE" envDefault:"2s"`
	BootstrapRetryDelay   time.Duration `env:"CHAT_BOOTSTRAP_RETRY_DELAY" envDefault:"3s"`
	BootstrapMaxAttempts  int           `env:"CHAT_BOOTSTRAP_MAX_ATTEMPTS" envDefault:"5" validate:"gt=0"`
	UnreadRefreshInterval time.Duration `env:"CHAT_UNREAD_REFRESH_INTERVAL" envDefault:"60s"`

	// REST retry policy
	HTTPTimeout   time.Duration `env:"CHAT_HTTP_TIMEOUT" envDefault:"30s"`
	MaxRetries    int           `env:"CHAT_MAX_RETRIES" envDefault:"3" validate:"gte=0"`
	RetryMaxDelay time.Duration `env:"CHAT_RETRY_MAX_DELAY" envDefault:"30s"`

	// Floating session persistence; empty selects the per-user default path.
	FloatingSessionPath string `env:"CHAT_FLOATING_SESSION_PATH"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

// Load reads an optional .env file, parses environment variables into Config
// and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	if cfg.FloatingSessionPath == "" {
		path, err := defaultFloatingSessionPath()
		if err != nil {
			return nil, err
		}
		cfg.FloatingSessionPath = path
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func defaultFloatingSessionPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".config", "gigline", "chat-session.yaml"), nil
}
