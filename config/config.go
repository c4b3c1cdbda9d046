package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// MemoryDBPath selects the in-memory state store instead of SQLite.
const MemoryDBPath = ":memory:"

const maxCooldownPeriod = 24 * time.Hour

// Config application configuration
type Config struct {
	TelegramToken string
	GeminiAPIKey  string
	GeminiModel   string
	StateDBPath   string
	UsersXLSXPath string
	LogLevel      string

	DefaultUsername string
	DefaultPassword string

	MaxChatsPerDay      int
	MaxQuestionsPerChat int
	CooldownPeriod      time.Duration
}

// Load reads configuration from the environment (and .env if present)
func Load() (*Config, error) {
	_ = godotenv.Load()

	config := &Config{
		TelegramToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		GeminiAPIKey:        os.Getenv("GEMINI_API_KEY"),
		GeminiModel:         "gemini-1.5-flash",
		StateDBPath:         "data/state.db",
		UsersXLSXPath:       os.Getenv("USERS_XLSX_PATH"),
		LogLevel:            "info",
		DefaultUsername:     "user",
		DefaultPassword:     "pass123",
		MaxChatsPerDay:      5,
		MaxQuestionsPerChat: 5,
		CooldownPeriod:      time.Hour,
	}

	if model := os.Getenv("GEMINI_MODEL"); model != "" {
		config.GeminiModel = model
	}
	if dbPath := os.Getenv("STATE_DB_PATH"); dbPath != "" {
		config.StateDBPath = dbPath
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		config.LogLevel = level
	}
	if name := os.Getenv("DEFAULT_USERNAME"); name != "" {
		config.DefaultUsername = name
	}
	if password := os.Getenv("DEFAULT_PASSWORD"); password != "" {
		config.DefaultPassword = password
	}

	if raw := os.Getenv("MAX_CHATS_PER_DAY"); raw != "" {
		parsed, err := parsePositiveInt(raw)
		if err != nil {
			return nil, fmt.Errorf("MAX_CHATS_PER_DAY is invalid: %w", err)
		}
		config.MaxChatsPerDay = parsed
	}

	if raw := os.Getenv("MAX_QUESTIONS_PER_CHAT"); raw != "" {
		parsed, err := parsePositiveInt(raw)
		if err != nil {
			return nil, fmt.Errorf("MAX_QUESTIONS_PER_CHAT is invalid: %w", err)
		}
		config.MaxQuestionsPerChat = parsed
	}

	if raw := os.Getenv("COOLDOWN_PERIOD"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("COOLDOWN_PERIOD is invalid: %w", err)
		}
		if parsed < 0 {
			return nil, fmt.Errorf("COOLDOWN_PERIOD must not be negative")
		}
		// quota state resets at midnight, a longer cooldown could never be served
		if parsed > maxCooldownPeriod {
			return nil, fmt.Errorf("COOLDOWN_PERIOD must not exceed %s", maxCooldownPeriod)
		}
		config.CooldownPeriod = parsed
	}

	// Validation
	if config.TelegramToken == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable is empty")
	}

	return config, nil
}

func parsePositiveInt(raw string) (int, error) {
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, fmt.Errorf("must be positive, got %d", n)
	}
	return n, nil
}
