package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	TelegramBotToken      string
	BotDebug              bool
	LogLevel              string
	LogFormat             string
	UpdatesTimeoutSeconds int
	SessionTimeoutSeconds int
	SweepIntervalSeconds  int
	BackendTimeoutSeconds int
	SaveToSavedMessages   bool
	ShowSessionInChat     bool
	MTProtoTestDC         bool
}

// Load reads the environment, after loading a .env file when one exists.
func Load() *Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn(".env could not be read, using the environment only", "error", err)
	}

	cfg := &Config{
		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		LogLevel:         getEnv("LOG_LEVEL", "info"),
		LogFormat:        getEnv("LOG_FORMAT", "text"),
	}

	cfg.BotDebug = getEnvAsBool("BOT_DEBUG", false)
	cfg.UpdatesTimeoutSeconds = getEnvAsInt("UPDATES_TIMEOUT_SECONDS", 60)
	cfg.SessionTimeoutSeconds = getEnvAsInt("SESSION_TIMEOUT_SECONDS", 300)
	cfg.SweepIntervalSeconds = getEnvAsInt("SWEEP_INTERVAL_SECONDS", 30)
	cfg.BackendTimeoutSeconds = getEnvAsInt("BACKEND_TIMEOUT_SECONDS", 30)
	cfg.SaveToSavedMessages = getEnvAsBool("SAVE_TO_SAVED_MESSAGES", true)
	cfg.ShowSessionInChat = getEnvAsBool("SHOW_SESSION_IN_CHAT", true)
	cfg.MTProtoTestDC = getEnvAsBool("MTPROTO_TEST_DC", false)

	return cfg
}

// Validate reports every missing or out-of-range setting.
func (c *Config) Validate() error {
	var errs []error
	if c.TelegramBotToken == "" {
		errs = append(errs, errors.New("TELEGRAM_BOT_TOKEN is required"))
	}
	if c.UpdatesTimeoutSeconds < 0 {
		errs = append(errs, errors.New("UPDATES_TIMEOUT_SECONDS must not be negative"))
	}
	if c.SessionTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("SESSION_TIMEOUT_SECONDS must be positive"))
	}
	if c.SweepIntervalSeconds <= 0 {
		errs = append(errs, errors.New("SWEEP_INTERVAL_SECONDS must be positive"))
	}
	if c.BackendTimeoutSeconds <= 0 {
		errs = append(errs, errors.New("BACKEND_TIMEOUT_SECONDS must be positive"))
	}
	if !c.SaveToSavedMessages && !c.ShowSessionInChat {
		errs = append(errs, errors.New("at least one of SAVE_TO_SAVED_MESSAGES and SHOW_SESSION_IN_CHAT must be enabled"))
	}
	return errors.Join(errs...)
}

func (c *Config) SessionTimeout() time.Duration {
	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

func (c *Config) SweepInterval() time.Duration {
	return time.Duration(c.SweepIntervalSeconds) * time.Second
}

func (c *Config) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutSeconds) * time.Second
}

func getEnv(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsInt(key string, defaultVal int) int {
	valStr := os.Getenv(key)
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(valStr)
	if err != nil {
		slog.Warn("invalid integer setting, using default", "key", key, "default", defaultVal)
		return defaultVal
	}
	return val
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := strings.TrimSpace(os.Getenv(key))
	if valStr == "" {
		return defaultVal
	}
	val, err := strconv.ParseBool(valStr)
	if err != nil {
		slog.Warn("invalid boolean setting, using default", "key", key, "default", defaultVal)
		return defaultVal
	}
	return val
}
