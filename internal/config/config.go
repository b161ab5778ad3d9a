package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the API server and its clients.
type Config struct {
	ListenAddr            string
	MySQLDSN              string
	IdentityBaseURL       string
	IdentityAPIKey        string
	GeminiAPIKey          string
	GeminiBaseURL         string
	GeminiModel           string
	RequestTimeout        time.Duration
	SessionRefreshTimeout time.Duration
	StartingFreeCredits   int
	PaymentWebhookSecret  string
	ArchiveEndpoint       string
	ArchiveRegion         string
	ArchiveAccessKey      string
	ArchiveSecretKey      string
	ArchiveBucket         string
	ArchiveUsePathStyle   bool
	ArchivePrefix         string
	AlertBotToken         string
	AlertChatID           int64
}

// Load reads configuration from environment variables, applying sane defaults.
func Load() (Config, error) {
	if err := loadEnvFile(); err != nil {
		return Config{}, err
	}

	cfg := Config{
		ListenAddr:            getEnv("HTTP_LISTEN_ADDR", ":8080"),
		GeminiBaseURL:         strings.TrimRight(getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"), "/"),
		GeminiModel:           getEnv("GEMINI_MODEL", "gemini-2.5-flash-image"),
		RequestTimeout:        time.Second * time.Duration(getInt("HTTP_TIMEOUT_SECONDS", 60)),
		SessionRefreshTimeout: time.Second * time.Duration(getInt("SESSION_REFRESH_TIMEOUT_SECONDS", 10)),
		StartingFreeCredits:   getInt("FREE_STARTING_CREDITS", 3),
		ArchiveEndpoint:       getEnv("ARCHIVE_S3_ENDPOINT", ""),
		ArchiveRegion:         os.Getenv("ARCHIVE_S3_REGION"),
		ArchiveAccessKey:      os.Getenv("ARCHIVE_S3_ACCESS_KEY"),
		ArchiveSecretKey:      os.Getenv("ARCHIVE_S3_SECRET_KEY"),
		ArchiveBucket:         os.Getenv("ARCHIVE_S3_BUCKET"),
		ArchiveUsePathStyle:   getBool("ARCHIVE_S3_USE_PATH_STYLE", false),
		ArchivePrefix:         getEnv("ARCHIVE_S3_PREFIX", "undelivered"),
		AlertBotToken:         os.Getenv("ALERT_BOT_TOKEN"),
		AlertChatID:           getInt64("ALERT_CHAT_ID", 0),
	}

	cfg.MySQLDSN = os.Getenv("MYSQL_DSN")
	cfg.IdentityBaseURL = strings.TrimRight(os.Getenv("IDENTITY_BASE_URL"), "/")
	cfg.IdentityAPIKey = os.Getenv("IDENTITY_API_KEY")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")
	cfg.PaymentWebhookSecret = os.Getenv("PAYMENT_WEBHOOK_SECRET")

	var missing []string
	if cfg.MySQLDSN == "" {
		missing = append(missing, "MYSQL_DSN")
	}
	if cfg.IdentityBaseURL == "" {
		missing = append(missing, "IDENTITY_BASE_URL")
	}
	if cfg.IdentityAPIKey == "" {
		missing = append(missing, "IDENTITY_API_KEY")
	}
	if cfg.GeminiAPIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if cfg.PaymentWebhookSecret == "" {
		missing = append(missing, "PAYMENT_WEBHOOK_SECRET")
	}
	if cfg.ArchiveBucket != "" {
		if cfg.ArchiveRegion == "" {
			missing = append(missing, "ARCHIVE_S3_REGION")
		}
		if cfg.ArchiveAccessKey == "" {
			missing = append(missing, "ARCHIVE_S3_ACCESS_KEY")
		}
		if cfg.ArchiveSecretKey == "" {
			missing = append(missing, "ARCHIVE_S3_SECRET_KEY")
		}
	}
	if cfg.AlertBotToken != "" && cfg.AlertChatID == 0 {
		missing = append(missing, "ALERT_CHAT_ID")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variables: %v", missing)
	}

	return cfg, nil
}

// ArchiveEnabled reports whether the undelivered-image archive is configured.
func (c Config) ArchiveEnabled() bool {
	return c.ArchiveBucket != ""
}

// AlertsEnabled reports whether operator alerts are configured.
func (c Config) AlertsEnabled() bool {
	return c.AlertBotToken != ""
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return i
}

func getInt64(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return i
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func loadEnvFile() error {
	candidates := []string{}
	if custom, ok := os.LookupEnv("CONFIG_ENV_PATH"); ok && custom != "" {
		candidates = append(candidates, custom)
	}
	candidates = append(candidates,
		filepath.Join("configs", ".env"),
		".env",
	)

	for _, path := range candidates {
		info, err := os.Stat(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("access env file %s: %w", path, err)
		}
		if info.IsDir() {
			continue
		}
		if err := godotenv.Overload(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	// Running purely off the process environment is fine.
	return nil
}
