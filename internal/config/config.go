// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultCatalogBaseURL はカタログプロバイダー（PokemonTCG.io v2）の既定URL。
const DefaultCatalogBaseURL = "https://api.pokemontcg.io/v2"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Identity (Privy)
	PrivyAppID           string
	PrivyVerificationKey string

	// Catalog
	CatalogBaseURL         string
	CatalogAPIKey          string
	CatalogTimeout         time.Duration
	CatalogPageSize        int
	CatalogPageConcurrency int
	CatalogMaxRetryElapsed time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitSetAdd  int

	// Logging
	LogLevel slog.Level

	// Server
	ServerPort string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// DOTENV_PATH（既定は .env）のファイルが存在すれば先に読み込むが、
// 既に設定されている環境変数は上書きしない。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	if err := loadDotenv(getEnvString("DOTENV_PATH", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.PrivyAppID = os.Getenv("PRIVY_APP_ID")
	if cfg.PrivyAppID == "" {
		missing = append(missing, "PRIVY_APP_ID")
	}

	// PEMの改行は "\n" のエスケープで渡されることが多い
	cfg.PrivyVerificationKey = strings.ReplaceAll(os.Getenv("PRIVY_VERIFICATION_KEY"), `\n`, "\n")
	if cfg.PrivyVerificationKey == "" {
		missing = append(missing, "PRIVY_VERIFICATION_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.CatalogBaseURL = strings.TrimRight(getEnvString("CATALOG_BASE_URL", DefaultCatalogBaseURL), "/")
	cfg.CatalogAPIKey = getEnvString("CATALOG_API_KEY", "")
	cfg.CatalogTimeout = getEnvDuration("CATALOG_TIMEOUT", 10*time.Second)
	cfg.CatalogPageSize = getEnvInt("CATALOG_PAGE_SIZE", 250)
	if cfg.CatalogPageSize <= 0 || cfg.CatalogPageSize > 250 {
		cfg.CatalogPageSize = 250
	}
	cfg.CatalogPageConcurrency = getEnvInt("CATALOG_PAGE_CONCURRENCY", 4)
	if cfg.CatalogPageConcurrency <= 0 {
		cfg.CatalogPageConcurrency = 1
	}
	cfg.CatalogMaxRetryElapsed = getEnvDuration("CATALOG_MAX_RETRY_ELAPSED", 20*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSetAdd = getEnvInt("RATE_LIMIT_SET_ADD", 10)
	cfg.LogLevel = getEnvLogLevel("LOG_LEVEL", slog.LevelInfo)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// loadDotenv は.envファイルを読み込む。ファイルが存在しない場合は何もしない。
func loadDotenv(path string) error {
	if path == "" {
		return nil
	}
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load %s: %w", path, err)
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvLogLevel(key string, defaultVal slog.Level) slog.Level {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(v)); err != nil {
		return defaultVal
	}
	return level
}
