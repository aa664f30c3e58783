// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Logging
	LogLevel string

	// Registry
	FeedRegistryPath string

	// Fetch
	FetchTimeout       time.Duration
	FetchMaxSize       int64
	FetchMaxConcurrent int
	FetchMaxRetries    int

	// Ingest
	IngestInterval      time.Duration
	IngestMaxCategories int
	PerSourceLimit      int
	CategoryLimit       int

	// Filler
	FillerEnabled     bool
	FillerMinArticles int
	OpenAIAPIKey      string
	OpenAIModel       string
	OpenAIBaseURL     string

	// Digest
	DigestInterval   time.Duration
	MailSendInterval time.Duration
	MailFrom         string
	MailSubject      string
	ResendAPIKey     string
	ResendBaseURL    string
	SiteURL          string

	// Cleanup
	ArticleRetentionDays int
	CleanupInterval      time.Duration

	// Server
	ServerPort string
	// JobsToken が設定されている場合、ジョブ起動エンドポイントはBearerトークンを要求する。
	JobsToken string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、または設定値の組み合わせが不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.FeedRegistryPath = getEnvString("FEED_REGISTRY_PATH", "")
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)
	cfg.FetchMaxConcurrent = getEnvInt("FETCH_MAX_CONCURRENT", 10)
	cfg.FetchMaxRetries = getEnvInt("FETCH_MAX_RETRIES", 2)
	cfg.IngestInterval = getEnvDuration("INGEST_INTERVAL", 6*time.Hour)
	cfg.IngestMaxCategories = getEnvInt("INGEST_MAX_CATEGORIES", 4)
	cfg.PerSourceLimit = getEnvInt("PER_SOURCE_LIMIT", 3)
	cfg.CategoryLimit = getEnvInt("CATEGORY_LIMIT", 5)
	cfg.FillerEnabled = getEnvBool("FILLER_ENABLED", false)
	cfg.FillerMinArticles = getEnvInt("FILLER_MIN_ARTICLES", 3)
	cfg.OpenAIAPIKey = getEnvString("OPENAI_API_KEY", "")
	cfg.OpenAIModel = getEnvString("OPENAI_MODEL", "gpt-4o-mini")
	cfg.OpenAIBaseURL = getEnvString("OPENAI_BASE_URL", "")
	cfg.DigestInterval = getEnvDuration("DIGEST_INTERVAL", 7*24*time.Hour)
	cfg.MailSendInterval = getEnvDuration("MAIL_SEND_INTERVAL", 600*time.Millisecond)
	cfg.MailFrom = getEnvString("MAIL_FROM", "FitPress <newsletter@fitpress.app>")
	cfg.MailSubject = getEnvString("MAIL_SUBJECT", "Your Weekly FitPress Fitness Digest")
	cfg.ResendAPIKey = getEnvString("RESEND_API_KEY", "")
	cfg.ResendBaseURL = getEnvString("RESEND_BASE_URL", "https://api.resend.com/")
	cfg.SiteURL = getEnvString("SITE_URL", "https://fitpress.app")
	cfg.ArticleRetentionDays = getEnvInt("ARTICLE_RETENTION_DAYS", 30)
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", 24*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.JobsToken = getEnvString("JOBS_TOKEN", "")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate は設定値の組み合わせを検証する。
func (c *Config) Validate() error {
	if c.FillerEnabled && c.OpenAIAPIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when FILLER_ENABLED is true")
	}
	if c.PerSourceLimit <= 0 {
		return fmt.Errorf("PER_SOURCE_LIMIT must be positive: %d", c.PerSourceLimit)
	}
	if c.CategoryLimit <= 0 {
		return fmt.Errorf("CATEGORY_LIMIT must be positive: %d", c.CategoryLimit)
	}
	if c.ArticleRetentionDays <= 0 {
		return fmt.Errorf("ARTICLE_RETENTION_DAYS must be positive: %d", c.ArticleRetentionDays)
	}
	return nil
}

// CanSendMail はダイジェスト送信に必要な設定が揃っているかを返す。
func (c *Config) CanSendMail() bool {
	return c.ResendAPIKey != ""
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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
