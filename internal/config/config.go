// Package config は環境変数からのアプリケーション設定読み込みを提供する。
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
	// Store（起動時自動接続用。未設定の場合はUIの接続フォームから接続する）
	StoreURL string
	StoreKey string

	// Microsoft identity platform
	MSClientID     string
	MSClientSecret string
	MSTenantID     string
	MSRedirectURL  string

	// Graph
	GraphTimeout time.Duration

	// Rate Limit（req/min単位）
	RateLimitGeneral  int
	RateLimitMutation int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.MSClientID = os.Getenv("MS_CLIENT_ID")
	if cfg.MSClientID == "" {
		missing = append(missing, "MS_CLIENT_ID")
	}

	cfg.MSClientSecret = os.Getenv("MS_CLIENT_SECRET")
	if cfg.MSClientSecret == "" {
		missing = append(missing, "MS_CLIENT_SECRET")
	}

	cfg.MSTenantID = os.Getenv("MS_TENANT_ID")
	if cfg.MSTenantID == "" {
		missing = append(missing, "MS_TENANT_ID")
	}

	cfg.MSRedirectURL = os.Getenv("MS_REDIRECT_URL")
	if cfg.MSRedirectURL == "" {
		missing = append(missing, "MS_REDIRECT_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.StoreURL = os.Getenv("STORE_URL")
	cfg.StoreKey = os.Getenv("STORE_KEY")
	cfg.GraphTimeout = getEnvDuration("GRAPH_TIMEOUT", 30*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitMutation = getEnvInt("RATE_LIMIT_MUTATION", 30)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// AutoConnectEnabled は起動時のストア自動接続が設定されているかを返す。
func (c *Config) AutoConnectEnabled() bool {
	return c.StoreURL != "" && c.StoreKey != ""
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
