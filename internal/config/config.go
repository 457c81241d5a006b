package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr  string
	BaseURL     string
	FrontendURL string
	DatabaseURL string

	CookieHashKey  []byte
	CookieBlockKey []byte
	CredEncKey     []byte // 32 bytes for AES-256-GCM

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// StrictExternalCheck blocks booking creation when the external
	// conflict check fails, instead of degrading to "no conflict".
	StrictExternalCheck bool
	GatewayTimeout      time.Duration

	LogLevel string
}

func FromEnv() (Config, error) {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := Config{
		ListenAddr:  envDefault("LISTEN_ADDR", ":8080"),
		BaseURL:     envDefault("BASE_URL", "http://localhost:8080"),
		FrontendURL: envDefault("FRONTEND_URL", "http://localhost:3000"),
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),

		GoogleClientID:     strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),
		GoogleClientSecret: strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_SECRET")),
		GoogleRedirectURL:  strings.TrimSpace(os.Getenv("GOOGLE_REDIRECT_URI")),

		StrictExternalCheck: strings.TrimSpace(os.Getenv("STRICT_EXTERNAL_CHECK")) == "1",
		LogLevel:            envDefault("LOG_LEVEL", "info"),
	}
	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.GoogleRedirectURL == "" {
		cfg.GoogleRedirectURL = strings.TrimRight(cfg.BaseURL, "/") + "/google/callback"
	}

	timeoutSec, err := strconv.Atoi(envDefault("GATEWAY_TIMEOUT_SECONDS", "10"))
	if err != nil || timeoutSec < 1 {
		return cfg, fmt.Errorf("invalid GATEWAY_TIMEOUT_SECONDS")
	}
	cfg.GatewayTimeout = time.Duration(timeoutSec) * time.Second

	cfg.CookieHashKey, err = mustB64("COOKIE_HASH_KEY")
	if err != nil {
		return cfg, err
	}
	cfg.CookieBlockKey, err = mustB64("COOKIE_BLOCK_KEY")
	if err != nil {
		return cfg, err
	}
	cfg.CredEncKey, err = mustB64("CRED_ENC_KEY")
	if err != nil {
		return cfg, err
	}
	if len(cfg.CredEncKey) != 32 {
		return cfg, fmt.Errorf("CRED_ENC_KEY must decode to 32 bytes (got %d)", len(cfg.CredEncKey))
	}
	return cfg, nil
}

func envDefault(k, d string) string {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return d
	}
	return v
}

func mustB64(k string) ([]byte, error) {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return nil, fmt.Errorf("%s is required (base64)", k)
	}
	if b, err := base64.StdEncoding.DecodeString(v); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(v)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", k, err)
	}
	return b, nil
}
