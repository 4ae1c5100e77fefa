package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var knownWeakSecrets = []string{
	"change-me", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port          int    `env:"PORT" envDefault:"8080"`
	DatabaseURL   string `env:"DATABASE_URL,required"`
	RedisURL      string `env:"REDIS_URL"`
	LogLevel      string `env:"LOG_LEVEL" envDefault:"info"`
	SessionSecret string `env:"SESSION_SECRET,required"`
	JWTSecret     string `env:"JWT_SECRET"`
	BaseURL       string `env:"BASE_URL" envDefault:"http://localhost:8080"`
	StaticDir     string `env:"STATIC_DIR" envDefault:"static"`
	RechargeURL   string `env:"RECHARGE_URL"`
	MaxBodyBytes  int64  `env:"MAX_BODY_BYTES" envDefault:"16777216"`

	PricePerToken       decimal.Decimal `env:"PRICE_PER_TOKEN_USD" envDefault:"0.000002"`
	PricePerGenToken    decimal.Decimal `env:"PRICE_PER_TOKEN_DEEPSEEK_USD" envDefault:"0.0000014"`
	PricePerMusic       decimal.Decimal `env:"PRICE_PER_MUSIC_USD" envDefault:"0.02"`
	PricePerPublish     decimal.Decimal `env:"PRICE_PER_PUBLISH_USD" envDefault:"50"`
	PricePerRepublish   decimal.Decimal `env:"PRICE_PER_REPUBLISH_USD" envDefault:"0.10"`
	PricePerImageSave   decimal.Decimal `env:"PRICE_PER_IMAGE_SAVE_USD" envDefault:"0.04"`
	MinSignupBalanceUSD decimal.Decimal `env:"MIN_SIGNUP_BALANCE_USD" envDefault:"5"`
	MinDepositUSD       decimal.Decimal `env:"MIN_DEPOSIT_USD" envDefault:"1"`

	WebsiteHourlyLimit int `env:"WEBSITE_HOURLY_LIMIT"`
	LegacySiteLimit    int `env:"MAX_REQUESTS_PER_HOUR_WEBSITE" envDefault:"1000"`

	OpenAIAPIKey         string `env:"OPENAI_API_KEY"`
	OpenAIBaseURL        string `env:"OPENAI_BASE_URL"`
	AssistantProfilePath string `env:"ASSISTANT_PROFILE_PATH" envDefault:"assistant.yaml"`
	AssistantID          string `env:"ASSISTANT_ID"`
	AssistantInstruction string `env:"ASSISTANT_INSTRUCTIONS"`

	GeneratorAPIKey  string `env:"GENERATOR_API_KEY"`
	GeneratorBaseURL string `env:"GENERATOR_BASE_URL"`
	GeneratorModel   string `env:"GENERATOR_MODEL" envDefault:"gpt-4o-mini"`
	GeneratorAzure   bool   `env:"GENERATOR_AZURE" envDefault:"false"`

	PixabayAPIKey string `env:"PIXABAY_API_KEY"`

	TokenMint            string `env:"SPL_TOKEN_MINT"`
	TreasuryWallet       string `env:"PLATFORM_TREASURY_WALLET"`
	SolanaRPCURL         string `env:"SOLANA_RPC_URL"`
	PaymentBackendURL    string `env:"PAYMENT_BACKEND_URL" envDefault:"http://localhost:8090"`
	TokenMetricsInterval int    `env:"TOKEN_PRICE_UPDATE_INTERVAL_SEC" envDefault:"120"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// SiteHourlyLimit prefers WEBSITE_HOURLY_LIMIT and falls back to the legacy variable.
func (c *Config) SiteHourlyLimit() int {
	if c.WebsiteHourlyLimit > 0 {
		return c.WebsiteHourlyLimit
	}
	if c.LegacySiteLimit > 0 {
		return c.LegacySiteLimit
	}
	return DefaultSiteHourlyLimit
}

func (c *Config) TokenMetricsEvery() time.Duration {
	if c.TokenMetricsInterval <= 0 {
		return DefaultTokenMetricsInterval
	}
	return time.Duration(c.TokenMetricsInterval) * time.Second
}

func (c *Config) Validate(isProduction bool) error {
	if c.PricePerToken.IsNegative() || c.PricePerGenToken.IsNegative() || c.PricePerMusic.IsNegative() {
		return fmt.Errorf("token and music prices must not be negative")
	}
	if c.PricePerPublish.IsNegative() || c.PricePerRepublish.IsNegative() || c.PricePerImageSave.IsNegative() {
		return fmt.Errorf("publish prices must not be negative")
	}

	if isProduction {
		if err := validateSecret("SESSION_SECRET", c.SessionSecret); err != nil {
			return err
		}
		if c.JWTSecret != "" {
			if err := validateSecret("JWT_SECRET", c.JWTSecret); err != nil {
				return err
			}
		} else {
			log.Warn().Msg("JWT_SECRET is empty in production: payment webhooks are disabled")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	if c.OpenAIAPIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY is empty: chat sessions will fail to start")
	}
	if c.PixabayAPIKey == "" {
		log.Warn().Msg("PIXABAY_API_KEY is empty: image search tool disabled")
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
