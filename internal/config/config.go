package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `env:"DATABASE_URL"`

	// Auth
	JWTSecret string        `env:"JWT_SECRET"`
	JWTTTL    time.Duration `env:"JWT_TTL" envDefault:"720h"`

	// AIプロバイダ（OpenAI互換）
	OpenAIAPIKey    string        `env:"OPENAI_API_KEY"`
	OpenAIBaseURL   string        `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	OpenAIChatModel string        `env:"OPENAI_CHAT_MODEL" envDefault:"gpt-5.2"`
	OpenAITTSModel  string        `env:"OPENAI_TTS_MODEL" envDefault:"tts-1-hd"`
	OpenAITTSVoice  string        `env:"OPENAI_TTS_VOICE" envDefault:"onyx"`
	OpenAISTTModel  string        `env:"OPENAI_STT_MODEL" envDefault:"whisper-1"`
	OpenAITimeout   time.Duration `env:"OPENAI_TIMEOUT" envDefault:"60s"`

	// Stripe
	StripeAPIKey        string `env:"STRIPE_API_KEY"`
	StripeBaseURL       string `env:"STRIPE_BASE_URL" envDefault:"https://api.stripe.com"`
	StripeWebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`

	// Rate Limit（req/min/user）
	RateLimitGeneral int `env:"RATE_LIMIT_GENERAL" envDefault:"120"`
	RateLimitOracle  int `env:"RATE_LIMIT_ORACLE" envDefault:"20"`

	// Worker
	ReconcileSchedule string        `env:"RECONCILE_SCHEDULE" envDefault:"@every 5m"`
	CheckoutExpiry    time.Duration `env:"CHECKOUT_EXPIRY" envDefault:"24h"`

	// Server
	ServerPort string `env:"SERVER_PORT" envDefault:"8080"`
	LogLevel   string `env:"LOG_LEVEL" envDefault:"info"`

	// CORS。チェックアウトの戻り先オリジンの許可リストも兼ねる。
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`

	// 外部送信をSSRF防止クライアント経由にするか。
	// ローカルのモックプロバイダに向ける場合のみfalseにする。
	OutboundSSRFGuard bool `env:"OUTBOUND_SSRF_GUARD" envDefault:"true"`
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合、または値の形式が不正な場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	var missing []string
	required := []struct {
		name  string
		value string
	}{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"JWT_SECRET", cfg.JWTSecret},
		{"OPENAI_API_KEY", cfg.OpenAIAPIKey},
		{"STRIPE_API_KEY", cfg.StripeAPIKey},
	}
	for _, r := range required {
		if r.value == "" {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if cfg.RateLimitGeneral <= 0 || cfg.RateLimitOracle <= 0 {
		return nil, fmt.Errorf("rate limits must be positive: general=%d oracle=%d",
			cfg.RateLimitGeneral, cfg.RateLimitOracle)
	}

	return cfg, nil
}
