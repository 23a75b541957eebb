package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

// Configはアプリ全体の設定
type Config struct {
	Port string // サーバーポート（8080）

	DatabaseURL      string // あれば最優先
	PostgresUser     string // DBユーザー
	PostgresPassword string // DBパスワード
	PostgresDB       string // DB名
	PostgresHost     string // DBホスト（localhost）
	PostgresPort     int    // DBポート（5432）
	PostgresSSLMode  string
	DBLockTimeout    time.Duration // 行ロック待ち上限（超えたら503 STORE_BUSY）

	JWTSecret       string        // JWT署名シークレット
	AccessTokenTTL  time.Duration // 15m
	RefreshTokenTTL time.Duration // 14日
	CookieSecure    bool

	GoEnv    string // dev/prod
	FEURL    string // フロントURL（CORSやリダイレクト先）
	LogLevel string

	// 価格・送料
	BaseCurrency          string
	FreeShippingThreshold decimal.Decimal
	FlatShippingFee       decimal.Decimal

	// 決済
	PaymentTimeout        time.Duration
	StripeSecretKey       string
	StripeWebhookSecret   string
	StripeBaseURL         string
	RazorpayKeyID         string
	RazorpayKeySecret     string
	RazorpayWebhookSecret string
	RazorpayBaseURL       string

	// 周辺
	RedisAddr        string // 空ならWebhookのdedupeはDBのみ
	RabbitMQURL      string // 空ならイベント発行しない
	RabbitMQExchange string
	FXRatesURL       string // 空なら表示通貨変換なし
	FXRatesTTL       time.Duration
	ReceiptDir       string
}

func (c Config) IsProd() bool {
	return c.GoEnv == "prod"
}

// Loadは .env → 環境変数 の順で読む
func Load() (Config, error) {
	// .envは無くてもよい
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	threshold, err := decimal.NewFromString(v.GetString("FREE_SHIPPING_THRESHOLD"))
	if err != nil {
		return Config{}, fmt.Errorf("FREE_SHIPPING_THRESHOLD must be decimal: %w", err)
	}
	flatFee, err := decimal.NewFromString(v.GetString("FLAT_SHIPPING_FEE"))
	if err != nil {
		return Config{}, fmt.Errorf("FLAT_SHIPPING_FEE must be decimal: %w", err)
	}

	cfg := Config{
		Port: v.GetString("PORT"),

		DatabaseURL:      v.GetString("DATABASE_URL"),
		PostgresUser:     v.GetString("POSTGRES_USER"),
		PostgresPassword: v.GetString("POSTGRES_PASSWORD"),
		PostgresDB:       v.GetString("POSTGRES_DB"),
		PostgresHost:     v.GetString("POSTGRES_HOST"),
		PostgresPort:     v.GetInt("POSTGRES_PORT"),
		PostgresSSLMode:  v.GetString("POSTGRES_SSLMODE"),
		DBLockTimeout:    v.GetDuration("DB_LOCK_TIMEOUT"),

		JWTSecret:       v.GetString("JWT_SECRET"),
		AccessTokenTTL:  v.GetDuration("ACCESS_TOKEN_TTL"),
		RefreshTokenTTL: v.GetDuration("REFRESH_TOKEN_TTL"),
		CookieSecure:    v.GetBool("COOKIE_SECURE"),

		GoEnv:    v.GetString("GO_ENV"),
		FEURL:    v.GetString("FE_URL"),
		LogLevel: v.GetString("LOG_LEVEL"),

		BaseCurrency:          strings.ToUpper(v.GetString("BASE_CURRENCY")),
		FreeShippingThreshold: threshold,
		FlatShippingFee:       flatFee,

		PaymentTimeout:        v.GetDuration("PAYMENT_TIMEOUT"),
		StripeSecretKey:       v.GetString("STRIPE_SECRET_KEY"),
		StripeWebhookSecret:   v.GetString("STRIPE_WEBHOOK_SECRET"),
		StripeBaseURL:         v.GetString("STRIPE_BASE_URL"),
		RazorpayKeyID:         v.GetString("RAZORPAY_KEY_ID"),
		RazorpayKeySecret:     v.GetString("RAZORPAY_KEY_SECRET"),
		RazorpayWebhookSecret: v.GetString("RAZORPAY_WEBHOOK_SECRET"),
		RazorpayBaseURL:       v.GetString("RAZORPAY_BASE_URL"),

		RedisAddr:        v.GetString("REDIS_ADDR"),
		RabbitMQURL:      v.GetString("RABBITMQ_URL"),
		RabbitMQExchange: v.GetString("RABBITMQ_EXCHANGE"),
		FXRatesURL:       v.GetString("FX_RATES_URL"),
		FXRatesTTL:       v.GetDuration("FX_RATES_TTL"),
		ReceiptDir:       v.GetString("RECEIPT_DIR"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PORT", "8080")
	v.SetDefault("POSTGRES_HOST", "localhost")
	v.SetDefault("POSTGRES_PORT", 5432)
	v.SetDefault("POSTGRES_USER", "postgres")
	v.SetDefault("POSTGRES_DB", "storefront")
	v.SetDefault("POSTGRES_SSLMODE", "disable")
	v.SetDefault("DB_LOCK_TIMEOUT", "3s")
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("REFRESH_TOKEN_TTL", "336h")
	v.SetDefault("COOKIE_SECURE", false)
	v.SetDefault("GO_ENV", "dev")
	v.SetDefault("FE_URL", "http://localhost:3000")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("BASE_CURRENCY", "USD")
	v.SetDefault("FREE_SHIPPING_THRESHOLD", "500")
	v.SetDefault("FLAT_SHIPPING_FEE", "50")
	v.SetDefault("PAYMENT_TIMEOUT", "5s")
	v.SetDefault("STRIPE_BASE_URL", "https://api.stripe.com")
	v.SetDefault("RAZORPAY_BASE_URL", "https://api.razorpay.com")
	v.SetDefault("RABBITMQ_EXCHANGE", "storefront.orders")
	v.SetDefault("FX_RATES_TTL", "1h")
	v.SetDefault("RECEIPT_DIR", "./receipts")
}

// 必須チェック
func (c Config) validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.DatabaseURL == "" && c.PostgresHost == "" {
		return fmt.Errorf("DATABASE_URL or POSTGRES_HOST is required")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.BaseCurrency) != 3 {
		return fmt.Errorf("BASE_CURRENCY must be ISO 4217 code: %q", c.BaseCurrency)
	}
	if c.FreeShippingThreshold.IsNegative() || c.FlatShippingFee.IsNegative() {
		return fmt.Errorf("shipping settings must not be negative")
	}
	if c.DBLockTimeout < 0 {
		return fmt.Errorf("DB_LOCK_TIMEOUT must not be negative")
	}
	if c.PaymentTimeout <= 0 {
		return fmt.Errorf("PAYMENT_TIMEOUT must be positive")
	}
	return nil
}

// DSN はgorm用の接続文字列
func (c Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.PostgresHost, c.PostgresPort, c.PostgresUser, c.PostgresPassword, c.PostgresDB, c.PostgresSSLMode,
	)
}
