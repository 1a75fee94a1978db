package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Config struct {
	Env    string
	Port   string
	Mongo  MongoConfig
	Xendit XenditConfig
	Limits LimitsConfig
	Redis  RedisConfig
	Kafka  KafkaConfig

	JWTSecret       string
	PublicBaseURL   string
	PendingOrderTTL time.Duration
	SweepInterval   time.Duration
}

type MongoConfig struct {
	URI      string
	Database string
}

type XenditConfig struct {
	SecretKey     string
	BaseURL       string
	CallbackToken string
	SigningKey    string
	Currency      string
}

type LimitsConfig struct {
	RechargeMin decimal.Decimal
	RechargeMax decimal.Decimal
	ChargingMax decimal.Decimal
}

type RedisConfig struct {
	Addr     string
	Password string
	LockTTL  time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Load reads .env if present and then the process environment.
func Load(logger *zap.Logger) (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		logger.Debug("no .env file loaded", zap.Error(err))
	}

	cfg := &Config{
		Env:  getEnv("APP_ENV", "development"),
		Port: getEnv("PORT", "8080"),
		Mongo: MongoConfig{
			URI:      os.Getenv("MONGOURI"),
			Database: getEnv("MONGO_DB", "chargepaydb"),
		},
		Xendit: XenditConfig{
			SecretKey:     os.Getenv("XENDIT_SECRET_KEY"),
			BaseURL:       getEnv("XENDIT_BASE_URL", "https://api.xendit.co"),
			CallbackToken: os.Getenv("XENDIT_WEBHOOK_TOKEN"),
			SigningKey:    os.Getenv("XENDIT_SIGNING_KEY"),
			Currency:      getEnv("XENDIT_CURRENCY", "PHP"),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   getEnv("KAFKA_TOPIC", "payment-events"),
		},
		JWTSecret:     os.Getenv("JWT_SECRET"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
	}

	var err error
	if cfg.Limits.RechargeMin, err = getDecimal("RECHARGE_MIN", "1"); err != nil {
		return nil, err
	}
	if cfg.Limits.RechargeMax, err = getDecimal("RECHARGE_MAX", "5000"); err != nil {
		return nil, err
	}
	if cfg.Limits.ChargingMax, err = getDecimal("CHARGING_MAX", "1000"); err != nil {
		return nil, err
	}
	if cfg.PendingOrderTTL, err = getDuration("PENDING_ORDER_TTL", "30m"); err != nil {
		return nil, err
	}
	if cfg.SweepInterval, err = getDuration("SWEEP_INTERVAL", "1m"); err != nil {
		return nil, err
	}
	if cfg.Redis.LockTTL, err = getDuration("NOTIFY_LOCK_TTL", "10s"); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Mongo.URI == "" {
		return fmt.Errorf("MONGOURI environment variable not set")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET environment variable not set")
	}
	if c.Xendit.CallbackToken == "" {
		return fmt.Errorf("XENDIT_WEBHOOK_TOKEN environment variable not set")
	}
	if !c.Limits.RechargeMin.IsPositive() || c.Limits.RechargeMax.LessThan(c.Limits.RechargeMin) {
		return fmt.Errorf("recharge limits must satisfy 0 < RECHARGE_MIN <= RECHARGE_MAX")
	}
	if !c.Limits.ChargingMax.IsPositive() {
		return fmt.Errorf("CHARGING_MAX must be positive")
	}
	return nil
}

func (c *Config) NotifyURL() string {
	return c.PublicBaseURL + "/api/payment/webhook"
}

func (c *Config) ReturnURL() string {
	return c.PublicBaseURL + "/payment/result"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDecimal(key, defaultValue string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(getEnv(key, defaultValue))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getDuration(key, defaultValue string) (time.Duration, error) {
	d, err := time.ParseDuration(getEnv(key, defaultValue))
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
