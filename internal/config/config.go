package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"eventcart/internal/database"
	"eventcart/internal/external"
	"eventcart/internal/messaging"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Config содержит конфигурацию приложения
type Config struct {
	Port           string        `env:"PORT" env-default:"8081"`
	GinMode        string        `env:"GIN_MODE" env-default:"debug"`
	LogLevel       string        `env:"LOG_LEVEL" env-default:"info"`
	LogFormat      string        `env:"LOG_FORMAT" env-default:"json"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" env-default:"30s"`
	StoreDriver    string        `env:"STORE_DRIVER" env-default:"postgres"`

	Database      database.Config
	NATS          messaging.Config
	Payment       external.PaymentConfig
	Auth          AuthConfig
	SMTP          SMTPConfig
	Elasticsearch ElasticsearchConfig
	Cache         CacheConfig
	Checkout      CheckoutConfig
	Admin         AdminConfig
}

// AuthConfig - параметры подписи токенов
type AuthConfig struct {
	JWTSecret string        `env:"JWT_SECRET" env-default:"change-me"`
	TokenTTL  time.Duration `env:"JWT_TTL" env-default:"1h"`
}

// SMTPConfig - параметры почтового сервера
type SMTPConfig struct {
	Host     string        `env:"SMTP_HOST" env-default:"localhost"`
	Port     int           `env:"SMTP_PORT" env-default:"587"`
	Username string        `env:"SMTP_USERNAME"`
	Password string        `env:"SMTP_PASSWORD"`
	From     string        `env:"SMTP_FROM" env-default:"no-reply@eventcart.local"`
	Timeout  time.Duration `env:"SMTP_TIMEOUT" env-default:"5s"`
	// Queue: письма уходят через NATS и отправляются процессом consumers
	Queue bool `env:"SMTP_VIA_QUEUE" env-default:"false"`
}

// CacheConfig - параметры Valkey
type CacheConfig struct {
	Enabled  bool          `env:"VALKEY_ENABLED" env-default:"false"`
	Addr     string        `env:"VALKEY_ADDR" env-default:"localhost:6379"`
	Password string        `env:"VALKEY_PASSWORD"`
	TTL      time.Duration `env:"VALKEY_EVENTS_TTL" env-default:"30s"`
}

// CheckoutConfig - параметры жизненного цикла оплаты
type CheckoutConfig struct {
	// ExpireAfter: через сколько PENDING_PAYMENT корзина считается просроченной
	ExpireAfter   time.Duration `env:"CHECKOUT_EXPIRE_AFTER" env-default:"15m"`
	ReapInterval  time.Duration `env:"CHECKOUT_REAP_INTERVAL" env-default:"30s"`
	ReapBatchSize int           `env:"CHECKOUT_REAP_BATCH" env-default:"100"`
}

// AdminConfig - учётная запись администратора, создаваемая при старте
type AdminConfig struct {
	Username string `env:"ADMIN_USERNAME"`
	Email    string `env:"ADMIN_EMAIL"`
	Password string `env:"ADMIN_PASSWORD"`
}

// Load загружает конфигурацию из .env (если есть) и переменных окружения
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		slog.Warn("Failed to read .env file", "error", err)
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if cfg.StoreDriver != StorePostgres && cfg.StoreDriver != StoreMemory {
		return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
	}
	if cfg.Auth.TokenTTL <= 0 {
		return nil, fmt.Errorf("JWT_TTL must be positive")
	}

	return &cfg, nil
}

// MustLoad - Load, завершающий процесс при ошибке
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	return cfg
}
