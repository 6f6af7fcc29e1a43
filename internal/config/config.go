// Package config предоставялет структуры и функции для парсинга и загрузки конфига.
// Значения читаются из YAML-файла (CONFIG_PATH), секреты могут быть переопределены
// переменными окружения.
package config

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек
type Config struct {
	Env                     string `yaml:"env" env:"APP_ENV" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string" env:"STORAGE_CONNECTION_STRING"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`
	RedisConnection         `yaml:"redis_connection"`
	RabbitMQ                `yaml:"rabbitmq"`
	HTTPServer              `yaml:"http_server"`
	JWTToken                `yaml:"jwttoken"`
	Stripe                  `yaml:"stripe"`
	Entitlement             `yaml:"entitlement"`
	Reconciler              `yaml:"reconciler"`
	RateLimit               `yaml:"rate_limit"`
	CORS                    `yaml:"cors"`
	Client                  `yaml:"client"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"15s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis" env:"REDIS_ADDRESS"`
	Password     string        `yaml:"password" env:"REDIS_PASSWORD"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	TimeoutRedis time.Duration `yaml:"timeoutredis"`
}

// RabbitMQ структура для настройки подключения к брокеру и очереди аналитики
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"url" env:"RABBITMQ_URL"`
	RabbitMQMaxRetries int           `yaml:"max_retries" env-default:"5"`
	RabbitMQRetryDelay time.Duration `yaml:"retry_delay" env-default:"2s"`
	AnalyticsQueueSize int           `yaml:"analytics_queue_size" env-default:"256"`
}

// JWTToken структура для работы с jwt-токеном
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"1h"`
}

// Stripe настройки платёжного провайдера. Цена задаётся только здесь.
type Stripe struct {
	SecretKey       string `yaml:"secret_key" env:"STRIPE_SECRET_KEY"`
	WebhookSecret   string `yaml:"webhook_secret" env:"STRIPE_WEBHOOK_SECRET"`
	PriceID         string `yaml:"price_id" env:"STRIPE_PRICE_ID"`
	SuccessURL      string `yaml:"success_url"`
	CancelURL       string `yaml:"cancel_url"`
	PortalReturnURL string `yaml:"portal_return_url"`
}

// Entitlement параметры проверки премиум-доступа.
type Entitlement struct {
	RequestTimeout     time.Duration `yaml:"request_timeout" env-default:"10s"`
	CacheTTL           time.Duration `yaml:"cache_ttl" env-default:"5s"`
	RefreshInterval    time.Duration `yaml:"refresh_interval" env-default:"5m"`
	SnapshotTTL        time.Duration `yaml:"snapshot_ttl" env-default:"5m"`
	AuthRetryAttempts  int           `yaml:"auth_retry_attempts" env-default:"3"`
	AuthRetryBaseDelay time.Duration `yaml:"auth_retry_base_delay" env-default:"250ms"`
}

// Reconciler расписание фоновой сверки подписок.
type Reconciler struct {
	Schedule  string `yaml:"schedule" env-default:"@every 1h"`
	BatchSize int    `yaml:"batch_size" env-default:"100"`
}

// RateLimit параметры ограничителя запросов.
type RateLimit struct {
	RPS   float64 `yaml:"rps" env-default:"5"`
	Burst int     `yaml:"burst" env-default:"10"`
}

// CORS разрешённые источники браузерного клиента.
type CORS struct {
	AllowedOrigins []string `yaml:"allowed_origins" env-default:"*"`
}

// Client настройки CLI-клиента.
type Client struct {
	BaseURL string `yaml:"base_url" env:"ENTITLEMENT_BASE_URL" env-default:"http://localhost:8080"`
	Token   string `yaml:"token" env:"ENTITLEMENT_TOKEN"`
}

// Load читает конфиг по указанному пути.
func Load(configPath string) (*Config, error) {
	const op = "config.Load"
	if configPath == "" {
		return nil, fmt.Errorf("%s: config path is empty", op)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%s: file %s does not exist", op, configPath)
	}
	var cfg Config
	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// LoadEnv читает конфиг только из переменных окружения, со значениями по умолчанию.
func LoadEnv() (*Config, error) {
	const op = "config.LoadEnv"
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &cfg, nil
}

// MustLoad функция для загрузки конфига из CONFIG_PATH, завершает процесс при ошибке.
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	cfg, err := Load(configPath)
	if err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return cfg
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "***"
}

func (c *Config) String() string {
	return fmt.Sprintf(
		"Env: %s\n"+
			"StorageConnectionString: %s\n"+
			"Redis: %s (db %d)\n"+
			"RabbitMQ: %s\n"+
			"HTTPServer: %s (timeout %s, idle %s)\n"+
			"JWTSecretKey: %s\n"+
			"Stripe: key=%s webhook=%s price=%s\n"+
			"Entitlement: timeout=%s cache_ttl=%s refresh=%s snapshot_ttl=%s\n",
		c.Env,
		mask(c.StorageConnectionString),
		c.AddressRedis, c.DB,
		mask(c.RabbitMQURL),
		c.AddressHTTP, c.TimeoutHTTP, c.IdleTimeout,
		mask(c.JWTSecretKey),
		mask(c.SecretKey), mask(c.WebhookSecret), c.PriceID,
		c.RequestTimeout, c.CacheTTL, c.RefreshInterval, c.SnapshotTTL,
	)
}
