package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	Env        string `env:"ENV" envDefault:"production"`
	ServerPort int    `env:"SERVER_PORT" envDefault:"8000"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	JWTSecret      string        `env:"JWT_SECRET"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"30m"`

	// CORSAllowedOrigin is the single browser origin trusted with credentials.
	CORSAllowedOrigin string `env:"CORS_ALLOWED_ORIGIN" envDefault:"http://localhost:3000"`

	// AuthRateLimit caps /register and /token requests per client IP per window.
	// Zero disables the limiter.
	AuthRateLimit       int           `env:"AUTH_RATE_LIMIT" envDefault:"0"`
	AuthRateLimitWindow time.Duration `env:"AUTH_RATE_LIMIT_WINDOW" envDefault:"1m"`

	Database DatabaseConfig `envPrefix:"DB_"`
	OpenAI   OpenAIConfig   `envPrefix:"OPENAI_"`
	Storage  StorageConfig  `envPrefix:"STORAGE_"`
	MQ       MQConfig       `envPrefix:"MQ_"`
}

type DatabaseConfig struct {
	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5432"`
	User     string `env:"USER" envDefault:"kard"`
	Password string `env:"PASSWORD" envDefault:"password"`
	DBName   string `env:"NAME" envDefault:"kard_db"`
	UseSSL   bool   `env:"USE_SSL" envDefault:"false"`
}

// OpenAIConfig configures the generative provider. APIKey is deliberately
// optional here: a missing key only shows up as degraded generation.
type OpenAIConfig struct {
	APIKey       string  `env:"API_KEY"`
	BaseURL      string  `env:"BASE_URL"`
	TextModel    string  `env:"TEXT_MODEL" envDefault:"gpt-4"`
	ImageModel   string  `env:"IMAGE_MODEL" envDefault:"dall-e-3"`
	MaxTokens    int     `env:"MAX_TOKENS" envDefault:"300"`
	Temperature  float32 `env:"TEMPERATURE" envDefault:"0.8"`
	ImageSize    string  `env:"IMAGE_SIZE" envDefault:"1024x1024"`
	ImageQuality string  `env:"IMAGE_QUALITY" envDefault:"standard"`

	// CallTimeout bounds each provider call. Text and image run back to back,
	// so twice this value must stay below the 60s request timeout.
	CallTimeout time.Duration `env:"CALL_TIMEOUT" envDefault:"25s"`
}

// StorageConfig selects where generated images are archived.
// An empty Backend disables archival.
type StorageConfig struct {
	Backend string      `env:"BACKEND"`
	Minio   MinioConfig `envPrefix:"MINIO_"`
	GCS     GCSConfig   `envPrefix:"GCS_"`
	S3      S3Config    `envPrefix:"S3_"`
}

type MinioConfig struct {
	Endpoint  string `env:"ENDPOINT"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET" envDefault:"kard-images"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

type GCSConfig struct {
	Bucket          string `env:"BUCKET"`
	ProjectID       string `env:"PROJECT_ID"`
	CredentialsFile string `env:"CREDENTIALS_FILE"`
}

type S3Config struct {
	Endpoint        string `env:"ENDPOINT"`
	Region          string `env:"REGION" envDefault:"auto"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	Bucket          string `env:"BUCKET"`
}

// MQConfig selects where card events are published.
// An empty Backend disables publishing.
type MQConfig struct {
	Backend  string         `env:"BACKEND"`
	Topic    string         `env:"TOPIC" envDefault:"cards.created"`
	RabbitMQ RabbitMQConfig `envPrefix:"RABBITMQ_"`
	PubSub   PubSubConfig   `envPrefix:"PUBSUB_"`
}

type RabbitMQConfig struct {
	URL          string `env:"URL"`
	QueueDurable bool   `env:"QUEUE_DURABLE" envDefault:"true"`
}

type PubSubConfig struct {
	ProjectID       string `env:"PROJECT_ID"`
	CredentialsFile string `env:"CREDENTIALS_FILE"`
}

// LoadConfig reads configuration from the environment. In dev mode a local
// .env file is loaded first.
func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// IsDev reports whether the process runs in local development mode.
func (c Config) IsDev() bool {
	return c.Env == "dev"
}
