package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	ServerPort     int           `envconfig:"SERVER_PORT" default:"8080"`
	Environment    string        `envconfig:"APP_ENV" default:"development"`
	Version        string        `envconfig:"APP_VERSION" default:"0.1.0"`
	RequestTimeout time.Duration `envconfig:"REQUEST_TIMEOUT" default:"60s"`

	Database DatabaseConfig `envconfig:"DB"`
	Supabase SupabaseConfig `envconfig:"SUPABASE"`
	Admin    AdminConfig    `envconfig:"ADMIN"`
	Media    MediaConfig    `envconfig:"MEDIA"`
	Minio    MinioConfig    `envconfig:"MINIO"`
	GCS      GCSConfig      `envconfig:"GCS"`
	S3       S3Config       `envconfig:"S3"`
	Events   EventsConfig   `envconfig:"EVENTS"`
	RabbitMQ RabbitMQConfig `envconfig:"RABBITMQ"`
	PubSub   PubSubConfig   `envconfig:"PUBSUB"`
	Redis    RedisConfig    `envconfig:"REDIS"`
	Limits   LimitsConfig   `envconfig:"LIMITS"`
}

type DatabaseConfig struct {
	Host     string `envconfig:"HOST" default:"localhost"`
	Port     int    `envconfig:"PORT" default:"5432"`
	User     string `envconfig:"USER" default:"solodesign"`
	Password string `envconfig:"PASSWORD" default:"password"`
	DBName   string `envconfig:"NAME" default:"solodesign"`
	UseSSL   bool   `envconfig:"USE_SSL" default:"false"`
}

// SupabaseConfig points at the identity provider that issues magic links.
type SupabaseConfig struct {
	URL       string `envconfig:"URL"`
	AnonKey   string `envconfig:"ANON_KEY"`
	JWTSecret string `envconfig:"JWT_SECRET"`
	SiteURL   string `envconfig:"SITE_URL" default:"http://localhost:8080"`
}

// AdminConfig covers the legacy password-based admin area.
type AdminConfig struct {
	Password        string        `envconfig:"PASSWORD"`
	PasswordHash    string        `envconfig:"PASSWORD_HASH"`
	TokenSecret     string        `envconfig:"TOKEN_SECRET"`
	TokenTTL        time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	StrictSignature bool          `envconfig:"STRICT_SIGNATURE" default:"false"`
}

type MediaConfig struct {
	DataDir   string `envconfig:"DATA_DIR" default:"data"`
	UploadDir string `envconfig:"UPLOAD_DIR" default:"public/uploads"`
	Backend   string `envconfig:"BACKEND" default:"local"`
}

type MinioConfig struct {
	Endpoint  string `envconfig:"ENDPOINT"`
	AccessKey string `envconfig:"ACCESS_KEY"`
	SecretKey string `envconfig:"SECRET_KEY"`
	Bucket    string `envconfig:"BUCKET" default:"solodesign-uploads"`
	UseSSL    bool   `envconfig:"USE_SSL" default:"false"`
}

type GCSConfig struct {
	Bucket          string `envconfig:"BUCKET"`
	ProjectID       string `envconfig:"PROJECT_ID"`
	CredentialsFile string `envconfig:"CREDENTIALS_FILE"`
}

type S3Config struct {
	Bucket          string `envconfig:"BUCKET"`
	Region          string `envconfig:"REGION" default:"us-east-1"`
	Endpoint        string `envconfig:"ENDPOINT"`
	AccessKeyID     string `envconfig:"ACCESS_KEY_ID"`
	SecretAccessKey string `envconfig:"SECRET_ACCESS_KEY"`
}

type EventsConfig struct {
	Backend string `envconfig:"BACKEND" default:"none"`
	Channel string `envconfig:"CHANNEL" default:"solodesign.events"`
	Buffer  int    `envconfig:"BUFFER" default:"64"`
}

type RabbitMQConfig struct {
	URL             string `envconfig:"URL"`
	QueueDurable    bool   `envconfig:"QUEUE_DURABLE" default:"true"`
	QueueAutoDelete bool   `envconfig:"QUEUE_AUTO_DELETE" default:"false"`
	PrefetchCount   int    `envconfig:"PREFETCH_COUNT" default:"0"`
}

type PubSubConfig struct {
	ProjectID          string `envconfig:"PROJECT_ID"`
	CredentialsFile    string `envconfig:"CREDENTIALS_FILE"`
	SubscriptionSuffix string `envconfig:"SUBSCRIPTION_SUFFIX" default:"-sub"`
}

type RedisConfig struct {
	Addr       string        `envconfig:"ADDR"`
	ProfileTTL time.Duration `envconfig:"PROFILE_TTL" default:"5m"`
}

type LimitsConfig struct {
	LoginPerMinute     int `envconfig:"LOGIN_PER_MINUTE" default:"10"`
	MagicLinkPerMinute int `envconfig:"MAGIC_LINK_PER_MINUTE" default:"5"`
}

// LoadConfig reads the environment (and .env in dev) into a Config.
func LoadConfig() (Config, error) {
	if os.Getenv("ENV") == "dev" {
		_ = godotenv.Load()
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks backend selections and the secrets they depend on.
func (c Config) Validate() error {
	switch strings.ToLower(c.Media.Backend) {
	case "local", "minio", "gcs", "s3":
	default:
		return fmt.Errorf("unknown media backend %q", c.Media.Backend)
	}
	switch strings.ToLower(c.Events.Backend) {
	case "none", "rabbitmq", "pubsub":
	default:
		return fmt.Errorf("unknown events backend %q", c.Events.Backend)
	}
	if strings.TrimSpace(c.Admin.TokenSecret) == "" {
		return errors.New("ADMIN_TOKEN_SECRET is required")
	}
	if c.Admin.Password == "" && c.Admin.PasswordHash == "" {
		return errors.New("one of ADMIN_PASSWORD or ADMIN_PASSWORD_HASH is required")
	}
	return nil
}

// IsProduction reports whether the server runs with production settings.
func (c Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}
