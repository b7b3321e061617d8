package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type R2 struct {
	AccountID  string        `envconfig:"R2_ACCOUNT_ID"`
	AccessKey  string        `envconfig:"R2_ACCESS_KEY"`
	SecretKey  string        `envconfig:"R2_SECRET_KEY"`
	BucketName string        `envconfig:"R2_BUCKET_NAME"`
	PresignTTL time.Duration `envconfig:"R2_PRESIGN_TTL" default:"1h"`
}

// Enabled reports whether enough R2 settings are present to resolve r2:// image references.
func (r R2) Enabled() bool {
	return r.AccountID != "" && r.AccessKey != "" && r.SecretKey != "" && r.BucketName != ""
}

type Meta struct {
	GraphURL     string `envconfig:"META_GRAPH_URL" default:"https://graph.facebook.com/v21.0"`
	ClientID     string `envconfig:"META_CLIENT_ID"`
	ClientSecret string `envconfig:"META_CLIENT_SECRET"`
}

type Tiktok struct {
	APIURL       string `envconfig:"TIKTOK_API_URL" default:"https://open.tiktokapis.com"`
	ClientKey    string `envconfig:"TIKTOK_CLIENT_KEY"`
	ClientSecret string `envconfig:"TIKTOK_CLIENT_SECRET"`
}

type Publish struct {
	Schedule        string        `envconfig:"PUBLISH_SCHEDULE" default:"@every 1m"`
	RunTimeout      time.Duration `envconfig:"PUBLISH_RUN_TIMEOUT" default:"5m"`
	BatchSize       int           `envconfig:"PUBLISH_BATCH_SIZE" default:"100"`
	UserConcurrency int           `envconfig:"PUBLISH_USER_CONCURRENCY" default:"8"`
	PollInterval    time.Duration `envconfig:"POLL_INTERVAL" default:"5s"`
	PollMaxAttempts int           `envconfig:"POLL_MAX_ATTEMPTS" default:"10"`
	HTTPTimeout     time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
}

type TokenRefresh struct {
	Schedule string        `envconfig:"TOKEN_REFRESH_SCHEDULE" default:"@every 10m"`
	Window   time.Duration `envconfig:"TOKEN_REFRESH_WINDOW" default:"72h"`
}

type Config struct {
	Port         int    `envconfig:"PORT" default:"3000"`
	Environment  string `envconfig:"ENVIRONMENT" default:"production"`
	PostgresURI  string `envconfig:"POSTGRES_URI" required:"true"`
	RedisURI     string `envconfig:"REDIS_URI" required:"true"`
	SecretKey    string `envconfig:"SECRET_KEY" required:"true"`
	JobSecret    string `envconfig:"JOB_SECRET"`
	SentryDSN    string `envconfig:"SENTRY_DSN"`

	// Embedded so envconfig reads the groups' keys without a prefix.
	Meta
	Tiktok
	R2
	Publish
	TokenRefresh
}

func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("unable to load configuration: %w", err)
	}

	switch len(cfg.SecretKey) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("SECRET_KEY must be 16, 24 or 32 bytes, got %d", len(cfg.SecretKey))
	}

	return &cfg, nil
}
