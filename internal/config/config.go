// Package config loads worker/dispatcher configuration from the
// environment, grounded on the teacher's story-generator/internal/config
// package: envconfig-tagged fields with defaults, secrets read from Docker
// secret files rather than env vars, and an optional .env loader for local
// development.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config is the process-wide, immutable configuration for both the worker
// and dispatcher entrypoints.
type Config struct {
	RedisURL string `envconfig:"REDIS_URL" default:"redis://localhost:6379/0"`

	DBHost        string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort        string        `envconfig:"DB_PORT" default:"5432"`
	DBUser        string        `envconfig:"DB_USER" default:"postgres"`
	DBName        string        `envconfig:"DB_NAME" default:"storypipeline"`
	DBSSLMode     string        `envconfig:"DB_SSL_MODE" default:"disable"`
	DBMaxConns    int32         `envconfig:"DB_MAX_CONNECTIONS" default:"10"`
	DBIdleTimeout time.Duration `envconfig:"DB_MAX_IDLE_MINUTES" default:"5m"`
	DBPassword    string        `ignored:"true"`

	TextProvider string        `envconfig:"TEXT_PROVIDER" default:"openai"` // openai, ollama, mock
	TextBaseURL  string        `envconfig:"TEXT_BASE_URL" default:"https://api.openai.com/v1"`
	TextModel    string        `envconfig:"TEXT_MODEL" default:"gpt-4o-mini"`
	TextTimeout  time.Duration `envconfig:"TEXT_TIMEOUT" default:"60s"`
	TextAPIKey   string        `ignored:"true"`

	ImageProvider string        `envconfig:"IMAGE_PROVIDER" default:"dalle"` // dalle, mock
	ImageBaseURL  string        `envconfig:"IMAGE_BASE_URL" default:"https://api.openai.com/v1"`
	ImageTimeout  time.Duration `envconfig:"IMAGE_TIMEOUT" default:"120s"`
	ImageAPIKey   string        `ignored:"true"`

	AudioProvider     string        `envconfig:"AUDIO_PROVIDER" default:"elevenlabs"` // elevenlabs, mock
	AudioBaseURL      string        `envconfig:"AUDIO_BASE_URL" default:"https://api.elevenlabs.io/v1"`
	AudioStandardVoce string        `envconfig:"AUDIO_STANDARD_MODEL" default:"eleven_turbo_v2"`
	AudioHQModel      string        `envconfig:"AUDIO_HQ_MODEL" default:"eleven_multilingual_v2"`
	AudioTimeout      time.Duration `envconfig:"AUDIO_TIMEOUT" default:"120s"`
	AudioAPIKey       string        `ignored:"true"`

	BlobKind          string `envconfig:"BLOB_KIND" default:"s3"` // s3, mock
	BlobBucketImages  string `envconfig:"BLOB_BUCKET_IMAGES" default:"storypipeline-images"`
	BlobBucketAudio   string `envconfig:"BLOB_BUCKET_AUDIO" default:"storypipeline-audio"`
	BlobPublicURLBase string `envconfig:"BLOB_PUBLIC_URL_BASE"`
	AWSRegion         string `envconfig:"AWS_REGION" default:"us-east-1"`

	// JobParallelism bounds how many Story jobs this worker process drives
	// concurrently. Story generation is expensive (three shared LLM calls
	// plus a moment LLM call and image/audio generation per scene), so the
	// default is 1.
	JobParallelism    int           `envconfig:"JOB_PARALLELISM" default:"1"`
	SceneParallelism  int           `envconfig:"SCENE_PARALLELISM" default:"3"`
	MaxAttempts       int           `envconfig:"MAX_ATTEMPTS" default:"3"`
	VisibilityTimeout time.Duration `envconfig:"VISIBILITY_TIMEOUT" default:"2h"`
	NackDelay         time.Duration `envconfig:"NACK_DELAY" default:"5s"`
	PollTimeout       time.Duration `envconfig:"POLL_TIMEOUT" default:"10s"`

	PushgatewayURL string        `envconfig:"PUSHGATEWAY_URL"`
	PushInterval   time.Duration `envconfig:"PUSH_INTERVAL" default:"15s"`

	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogEncoding string `envconfig:"LOG_ENCODING" default:"json"`
}

// DSN returns the Postgres connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// MaskedDSN returns the DSN with the password redacted, safe for logging.
func (c *Config) MaskedDSN() string {
	dsn := c.DSN()
	parts := strings.SplitN(dsn, "@", 2)
	if len(parts) != 2 {
		return "[invalid dsn]"
	}
	userInfo := strings.Split(parts[0], ":")
	if len(userInfo) >= 2 {
		userInfo[len(userInfo)-1] = "********"
	}
	return strings.Join(userInfo, ":") + "@" + parts[1]
}

// Load reads environment variables (optionally preloaded from a .env file
// for local development) into a Config, then fills secret fields from
// Docker secret files.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if loadErr := godotenv.Load(); loadErr != nil {
			return nil, fmt.Errorf("load .env: %w", loadErr)
		}
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	var err error
	if cfg.DBPassword, err = ReadSecret("db_password"); err != nil {
		return nil, err
	}
	if cfg.TextProvider != "mock" {
		if cfg.TextAPIKey, err = ReadSecret("text_api_key"); err != nil {
			return nil, err
		}
	}
	if cfg.ImageProvider != "mock" {
		if cfg.ImageAPIKey, err = ReadSecret("image_api_key"); err != nil {
			return nil, err
		}
	}
	if cfg.AudioProvider != "mock" {
		if cfg.AudioAPIKey, err = ReadSecret("audio_api_key"); err != nil {
			return nil, err
		}
	}

	return &cfg, nil
}

// ReadSecret reads a Docker secret from /run/secrets/<name>, falling back
// to the <NAME>_SECRET environment variable so a bare-metal or
// docker-compose dev setup without mounted secret files still works.
func ReadSecret(name string) (string, error) {
	filePath := fmt.Sprintf("/run/secrets/%s", name)
	if data, err := os.ReadFile(filePath); err == nil {
		secret := strings.TrimSpace(string(data))
		if secret != "" {
			return secret, nil
		}
	}

	envVar := strings.ToUpper(name) + "_SECRET"
	if v := os.Getenv(envVar); v != "" {
		return v, nil
	}

	return "", fmt.Errorf("secret %q not found at %s or in %s", name, filePath, envVar)
}
