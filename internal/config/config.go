package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v6"
)

// Queue backends.
const (
	QueueSQS      = "sqs"
	QueueRabbitMQ = "rabbitmq"
)

// Config holds application configuration shared by the api, worker and cli binaries.
type Config struct {
	Env         string `env:"APP_ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	RunLocal    bool   `env:"RUN_LOCAL" envDefault:"false"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL"`

	// UserHeader is a trusted header set by the gateway in front of the local server.
	UserHeader string `env:"AUTH_USER_HEADER" envDefault:"X-User-Id"`

	QueueBackend string `env:"QUEUE_BACKEND" envDefault:"sqs"`

	AWS       AWS
	Redis     Redis
	RabbitMQ  RabbitMQ
	RateLimit RateLimit
	Stream    Stream
	Worker    Worker
	Metrics   Metrics
}

// AWS holds AWS configuration.
type AWS struct {
	Region           string        `env:"AWS_REGION" envDefault:"us-east-1"`
	EndpointOverride string        `env:"AWS_ENDPOINT_OVERRIDE"`
	SessionsTable    string        `env:"SYNC_SESSIONS_TABLE" envDefault:"sync_sessions"`
	ItemsTable       string        `env:"SYNC_SESSION_ITEMS_TABLE" envDefault:"sync_session_items"`
	IdempotencyTable string        `env:"IDEMPOTENCY_TABLE" envDefault:"sync_idempotency"`
	IdempotencyTTL   time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"48h"`
	QueueURL         string        `env:"SYNC_QUEUE_URL"`
}

// Redis holds Redis configuration.
type Redis struct {
	Addr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" envDefault:"0"`
}

// RabbitMQ holds RabbitMQ configuration.
type RabbitMQ struct {
	URL        string `env:"RABBITMQ_URL"`
	Exchange   string `env:"RABBITMQ_EXCHANGE" envDefault:"collection-sync-ex"`
	RoutingKey string `env:"RABBITMQ_ROUTING_KEY" envDefault:"sync.jobs"`
	Queue      string `env:"RABBITMQ_QUEUE" envDefault:"collection-sync.jobs"`
}

// RateLimit holds rate limiter configuration.
type RateLimit struct {
	// FailureMode is "open" or "closed"; it decides what happens when the counter store is unreachable.
	FailureMode  string `env:"RATE_LIMIT_FAILURE_MODE" envDefault:"open"`
	PoliciesFile string `env:"RATE_LIMIT_POLICIES_FILE"`
}

// Stream holds status stream configuration.
type Stream struct {
	MaxWait   time.Duration `env:"STREAM_MAX_WAIT" envDefault:"5m"`
	Retention time.Duration `env:"JOB_STATUS_RETENTION" envDefault:"24h"`
}

// Worker holds worker configuration.
type Worker struct {
	ScrapeConcurrency int           `env:"WORKER_SCRAPE_CONCURRENCY" envDefault:"4"`
	Prefetch          int           `env:"WORKER_PREFETCH" envDefault:"8"`
	CatalogBaseURL    string        `env:"CATALOG_BASE_URL" envDefault:"https://myfigurecollection.net"`
	UserAgent         string        `env:"CATALOG_USER_AGENT" envDefault:"collection-sync/1.0"`
	HTTPTimeout       time.Duration `env:"HTTP_TIMEOUT" envDefault:"10s"`
}

// Metrics holds metrics configuration.
type Metrics struct {
	Enabled   bool   `env:"METRICS_ENABLED" envDefault:"false"`
	Namespace string `env:"METRICS_NAMESPACE" envDefault:"CollectionSync"`
}

// Load parses configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("can't parse env variables: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags can't express.
func (c Config) Validate() error {
	switch c.QueueBackend {
	case QueueSQS, QueueRabbitMQ:
	default:
		return fmt.Errorf("invalid QUEUE_BACKEND %q: must be %q or %q", c.QueueBackend, QueueSQS, QueueRabbitMQ)
	}
	switch c.RateLimit.FailureMode {
	case "open", "closed":
	default:
		return fmt.Errorf("invalid RATE_LIMIT_FAILURE_MODE %q: must be \"open\" or \"closed\"", c.RateLimit.FailureMode)
	}
	if c.Worker.ScrapeConcurrency < 1 {
		return fmt.Errorf("WORKER_SCRAPE_CONCURRENCY must be >= 1, got %d", c.Worker.ScrapeConcurrency)
	}
	if c.Stream.MaxWait <= 0 {
		return fmt.Errorf("STREAM_MAX_WAIT must be positive")
	}
	return nil
}
