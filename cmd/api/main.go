package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	ginadapter "github.com/awslabs/aws-lambda-go-api-proxy/gin"
	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-collection-sync/internal/auth"
	"github.com/imrishuroy/go-collection-sync/internal/aws"
	"github.com/imrishuroy/go-collection-sync/internal/cascade"
	"github.com/imrishuroy/go-collection-sync/internal/catalog"
	"github.com/imrishuroy/go-collection-sync/internal/config"
	"github.com/imrishuroy/go-collection-sync/internal/counter"
	"github.com/imrishuroy/go-collection-sync/internal/handlers"
	"github.com/imrishuroy/go-collection-sync/internal/idempotency"
	"github.com/imrishuroy/go-collection-sync/internal/ingest"
	"github.com/imrishuroy/go-collection-sync/internal/jobs"
	"github.com/imrishuroy/go-collection-sync/internal/jobstatus"
	"github.com/imrishuroy/go-collection-sync/internal/logging"
	"github.com/imrishuroy/go-collection-sync/internal/metrics"
	"github.com/imrishuroy/go-collection-sync/internal/rabbitmq"
	"github.com/imrishuroy/go-collection-sync/internal/ratelimit"
	"github.com/imrishuroy/go-collection-sync/internal/syncsession"
	"github.com/imrishuroy/go-collection-sync/internal/validation"
)

func setupRouter(cfg handlers.HandlerConfig, logger *zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), logging.Middleware(logger))

	handlers.RegisterRoutes(r, cfg)

	return r
}

func main() {
	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("can't load config")
	}
	logger := logging.New(os.Stderr, cfg.LogLevel).With().Str("service", "api").Logger()

	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx := context.Background()
	clients, err := aws.NewAWSClients(ctx, aws.Settings{Region: cfg.AWS.Region, EndpointOverride: cfg.AWS.EndpointOverride})
	if err != nil {
		logger.Fatal().Err(err).Msg("can't init aws clients")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("can't open database")
	}
	defer db.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	defer redisClient.Close()

	var rec metrics.Recorder = metrics.Nop{}
	if cfg.Metrics.Enabled {
		rec = metrics.NewCloudWatch(clients.CloudWatch, cfg.Metrics.Namespace, &logger)
	}

	limiter, err := newLimiter(cfg.RateLimit, counter.NewRedis(redisClient), &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("can't build rate limiter")
	}

	queue, closeQueue, err := newQueue(cfg, clients)
	if err != nil {
		logger.Fatal().Err(err).Msg("can't build job queue")
	}
	defer closeQueue()

	statusStore := jobstatus.NewStore(redisClient, cfg.Stream.Retention)
	sessions := syncsession.NewStore(clients.DynamoDB, cfg.AWS.SessionsTable, cfg.AWS.ItemsTable)
	v := validation.New()

	r := setupRouter(handlers.HandlerConfig{
		Validate:   v,
		Normalizer: ingest.NewNormalizer(v, catalog.NewCache(db)),
		Jobs: jobs.NewService(
			queue,
			sessions,
			statusStore,
			idempotency.NewStore(clients.DynamoDB, cfg.AWS.IdempotencyTable, cfg.AWS.IdempotencyTTL),
			rec,
			&logger,
		),
		Status:        statusStore,
		Sessions:      sessions,
		Cascade:       cascade.NewEngine(db, rec, &logger),
		Limiter:       limiter,
		Resolver:      auth.NewGatewayResolver(cfg.UserHeader),
		Metrics:       rec,
		StreamMaxWait: cfg.Stream.MaxWait,
	}, &logger)

	// RUN_LOCAL=true runs a plain HTTP server for development.
	if cfg.RunLocal {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("running local server")
		if err := r.Run(cfg.HTTPAddr); err != nil {
			logger.Fatal().Err(err).Msg("local server stopped")
		}
		return
	}

	adapter := ginadapter.New(r)
	lambda.Start(func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		return adapter.ProxyWithContext(ctx, req)
	})
}

func newLimiter(cfg config.RateLimit, store counter.Store, logger *zerolog.Logger) (*ratelimit.Limiter, error) {
	mode, err := ratelimit.ParseFailureMode(cfg.FailureMode)
	if err != nil {
		return nil, err
	}

	policies := ratelimit.DefaultPolicies()
	if cfg.PoliciesFile != "" {
		f, err := os.Open(cfg.PoliciesFile)
		if err != nil {
			return nil, fmt.Errorf("can't open rate limit policies: %w", err)
		}
		defer f.Close()
		if policies, err = ratelimit.ApplyOverrides(policies, f); err != nil {
			return nil, err
		}
	}

	registry, err := ratelimit.NewRegistry(policies...)
	if err != nil {
		return nil, err
	}
	return ratelimit.NewLimiter(registry, store, mode, logger)
}

func newQueue(cfg config.Config, clients *aws.AWSClients) (jobs.Queue, func(), error) {
	if cfg.QueueBackend != config.QueueRabbitMQ {
		return jobs.NewSQSQueue(aws.NewPublisher(clients.SQS, cfg.AWS.QueueURL)), func() {}, nil
	}

	conn, err := amqp.Dial(cfg.RabbitMQ.URL)
	if err != nil {
		return nil, nil, fmt.Errorf("can't connect to rabbitmq: %w", err)
	}
	mq, err := rabbitmq.NewRabbitMQ(conn, cfg.RabbitMQ.Exchange)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := mq.Declare(cfg.RabbitMQ.Queue, cfg.RabbitMQ.RoutingKey, cfg.Worker.Prefetch); err != nil {
		mq.Close()
		conn.Close()
		return nil, nil, err
	}
	return jobs.NewRabbitMQQueue(mq, cfg.RabbitMQ.RoutingKey), func() {
		mq.Close()
		conn.Close()
	}, nil
}
