package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	_ "github.com/lib/pq"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/imrishuroy/go-collection-sync/internal/aws"
	"github.com/imrishuroy/go-collection-sync/internal/catalog"
	"github.com/imrishuroy/go-collection-sync/internal/config"
	"github.com/imrishuroy/go-collection-sync/internal/jobstatus"
	"github.com/imrishuroy/go-collection-sync/internal/logging"
	"github.com/imrishuroy/go-collection-sync/internal/metrics"
	"github.com/imrishuroy/go-collection-sync/internal/rabbitmq"
	"github.com/imrishuroy/go-collection-sync/internal/syncsession"
)

func main() {
	bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		bootLogger.Fatal().Err(err).Msg("can't load config")
	}
	logger := logging.New(os.Stderr, cfg.LogLevel).With().Str("service", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

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

	cache := catalog.NewCache(db)
	fetcher := catalog.NewFetcher(&http.Client{Timeout: cfg.Worker.HTTPTimeout}, cfg.Worker.CatalogBaseURL, cfg.Worker.UserAgent)
	processor := NewProcessor(
		syncsession.NewStore(clients.DynamoDB, cfg.AWS.SessionsTable, cfg.AWS.ItemsTable),
		catalog.NewScraper(fetcher, cache),
		cache,
		jobstatus.NewPublisher(jobstatus.NewStore(redisClient, cfg.Stream.Retention), &logger),
		rec,
		&logger,
		cfg.Worker.ScrapeConcurrency,
	)

	if cfg.QueueBackend == config.QueueRabbitMQ {
		runRabbitMQ(ctx, cfg.RabbitMQ, cfg.Worker.Prefetch, processor, &logger)
		return
	}

	// RUN_LOCAL=true processes a single message from LOCAL_SQS_BODY.
	if cfg.RunLocal {
		body := os.Getenv("LOCAL_SQS_BODY")
		if body == "" {
			logger.Fatal().Msg("LOCAL_SQS_BODY is empty")
		}
		event := events.SQSEvent{Records: []events.SQSMessage{{MessageId: "local-job", Body: body}}}
		resp, _ := processor.HandleSQS(ctx, event)
		if len(resp.BatchItemFailures) > 0 {
			logger.Fatal().Msg("local job failed")
		}
		return
	}

	lambda.Start(processor.HandleSQS)
}

func runRabbitMQ(ctx context.Context, cfg config.RabbitMQ, prefetch int, p *Processor, logger *zerolog.Logger) {
	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		logger.Fatal().Err(err).Msg("can't connect to rabbitmq")
	}
	defer conn.Close()

	mq, err := rabbitmq.NewRabbitMQ(conn, cfg.Exchange)
	if err != nil {
		logger.Fatal().Err(err).Msg("can't create rabbitmq client")
	}
	defer mq.Close()

	if err := mq.Declare(cfg.Queue, cfg.RoutingKey, prefetch); err != nil {
		logger.Fatal().Err(err).Msg("can't declare rabbitmq topology")
	}

	errs, err := mq.Consume(ctx, cfg.Queue, p.HandleRabbitMQ)
	if err != nil {
		logger.Fatal().Err(err).Msg("can't start consuming")
	}
	logger.Info().Str("queue", cfg.Queue).Msg("consuming sync jobs")

	for err := range errs {
		logger.Error().Err(err).Msg("error while processing job")
	}
	<-mq.Done()
	logger.Info().Msg("consumer stopped")
}
