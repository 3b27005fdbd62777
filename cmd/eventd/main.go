// Package main provides the eventd idempotent event-ingestion service.
//
// It accepts events over HTTP, admits them through a bounded queue, and
// commits each (topic, event_id) pair at most once to a durable dedup
// store before handing it to a downstream sink.
package main

import (
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/correlator-io/eventd/internal/api"
	"github.com/correlator-io/eventd/internal/api/middleware"
	"github.com/correlator-io/eventd/internal/config"
	"github.com/correlator-io/eventd/internal/consumer"
	"github.com/correlator-io/eventd/internal/ingestion"
	"github.com/correlator-io/eventd/internal/queue"
	"github.com/correlator-io/eventd/internal/storage"
)

// Version information.
const (
	version = "1.0.0-dev"
	name    = "eventd"
)

const (
	defaultQueueCapacity   = 10000
	defaultCleanupInterval = time.Hour
	defaultMaxAgeDays      = 30
)

func main() {
	versionFlag := flag.Bool("version", false, "show version information")
	flag.Parse()

	if *versionFlag {
		log.Printf("%s v%s\n", name, version)
		os.Exit(0)
	}

	serverConfig := api.LoadServerConfig()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: serverConfig.LogLevel,
	}))

	logger.Info("starting event-ingestion service",
		slog.String("service", name),
		slog.String("version", version),
	)

	fileConfig := config.LoadFileConfigFromEnv()

	store, err := newDedupStore(logger, fileConfig)
	if err != nil {
		logger.Error("failed to initialize dedup store", slog.String("error", err.Error()))
		os.Exit(1)
	}

	queueCapacity := config.GetEnvInt("EVENTD_QUEUE_CAPACITY", overrideIntDefault(fileConfig.QueueCapacity, defaultQueueCapacity))
	q := queue.NewBoundedQueue(queueCapacity)

	sink := newSink(logger)

	var consumerOpts []consumer.Option
	if fileConfig.DequeueTimeout > 0 {
		consumerOpts = append(consumerOpts, consumer.WithDequeueTimeout(fileConfig.DequeueTimeout))
	}

	c := consumer.New(q, store, sink, logger, consumerOpts...)
	service := api.NewService(store, q, c, logger)
	service.SetTrustedSources(fileConfig.TrustedSources)

	rateLimiterConfig := middleware.LoadConfig()
	applyRateLimitOverrides(rateLimiterConfig, fileConfig.RateLimit)
	rateLimiter := middleware.NewInMemoryRateLimiter(rateLimiterConfig)

	server := api.NewServer(&serverConfig, rateLimiter, service)

	logger.Info("loaded server configuration",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.Duration("read_timeout", serverConfig.ReadTimeout),
		slog.Duration("write_timeout", serverConfig.WriteTimeout),
		slog.Duration("shutdown_timeout", serverConfig.ShutdownTimeout),
		slog.String("log_level", serverConfig.LogLevel.String()),
	)

	if err := server.Start(); err != nil {
		logger.Error("server failed to start", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("event-ingestion service stopped")
}

// newDedupStore builds the PostgreSQL-backed dedup store. DATABASE_URL is
// required; there is no in-memory fallback in production, only in tests.
// fileConfig's cleanup_interval/max_age_days, when set, take priority over
// the environment-variable-or-built-in default.
func newDedupStore(logger *slog.Logger, fileConfig *config.FileConfig) (ingestion.Store, error) {
	dbConfig := storage.LoadConfig()
	if err := dbConfig.Validate(); err != nil {
		return nil, err
	}

	logger.Info("connecting to dedup store", slog.String("database_url", dbConfig.MaskDatabaseURL()))

	conn, err := storage.NewConnection(dbConfig)
	if err != nil {
		return nil, err
	}

	cleanupInterval := config.GetEnvDuration("EVENTD_CLEANUP_INTERVAL", defaultCleanupInterval)
	if fileConfig.CleanupInterval > 0 {
		cleanupInterval = fileConfig.CleanupInterval
	}

	maxAgeDays := config.GetEnvInt("EVENTD_MAX_AGE_DAYS", defaultMaxAgeDays)
	if fileConfig.MaxAgeDays > 0 {
		maxAgeDays = fileConfig.MaxAgeDays
	}

	return storage.NewPostgresDedupStore(conn, cleanupInterval, maxAgeDays)
}

// overrideIntDefault returns override when positive, otherwise fallback.
// Used so a file-configured value becomes the default that an environment
// variable can still take priority over.
func overrideIntDefault(override, fallback int) int {
	if override > 0 {
		return override
	}

	return fallback
}

// applyRateLimitOverrides applies non-zero static-config rate-limit tiers
// over the environment-derived config, in place.
func applyRateLimitOverrides(cfg *middleware.Config, tiers config.RateLimitTiers) {
	if tiers.GlobalRPS > 0 {
		cfg.GlobalRPS = tiers.GlobalRPS
	}

	if tiers.ClientRPS > 0 {
		cfg.ClientRPS = tiers.ClientRPS
	}

	if tiers.UnknownRPS > 0 {
		cfg.UnknownRPS = tiers.UnknownRPS
	}
}

// newSink picks the downstream sink. Setting EVENTD_SINK_KAFKA_TOPIC
// switches from the default logging sink to one that republishes each
// committed event to a Kafka topic, for observability in local runs
// alongside cmd/simulator.
func newSink(logger *slog.Logger) consumer.Sink {
	topic := config.GetEnvStr("EVENTD_SINK_KAFKA_TOPIC", "")
	if topic == "" {
		return consumer.NewLoggingSink(logger)
	}

	brokers := config.ParseCommaSeparatedList(config.GetEnvStr("EVENTD_SINK_KAFKA_BROKERS", "localhost:9092"))

	logger.Info("wiring kafka sink", slog.Any("brokers", brokers), slog.String("topic", topic))

	writer := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
	}

	return consumer.NewKafkaSink(writer)
}
