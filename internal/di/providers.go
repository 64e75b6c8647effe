package di

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"KPISentinel/internal/domain/repository"
	domsvc "KPISentinel/internal/domain/service"
	"KPISentinel/internal/handler/api"
	internalrepo "KPISentinel/internal/repository"
	"KPISentinel/internal/service/cache"
	"KPISentinel/internal/service/notify"
	"KPISentinel/internal/service/ratelimit"
	"KPISentinel/internal/services/analytics"
	"KPISentinel/internal/usecase"
	pkgch "KPISentinel/pkg/clickhouse"
	"KPISentinel/pkg/config"
	xhttp "KPISentinel/pkg/http"
	"KPISentinel/pkg/http/middleware"
	pkgkafka "KPISentinel/pkg/kafka"
	applogger "KPISentinel/pkg/logger"
	"KPISentinel/pkg/metrics"
	"KPISentinel/pkg/queue"
	"KPISentinel/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*applogger.Logger, error) {
	l, err := applogger.New(&applogger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	return l, nil
}

// ProvideMetrics creates a Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideSeriesStore creates the in-memory series store.
func ProvideSeriesStore(cfg *config.Config) repository.SeriesStore {
	return internalrepo.NewMemorySeriesStore(cfg.Series.WindowSize)
}

// ProvideAnalyzer creates the analysis engine from config.
func ProvideAnalyzer(cfg *config.Config) *analytics.Analyzer {
	return analytics.NewAnalyzer(cfg.Analysis.K, cfg.Analysis.MinSamples, cfg.Analysis.Alpha)
}

// ProvideClickHouseClient creates a ClickHouse client, or nil when disabled.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	if !cfg.ClickHouse.Enabled {
		return nil, nil
	}
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithAsyncInsert(cfg.ClickHouse.AsyncInsert, cfg.ClickHouse.WaitForAsync),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	// Initialize schema
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, internalrepo.AlertLogSchema(cfg.ClickHouse.Database, cfg.ClickHouse.AlertTable)); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}

	return client, nil
}

// ProvideAlertLog creates the ClickHouse alert history, or nil when not persisted.
func ProvideAlertLog(cfg *config.Config, l *applogger.Logger, ch *pkgch.Client) *internalrepo.CHAlertLog {
	if !cfg.Notify.ClickHouse.Enabled || ch == nil {
		return nil
	}
	alertLog := internalrepo.NewCHAlertLog(ch, cfg.ClickHouse.Database, cfg.ClickHouse.AlertTable)
	alertLog.SetLogger(l)
	return alertLog
}

// ProvideKafkaProducer creates a Kafka producer, or nil when nothing publishes.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
	if !cfg.Notify.Kafka.Enabled && !cfg.Logging.Collector.Enabled {
		return nil, nil
	}
	producer, err := pkgkafka.NewProducer(
		pkgkafka.WithBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithCompression(cfg.Kafka.Compression),
		pkgkafka.WithRequiredAcks(cfg.Kafka.RequiredAcks),
		pkgkafka.WithBatchSize(cfg.Kafka.Producer.BatchSize),
		pkgkafka.WithBatchBytes(cfg.Kafka.Producer.BatchBytes),
		pkgkafka.WithBatchTimeout(cfg.Kafka.Producer.Linger),
		pkgkafka.WithTimeouts(cfg.Kafka.Producer.WriteTimeout, cfg.Kafka.Producer.ReadTimeout),
		pkgkafka.WithMaxAttempts(cfg.Kafka.Producer.MaxAttempts),
		pkgkafka.WithAsync(cfg.Kafka.Producer.Async),
		pkgkafka.WithHashByKey(true),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka producer: %w", err)
	}

	return producer, nil
}

// ProvideKafkaConsumer creates a Kafka consumer configured from YAML, or nil when disabled.
func ProvideKafkaConsumer(cfg *config.Config, l *applogger.Logger, m repository.Metrics) (*pkgkafka.Consumer, error) {
	if !cfg.Kafka.Consumer.Enabled {
		return nil, nil
	}
	consumer, err := pkgkafka.NewConsumer(
		pkgkafka.WithConsumerLogger(l.Zerolog()),
		pkgkafka.WithConsumerBrokers(cfg.Kafka.Brokers),
		pkgkafka.WithConsumerGroupID(cfg.Kafka.Consumer.GroupID),
		pkgkafka.WithConsumerWorkers(cfg.Kafka.Consumer.Workers),
		pkgkafka.WithConsumerBufferSize(cfg.Kafka.Consumer.BufferSize),
		pkgkafka.WithConsumerRetry(cfg.Kafka.Consumer.RetryMax, cfg.Kafka.Consumer.BackoffMin, cfg.Kafka.Consumer.BackoffMax),
		pkgkafka.WithConsumerDLQ(cfg.Kafka.Consumer.DLQTopic),
		pkgkafka.WithConsumerFetch(cfg.Kafka.Consumer.MinBytes, cfg.Kafka.Consumer.MaxBytes),
	)
	if err != nil {
		return nil, fmt.Errorf("kafka consumer: %w", err)
	}
	consumer.SetHook(usecase.NewSamplesConsumerHook(l, m))
	return consumer, nil
}

// ProvideRedisClient creates a Redis client, or nil when disabled.
func ProvideRedisClient(cfg *config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
}

// ProvidePresentationCache picks Redis when available, otherwise an in-process TTL cache.
func ProvidePresentationCache(rdb *redis.Client) cache.BytesCache {
	if rdb != nil {
		return cache.NewRedisCache(rdb, "kpisentinel:cache")
	}
	return cache.NewTTLCache()
}

// ProvideBroadcaster creates the live alert hub, or nil when disabled.
func ProvideBroadcaster(cfg *config.Config, l *applogger.Logger) *notify.Broadcaster {
	if !cfg.Notify.WebSocket.Enabled {
		return nil
	}
	return notify.NewBroadcaster(cfg.Notify.WebSocket.Buffer, l)
}

// ProvideDeliveryQueue creates the Redis alert queue and its webhook job, or nil when disabled.
func ProvideDeliveryQueue(cfg *config.Config, l *applogger.Logger, rdb *redis.Client, m repository.Metrics) *queue.RedisQueue {
	if !cfg.Notify.Queue.Enabled || rdb == nil {
		return nil
	}
	q := queue.NewRedisQueue(l, queue.Config{
		Workers:    cfg.Notify.Queue.Workers,
		RetryLimit: cfg.Notify.Queue.MaxRetries,
		RetryDelay: cfg.Notify.Queue.RetryDelay,
		JobTimeout: cfg.Notify.Queue.Timeout,
	}, rdb, queue.WithKeyPrefix("kpisentinel:queue:"+cfg.Notify.Queue.Name))
	webhook := notify.NewWebhookSink(cfg.Notify.Webhook.URL, cfg.Notify.Webhook.Timeout)
	q.RegisterJob(usecase.NewAlertDeliveryJob(webhook, m))
	return q
}

// ProvideNotificationSink assembles the fan-out of every enabled sink.
// With the delivery queue enabled the webhook is reached through the queue only.
func ProvideNotificationSink(
	cfg *config.Config,
	l *applogger.Logger,
	m repository.Metrics,
	producer *pkgkafka.Producer,
	alertLog *internalrepo.CHAlertLog,
	delivery *queue.RedisQueue,
	hub *notify.Broadcaster,
) *notify.Multi {
	sinks := []domsvc.NotificationSink{notify.NewLogSink(l)}

	switch {
	case delivery != nil:
		sinks = append(sinks, notify.NewQueueSink(delivery, usecase.AlertDeliveryType))
	case cfg.Notify.Webhook.Enabled:
		sinks = append(sinks, notify.NewWebhookSink(cfg.Notify.Webhook.URL, cfg.Notify.Webhook.Timeout))
	}
	if cfg.Notify.Kafka.Enabled && producer != nil {
		sinks = append(sinks, notify.NewKafkaSink(internalrepo.NewKafkaPublisher(producer, cfg.Notify.Kafka.Topic)))
	}
	if alertLog != nil {
		sinks = append(sinks, notify.NewClickHouseSink(alertLog))
	}
	if hub != nil {
		sinks = append(sinks, hub)
	}

	multi := notify.NewMulti(m, sinks...)
	l.Info("notification sinks ready", applogger.Strings("sinks", multi.Sinks()))
	return multi
}

// ProvideMonitor creates the periodic scan loop.
func ProvideMonitor(
	cfg *config.Config,
	store repository.SeriesStore,
	analyzer *analytics.Analyzer,
	sink *notify.Multi,
	m repository.Metrics,
	l *applogger.Logger,
) *usecase.Monitor {
	return usecase.NewMonitor(store, analyzer, sink, m, l, usecase.MonitorConfig{
		Interval:    cfg.Monitor.Interval,
		ScanOnStart: cfg.Monitor.ScanOnStart,
		SinkTimeout: cfg.Monitor.SinkTimeout,
	})
}

// ProvideIngestUseCase creates the ingestion use case.
func ProvideIngestUseCase(store repository.SeriesStore, m repository.Metrics) *usecase.IngestUseCase {
	return usecase.NewIngestUseCase(store, m)
}

// ProvideDashboardUseCase creates the presentation use case.
func ProvideDashboardUseCase(cfg *config.Config, store repository.SeriesStore, analyzer *analytics.Analyzer) *usecase.DashboardUseCase {
	return usecase.NewDashboardUseCase(store, analyzer, cfg.Presentation.RecentN)
}

// ProvideKafkaSamplesHandler registers handler for the samples topic, or nil when the consumer is off.
func ProvideKafkaSamplesHandler(cfg *config.Config, ingest *usecase.IngestUseCase) *usecase.KafkaSamplesHandler {
	if !cfg.Kafka.Consumer.Enabled {
		return nil
	}
	return usecase.NewKafkaSamplesHandler(cfg.Kafka.SamplesTopic, ingest)
}

// ProvideHTTPHandler assembles every route group.
func ProvideHTTPHandler(
	cfg *config.Config,
	l *applogger.Logger,
	m repository.Metrics,
	ingest *usecase.IngestUseCase,
	dashboard *usecase.DashboardUseCase,
	respCache cache.BytesCache,
	hub *notify.Broadcaster,
	alertLog *internalrepo.CHAlertLog,
) (*api.Router, error) {
	renderer, err := api.NewTemplateRenderer()
	if err != nil {
		return nil, fmt.Errorf("dashboard templates: %w", err)
	}
	groups := []xhttp.Handler{
		api.NewIngestHandler(l, ingest, m),
		api.NewKPIHandler(l, dashboard, respCache, cfg.Presentation.CacheTTL, cfg.Series.WindowSize),
		api.NewDashboardHandler(l, dashboard, renderer, cfg.Presentation.RecentN, hub != nil),
	}
	if hub != nil {
		groups = append(groups, api.NewAlertStreamHandler(l, hub))
	}
	if alertLog != nil {
		groups = append(groups, api.NewAlertsHandler(l, alertLog))
	}
	return api.NewRouter(groups...), nil
}

// ProvideHTTPServer creates the echo server with the ingest rate limit.
func ProvideHTTPServer(cfg *config.Config, l *applogger.Logger, router *api.Router) *xhttp.Server {
	opts := []xhttp.ServerOption{
		xhttp.WithHost(cfg.Server.Host),
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithCORS(cfg.Server.CORS),
		xhttp.WithLogger(l),
		xhttp.WithSlowThreshold(cfg.Server.SlowThreshold),
	}
	if rl := cfg.Ingest.RateLimit; rl.Enabled {
		limiter := ratelimit.New(rl.Capacity, rl.RefillPerSec)
		opts = append(opts, xhttp.WithMiddleware(middleware.RateLimit(limiter.AllowKey, func(path string) bool {
			return path == "/ingest"
		})))
	}
	return xhttp.NewServer(router, opts...)
}

// ProvideApp creates the application server.
func ProvideApp(
	cfg *config.Config,
	l *applogger.Logger,
	httpServer *xhttp.Server,
	monitor *usecase.Monitor,
	consumer *pkgkafka.Consumer,
	kh *usecase.KafkaSamplesHandler,
	delivery *queue.RedisQueue,
	sink *notify.Multi,
	producer *pkgkafka.Producer,
	ch *pkgch.Client,
	rdb *redis.Client,
) *server.App {
	if producer != nil && cfg.Logging.Collector.Enabled {
		l.AddCollector(&applogger.CollectionConfig{
			TimeInterval:   cfg.Logging.Collector.Interval,
			CountThreshold: cfg.Logging.Collector.CountThreshold,
			Topic:          cfg.Logging.Collector.Topic,
			Publisher:      internalrepo.NewKafkaPublisher(producer, cfg.Logging.Collector.Topic),
		})
	}

	// A nil *KafkaSamplesHandler must not become a non-nil interface.
	var handler pkgkafka.MessageHandler
	if kh != nil {
		handler = kh
	}
	app := server.New(cfg, l, httpServer, monitor, consumer, handler, delivery)
	app.AddCloser("sinks", sink)
	if producer != nil {
		app.AddCloser("kafka producer", producer)
	}
	if ch != nil {
		app.AddCloser("clickhouse", ch)
	}
	if rdb != nil {
		app.AddCloser("redis", rdb)
	}
	return app
}
