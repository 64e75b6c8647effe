//go:build wireinject
// +build wireinject

package di

import (
	"KPISentinel/pkg/config"
	"KPISentinel/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		// Ambient
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideRedisClient,

		// Storage and analysis
		ProvideSeriesStore,
		ProvideAlertLog,
		ProvideAnalyzer,
		ProvidePresentationCache,

		// Notification
		ProvideBroadcaster,
		ProvideDeliveryQueue,
		ProvideNotificationSink,

		// Use cases
		ProvideIngestUseCase,
		ProvideDashboardUseCase,
		ProvideMonitor,
		ProvideKafkaSamplesHandler,

		// Transport
		ProvideHTTPHandler,
		ProvideHTTPServer,

		// Application server
		ProvideApp,
	)
	return &server.App{}, nil
}
