//go:build wireinject
// +build wireinject

package di

import (
	"github.com/google/wire"

	"FinScan/pkg/config"
	"FinScan/pkg/server"
)

// InitializeApp wires up all dependencies and returns the application.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvideClickHouseClient,
		ProvideRedisCache,
		ProvideCache,
		ProvideDatabase,
		ProvideKafkaProducer,
		ProvideKafkaConsumer,
		ProvideLimiter,

		// Repositories and upstream providers
		ProvideCHPriceStore,
		ProvidePrices,
		ProvideUniverse,
		ProvideForeign,
		ProvideRecommendationStore,
		ProvideEventPublisher,

		// Domain services and use cases
		ProvideRegimeClassifier,
		ProvideScanner,
		ProvideLifecycle,
		ProvideScanUseCase,
		ProvideEvaluationUseCase,
		ProvideBarsHandler,

		// Batch
		ProvideQueue,
		ProvideBatchTrigger,
		ProvideScheduler,

		// HTTP
		ProvideAPIHandler,
		ProvideHTTPServer,

		ProvideApp,
	)
	return &server.App{}, nil
}
