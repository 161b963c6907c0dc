//go:build wireinject
// +build wireinject

package di

import (
	"DropWatch/pkg/config"
	"DropWatch/pkg/server"

	"github.com/google/wire"
)

// InitializeApp wires up all dependencies and returns the application.
// Wire will generate the implementation of this function.
func InitializeApp(cfg *config.Config) (*server.App, error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,

		// Infrastructure clients
		ProvidePostgresClient,
		ProvideKVStore,
		ProvideClickHouseClient,
		ProvideKafkaProducer,

		// Repositories
		ProvideCandidates,
		ProvideRetailers,
		ProvideEvents,
		ProvideOutcomes,
		ProvideSnapshots,
		ProvideSignalPublisher,
		ProvideHourWeights,

		// Services
		ProvideBudgetGate,
		ProvideFetcher,

		// Use cases
		ProvideCandidateChecker,
		ProvideTrainer,
		ProvideTrainQueue,

		// Surface
		ProvideHTTPHandler,
		ProvideApp,
	)
	return &server.App{}, nil
}
