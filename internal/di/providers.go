package di

import (
	"context"
	"fmt"
	"time"

	"DropWatch/internal/domain/repository"
	"DropWatch/internal/handler/api"
	internalrepo "DropWatch/internal/repository"
	"DropWatch/internal/service/fetcher"
	"DropWatch/internal/service/propensity"
	"DropWatch/internal/service/ratebudget"
	"DropWatch/internal/usecase"
	pkgch "DropWatch/pkg/clickhouse"
	"DropWatch/pkg/config"
	xhttp "DropWatch/pkg/http"
	pkgkafka "DropWatch/pkg/kafka"
	"DropWatch/pkg/kvstore"
	"DropWatch/pkg/logger"
	"DropWatch/pkg/metrics"
	"DropWatch/pkg/postgres"
	"DropWatch/pkg/queue"
	"DropWatch/pkg/server"
)

// ProvideLogger creates the application logger.
func ProvideLogger(cfg *config.Config) (*logger.Logger, error) {
	level := "info"
	format := "json"
	if cfg.Environment == "development" {
		level = "debug"
		format = "console"
	}
	return logger.New(&logger.Config{Level: level, Format: format, Output: "stdout"})
}

// ProvidePostgresClient creates the relational store client.
func ProvidePostgresClient(cfg *config.Config) (*postgres.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := postgres.NewClient(ctx,
		postgres.WithDSN(cfg.Postgres.DSN),
		postgres.WithPool(int32(cfg.Postgres.MaxConns), int32(cfg.Postgres.MinConns), cfg.Postgres.ConnMaxLifetime),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres client: %w", err)
	}
	return client, nil
}

// ProvideKVStore creates the shared Redis counter/config store.
func ProvideKVStore(cfg *config.Config) (kvstore.Store, error) {
	store, err := kvstore.NewRedisStore(
		kvstore.WithHost(cfg.Redis.Host),
		kvstore.WithPort(cfg.Redis.Port),
		kvstore.WithPassword(cfg.Redis.Password),
		kvstore.WithDB(cfg.Redis.DB),
		kvstore.WithPrefix(cfg.Redis.Prefix),
	)
	if err != nil {
		return nil, fmt.Errorf("kvstore: %w", err)
	}
	return store, nil
}

// ProvideClickHouseClient creates the snapshot-series client.
func ProvideClickHouseClient(cfg *config.Config) (*pkgch.Client, error) {
	client, err := pkgch.NewClient(
		pkgch.WithHost(cfg.ClickHouse.Host),
		pkgch.WithPort(cfg.ClickHouse.Port),
		pkgch.WithDatabase(cfg.ClickHouse.Database),
		pkgch.WithCredentials(cfg.ClickHouse.User, cfg.ClickHouse.Password),
		pkgch.WithMaxConnections(10, 5),
		pkgch.WithHTTP(cfg.ClickHouse.UseHTTP),
		pkgch.WithTimeouts(cfg.ClickHouse.DialTimeout, cfg.ClickHouse.ReadTimeout, cfg.ClickHouse.WriteTimeout),
		pkgch.WithMaxExecutionTime(cfg.ClickHouse.MaxExecutionTime),
	)
	if err != nil {
		return nil, fmt.Errorf("clickhouse client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.InitSchema(ctx, []string{
		"CREATE DATABASE IF NOT EXISTS " + cfg.ClickHouse.Database,
		"CREATE TABLE IF NOT EXISTS " + cfg.ClickHouse.Database + ".availability_snapshots (product_id Int64, retailer_id Int64, snapshot_time DateTime, in_stock UInt8) ENGINE=MergeTree ORDER BY (product_id, retailer_id, snapshot_time)",
	}); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("clickhouse schema: %w", err)
	}
	return client, nil
}

// ProvideKafkaProducer creates the signal topic producer.
func ProvideKafkaProducer(cfg *config.Config) (*pkgkafka.Producer, error) {
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

// ProvideMetrics creates the Prometheus metrics recorder.
func ProvideMetrics() repository.Metrics {
	return metrics.New()
}

// ProvideCandidates creates the url_candidates repository.
func ProvideCandidates(pg *postgres.Client) repository.Candidates {
	return internalrepo.NewPGCandidates(pg.Pool())
}

// ProvideRetailers creates the retailers repository.
func ProvideRetailers(pg *postgres.Client) repository.Retailers {
	return internalrepo.NewPGRetailers(pg.Pool())
}

// ProvideEvents creates the drop_events repository.
func ProvideEvents(pg *postgres.Client) repository.Events {
	return internalrepo.NewPGEvents(pg.Pool())
}

// ProvideOutcomes creates the drop_outcomes repository.
func ProvideOutcomes(pg *postgres.Client) repository.Outcomes {
	return internalrepo.NewPGOutcomes(pg.Pool())
}

// ProvideSnapshots creates the availability snapshot reader.
func ProvideSnapshots(ch *pkgch.Client, cfg *config.Config) repository.Snapshots {
	return internalrepo.NewCHSnapshots(ch.DB(), cfg.ClickHouse.Database+".availability_snapshots")
}

// ProvideSignalPublisher creates the Kafka signal publisher.
func ProvideSignalPublisher(producer *pkgkafka.Producer, cfg *config.Config) repository.SignalPublisher {
	return internalrepo.NewKafkaSignalPublisher(producer, cfg.Kafka.SignalTopic)
}

// ProvideHourWeights creates the drop-propensity client. An empty URL
// yields the uniform-weights fallback.
func ProvideHourWeights(cfg *config.Config) repository.HourWeights {
	return propensity.New(cfg.Propensity.ServiceURL, cfg.Propensity.Timeout)
}

// ProvideBudgetGate creates the per-retailer rate budget gate.
func ProvideBudgetGate(kv kvstore.Store, lgr *logger.Logger, cfg *config.Config) *ratebudget.Gate {
	return ratebudget.New(kv, lgr, cfg.Checker.DefaultQPM, cfg.Checker.RetailerQPM)
}

// ProvideFetcher creates the page fetcher.
func ProvideFetcher(cfg *config.Config) *fetcher.Client {
	return fetcher.New(fetcher.Config{
		RenderURL: cfg.Fetcher.RenderURL,
		UserAgent: cfg.Fetcher.UserAgent,
	})
}

// ProvideCandidateChecker creates the batch checker.
func ProvideCandidateChecker(
	candidates repository.Candidates,
	retailers repository.Retailers,
	events repository.Events,
	outcomes repository.Outcomes,
	publisher repository.SignalPublisher,
	recorder repository.Metrics,
	gate *ratebudget.Gate,
	fetch *fetcher.Client,
	kv kvstore.Store,
	lgr *logger.Logger,
	cfg *config.Config,
) *usecase.CandidateChecker {
	return usecase.NewCandidateChecker(
		candidates, retailers, events, outcomes, publisher, recorder,
		gate, fetch, kv, lgr,
		usecase.CheckerConfig{
			BatchLimit:       cfg.Checker.BatchLimit,
			PacingDelay:      cfg.Checker.PacingDelay,
			FetchTimeout:     cfg.Fetcher.Timeout,
			RenderTimeout:    cfg.Fetcher.RenderTimeout,
			ForceRender:      cfg.Fetcher.ForceRender,
			RenderOnBlock:    cfg.Fetcher.RenderOnBlock,
			RetailerCacheTTL: cfg.Checker.RetailerCache,
		})
}

// ProvideTrainer creates the classifier trainer.
func ProvideTrainer(
	events repository.Events,
	snapshots repository.Snapshots,
	hourWeights repository.HourWeights,
	recorder repository.Metrics,
	lgr *logger.Logger,
	cfg *config.Config,
) *usecase.ClassifierTrainer {
	return usecase.NewClassifierTrainer(events, snapshots, hourWeights, recorder, lgr, cfg.Trainer.ArtifactPath)
}

// ProvideTrainQueue creates the single-worker training queue. One
// worker is load-bearing: it serializes training runs.
func ProvideTrainQueue(
	kv kvstore.Store,
	trainer *usecase.ClassifierTrainer,
	lgr *logger.Logger,
	cfg *config.Config,
) (*queue.RedisQueue, error) {
	redisStore, ok := kv.(*kvstore.RedisStore)
	if !ok {
		return nil, fmt.Errorf("train queue requires a redis-backed kvstore")
	}

	defaults := usecase.TrainOptions{
		LookbackDays:      cfg.Trainer.LookbackDays,
		HorizonMinutes:    cfg.Trainer.HorizonMinutes,
		HistoryWindowDays: cfg.Trainer.HistoryWindowDays,
		SampleStepMinutes: cfg.Trainer.SampleStepMinutes,
		MaxSamples:        cfg.Trainer.MaxSamples,
	}
	job := usecase.NewTrainJob(trainer, defaults, lgr)

	q := queue.NewRedisQueue(lgr, &queue.QueueConfig{
		Workers:    1,
		RetryLimit: 1,
		RetryDelay: time.Minute,
	}, redisStore.Client(), queue.ModeProducerConsumer)
	q.RegisterJob(job)
	return q, nil
}

// ProvideHTTPHandler creates the admin API handler.
func ProvideHTTPHandler(
	checker *usecase.CandidateChecker,
	candidates repository.Candidates,
	trainQueue *queue.RedisQueue,
	cfg *config.Config,
	lgr *logger.Logger,
) xhttp.Handler {
	return api.NewAdminHandler(checker, candidates, trainQueue, cfg.Trainer.ArtifactPath, lgr)
}

// ProvideApp assembles the application. Error logs are aggregated onto
// the ops topic when one is configured.
func ProvideApp(
	cfg *config.Config,
	lgr *logger.Logger,
	checker *usecase.CandidateChecker,
	trainQueue *queue.RedisQueue,
	handler xhttp.Handler,
	publisher repository.SignalPublisher,
	producer *pkgkafka.Producer,
	kv kvstore.Store,
	pg *postgres.Client,
	ch *pkgch.Client,
) *server.App {
	if cfg.Kafka.OpsLogTopic != "" {
		lgr.AddCollector(&logger.CollectionConfig{
			TimeInterval:   30 * time.Second,
			CountThreshold: 100,
			Topic:          cfg.Kafka.OpsLogTopic,
			Publisher:      producer,
		})
	}
	return server.New(cfg, lgr, checker, trainQueue, handler, publisher, kv, pg, ch)
}
