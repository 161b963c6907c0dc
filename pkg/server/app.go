package server

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"DropWatch/internal/domain/repository"
	"DropWatch/internal/usecase"
	pkgch "DropWatch/pkg/clickhouse"
	"DropWatch/pkg/config"
	xhttp "DropWatch/pkg/http"
	"DropWatch/pkg/kvstore"
	"DropWatch/pkg/logger"
	"DropWatch/pkg/postgres"
	"DropWatch/pkg/queue"
)

// App encapsulates the application lifecycle: the scheduled check loop,
// the single-worker training queue, the admin HTTP server and the
// infrastructure clients that need graceful closing.
type App struct {
	cfg        *config.Config
	logger     *logger.Logger
	checker    *usecase.CandidateChecker
	trainQueue *queue.RedisQueue
	httpServer *xhttp.Server
	publisher  repository.SignalPublisher
	kv         kvstore.Store
	pgClient   *postgres.Client
	chClient   *pkgch.Client
}

// New creates the App with all dependencies.
func New(
	cfg *config.Config,
	lgr *logger.Logger,
	checker *usecase.CandidateChecker,
	trainQueue *queue.RedisQueue,
	handler xhttp.Handler,
	publisher repository.SignalPublisher,
	kv kvstore.Store,
	pgClient *postgres.Client,
	chClient *pkgch.Client,
) *App {
	httpServer := xhttp.NewServer(handler,
		xhttp.WithPort(cfg.Server.Port),
		xhttp.WithTimeouts(cfg.Server.ReadTimeout, cfg.Server.WriteTimeout, cfg.Server.ShutdownTimeout),
		xhttp.WithRequestMetrics(lgr, 2*time.Second),
	)
	return &App{
		cfg:        cfg,
		logger:     lgr,
		checker:    checker,
		trainQueue: trainQueue,
		httpServer: httpServer,
		publisher:  publisher,
		kv:         kv,
		pgClient:   pgClient,
		chClient:   chClient,
	}
}

// Run starts everything and blocks until interrupted.
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.trainQueue.Start(); err != nil {
		return err
	}
	a.trainQueue.StartRetryProcessor()

	go a.checkLoop(ctx)
	go a.trainLoop(ctx)

	if err := a.httpServer.Start(); err != nil {
		a.logger.Error("http server start error", logger.Error(err))
		return err
	}
	a.logger.Info("app started",
		logger.String("environment", a.cfg.Environment),
		logger.Int("port", a.cfg.Server.Port))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	a.logger.Info("shutdown signal received")
	cancel()
	return a.shutdown()
}

// checkLoop runs one check batch per interval. Batches are sequential;
// a run that outlasts the interval simply delays the next tick.
func (a *App) checkLoop(ctx context.Context) {
	interval := a.cfg.Checker.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			report, err := a.checker.CheckBatch(ctx, a.cfg.Checker.BatchLimit)
			if err != nil {
				a.logger.Error("scheduled check batch failed", logger.Error(err))
				continue
			}
			if report.LiveFound > 0 {
				a.logger.Info("drops detected",
					logger.Int("live_found", report.LiveFound))
			}
		}
	}
}

// trainLoop enqueues a periodic training run. The queue's single worker
// is what keeps concurrent runs from overlapping, including runs
// triggered over the admin API.
func (a *App) trainLoop(ctx context.Context) {
	interval := a.cfg.Trainer.Interval
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.trainQueue.PublishMessage(ctx, usecase.TrainMessageType, usecase.TrainPayload{}); err != nil {
				a.logger.Error("enqueue scheduled train failed", logger.Error(err))
			}
		}
	}
}

// shutdown stops the servers and closes infrastructure clients in
// dependency order.
func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.logger.Error("http shutdown error", logger.Error(err))
	}

	if err := a.trainQueue.Stop(shutdownCtx); err != nil {
		a.logger.Warn("train queue stop error", logger.Error(err))
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("signal publisher close error", logger.Error(err))
		}
	}
	if a.kv != nil {
		if err := a.kv.Close(); err != nil {
			a.logger.Warn("kvstore close error", logger.Error(err))
		}
	}
	if a.chClient != nil {
		if err := a.chClient.Close(); err != nil {
			a.logger.Warn("clickhouse close error", logger.Error(err))
		}
	}
	if a.pgClient != nil {
		a.pgClient.Close()
	}

	a.logger.Info("shutdown complete")
	return nil
}
