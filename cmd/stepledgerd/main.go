// Command stepledgerd runs the step ledger daemon: it consumes step deltas
// from a sensor backend, maintains the daily ledger and serves the JSON API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"stepledger/internal/backend"
	"stepledger/internal/cli"
	apphttp "stepledger/internal/http"
	"stepledger/internal/ledger"
	"stepledger/internal/log"
	"stepledger/internal/metrics"
	"stepledger/internal/worker"
)

func main() {
	logger := cli.SetupLogger()
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig(logger)

	repo := cli.InitStorage(logger, cfg.LedgerDBPath)
	defer repo.Close()

	ctx, stop := cli.SignalContext()
	defer stop()

	factory := backend.NewFactory(logger)
	source, err := factory.CreateBackend(ctx, backend.FromAppConfig(cfg))
	if err != nil {
		logger.Error("assembling step source", log.FieldError, err.Error())
		os.Exit(1)
	}
	defer source.Close()

	m := metrics.New()
	svc := ledger.NewService(repo, source.Notifier, m, logger, ledger.Config{
		DailyGoal: cfg.DailyStepGoal,
	})

	if _, err := svc.Initialize(ctx); err != nil {
		logger.Error("initializing ledger", log.FieldError, err.Error())
		os.Exit(1)
	}

	srv := apphttp.NewServer(":"+cfg.Port, svc, logger, apphttp.Options{
		Ready:          repo.Ping,
		MetricsHandler: m.Handler(),
	})
	srv.ReadTimeout = 10 * time.Second
	srv.WriteTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting server", "port", cfg.Port, "backend", cfg.SensorBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if source.Source != nil {
		sensorWorker := worker.NewSensorWorker(source.Source, svc, logger)
		g.Go(func() error {
			if err := sensorWorker.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error("daemon stopped", log.FieldError, err.Error())
		os.Exit(1)
	}
	logger.Info("daemon stopped gracefully")
}
