package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"tempo/internal/api"
	"tempo/internal/app"
	"tempo/internal/config"
	"tempo/internal/events"
	"tempo/internal/metrics"
	"tempo/internal/runner"
	"tempo/internal/util"
)

func main() {
	_ = godotenv.Load() // best-effort

	cfgPath := "config/tempo.yaml"
	if p := os.Getenv("TEMPO_CONFIG"); p != "" {
		cfgPath = p
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logger := util.NewLoggerTo(os.Stdout, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		log.Fatalf("live run failed: %v", err)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// runCtx is cancelled only on a second signal; the first one asks every
	// runner to stop after its held signal resolves.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()

	backends, err := app.OpenBackends(runCtx, cfg.Storage)
	if err != nil {
		return err
	}
	defer backends.Close()

	ex, err := app.NewExchange(cfg, logger)
	if err != nil {
		return err
	}
	sess, err := app.Build(runCtx, cfg, ex, backends, true, logger)
	if err != nil {
		return err
	}

	hub := events.NewHub()
	grpcSrv := api.NewServer(hub, logger)
	lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("listening for grpc: %w", err)
	}
	go func() {
		if err := grpcSrv.Serve(lis); err != nil {
			logger.Error("grpc server stopped", "error", err)
		}
	}()
	defer grpcSrv.Stop()

	httpSrv := metrics.Serve(fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.MetricsPort),
		metrics.Route{Pattern: "/api/v1/outcomes", Handler: api.HandleOutcomes(hub)},
		metrics.Route{Pattern: "/api/v1/positions", Handler: api.HandlePositions(sess.Validators)},
	)
	defer func() {
		if err := metrics.Shutdown(httpSrv, 5*time.Second); err != nil {
			logger.Warn("metrics shutdown", "error", err)
		}
	}()

	lives := make([]*runner.Live, 0, len(sess.Engines))
	for _, e := range sess.Engines {
		lives = append(lives, runner.NewLive(e, logger))
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
		case <-runCtx.Done():
			return
		}
		logger.Info("stopping: waiting for held signals to close; signal again to exit now")
		for _, l := range lives {
			l.Stop()
		}
		select {
		case <-sigCh:
			logger.Warn("forced exit")
			cancelRun()
		case <-runCtx.Done():
		}
	}()

	logger.Info("live trading started", "engines", len(lives), "exchange", ex.Name())

	g, gctx := errgroup.WithContext(runCtx)
	for _, l := range lives {
		g.Go(func() error {
			for o, err := range l.Run(gctx) {
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				hub.Publish(o)
				metrics.Observe(o)
			}
			return nil
		})
	}
	err = g.Wait()
	logger.Info("live trading finished")
	return err
}
