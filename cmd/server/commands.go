package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/agobrik/unity-sim-packs-sub006/internal/adapter/cache"
	"github.com/agobrik/unity-sim-packs-sub006/internal/adapter/in_memory"
	"github.com/agobrik/unity-sim-packs-sub006/internal/adapter/kafka"
	"github.com/agobrik/unity-sim-packs-sub006/internal/adapter/pebble"
	"github.com/agobrik/unity-sim-packs-sub006/internal/adapter/pg"
	grpcapi "github.com/agobrik/unity-sim-packs-sub006/internal/api/grpc"
	httpapi "github.com/agobrik/unity-sim-packs-sub006/internal/api/http"
	"github.com/agobrik/unity-sim-packs-sub006/internal/config"
	"github.com/agobrik/unity-sim-packs-sub006/internal/core"
	"github.com/agobrik/unity-sim-packs-sub006/internal/logging"
	"github.com/agobrik/unity-sim-packs-sub006/internal/metrics"
)

const tradingDay = 24 * time.Hour

func newRootCmd() *cobra.Command {
	var envPath string
	root := &cobra.Command{
		Use:           "marketd",
		Short:         "Continuous double-auction market simulator",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&envPath, "env", "", "path to a .env file (defaults to ./.env when present)")
	root.AddCommand(newServeCmd(&envPath), newExportCmd(&envPath))
	return root
}

func newServeCmd(envPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC APIs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, *envPath)
		},
	}
}

func newExportCmd(envPath *string) *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Restore persisted state and print a JSON snapshot",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return export(cmd.Context(), *envPath, out, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "write the snapshot to this file instead of stdout")
	return cmd
}

type stack struct {
	dir     *core.Directory
	closers []func() error
}

func (s *stack) close(logger *zap.Logger) {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			logger.Warn("close", zap.Error(err))
		}
	}
}

func loadConfig(envPath string) (config.Config, *zap.Logger, error) {
	cfg, cfgErr := config.Load(envPath)
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return cfg, nil, err
	}
	if cfgErr != nil {
		logger.Warn("invalid configuration values, using defaults", zap.Error(cfgErr))
	}
	return cfg, logger, nil
}

// build wires the directory to whichever backends the configuration names.
func build(ctx context.Context, cfg config.Config, reg prometheus.Registerer, logger *zap.Logger) (*stack, error) {
	s := &stack{}
	opts := []core.Option{
		core.WithLogger(logger),
		core.WithHistoryCap(cfg.Market.HistoryCap),
		core.WithTradeRetention(cfg.Market.TradeRetention),
		core.WithOrderRetention(cfg.Market.OrderRetention),
	}
	if reg != nil {
		opts = append(opts, core.WithMetrics(metrics.New(reg)))
	}

	if cfg.Storage.PostgresDSN != "" {
		repo, err := pg.NewPgRepo(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error { repo.Close(); return nil })
		if err := repo.Migrate(ctx); err != nil {
			s.close(logger)
			return nil, err
		}
		opts = append(opts, core.WithRepository(repo))
	} else {
		logger.Info("no POSTGRES_DSN, using in-memory repository")
		opts = append(opts, core.WithRepository(in_memory.NewMemoryRepo()))
	}

	if cfg.Storage.RedisAddr != "" {
		rc := cache.NewRedisCache(cfg.Storage.RedisAddr, cfg.Storage.RedisPassword, cfg.Storage.RedisDB, cfg.Storage.RedisTTL)
		if err := rc.Ping(ctx); err != nil {
			s.close(logger)
			return nil, err
		}
		s.closers = append(s.closers, rc.Close)
		opts = append(opts, core.WithCache(rc))
	} else {
		opts = append(opts, core.WithCache(in_memory.NewCache()))
	}

	if len(cfg.Storage.KafkaBrokers) > 0 {
		p := kafka.NewProducer(cfg.Storage.KafkaBrokers, cfg.Storage.KafkaTopic)
		s.closers = append(s.closers, p.Close)
		opts = append(opts, core.WithPublisher(p))
	}

	if cfg.Storage.ArchivePath != "" {
		a, err := pebble.Open(cfg.Storage.ArchivePath)
		if err != nil {
			s.close(logger)
			return nil, err
		}
		s.closers = append(s.closers, a.Close)
		opts = append(opts, core.WithArchive(a))
	}

	s.dir = core.NewDirectory(opts...)
	if err := s.dir.Restore(ctx); err != nil {
		s.close(logger)
		return nil, fmt.Errorf("restore: %w", err)
	}
	return s, nil
}

func serve(ctx context.Context, envPath string) error {
	cfg, logger, err := loadConfig(envPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s, err := build(ctx, cfg, reg, logger)
	if err != nil {
		return err
	}
	defer s.close(logger)

	var drifter *core.Drifter
	if cfg.Market.DriftInterval > 0 {
		seed := cfg.Market.DriftSeed
		drifter = core.NewDrifter(s.dir, rand.NewPCG(seed, seed), cfg.Market.DriftInterval.Seconds()/tradingDay.Seconds())
	}
	sched := core.NewScheduler(s.dir, drifter, cfg.Market.SweepInterval, cfg.Market.DriftInterval, logger)

	httpSrv := httpapi.NewHTTPServer(s.dir, cfg.Server.RateLimit, reg, logger)
	var grpcSrv *grpcapi.GRPCServer
	var lis net.Listener
	if cfg.Server.GRPCAddr != "" {
		lis, err = net.Listen("tcp", cfg.Server.GRPCAddr)
		if err != nil {
			return fmt.Errorf("grpc listen: %w", err)
		}
		grpcSrv = grpcapi.NewGRPCServer(s.dir, logger)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	errc := make(chan error, 2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		sched.Run(runCtx)
	}()
	go func() { errc <- httpSrv.Run(cfg.Server.HTTPAddr) }()
	if grpcSrv != nil {
		go func() { errc <- grpcSrv.Serve(lis) }()
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errc:
		logger.Error("server stopped", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, err)
	}
	if grpcSrv != nil {
		grpcSrv.Stop()
	}
	cancelRun()
	wg.Wait()
	return runErr
}

func export(ctx context.Context, envPath, out string, stdout io.Writer) error {
	cfg, logger, err := loadConfig(envPath)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	s, err := build(ctx, cfg, nil, logger)
	if err != nil {
		return err
	}
	defer s.close(logger)

	b, err := s.dir.ExportSnapshot()
	if err != nil {
		return err
	}
	if out == "" {
		_, err = stdout.Write(append(b, '\n'))
		return err
	}
	return os.WriteFile(out, b, 0o644)
}
