package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"tenantlog/config"
	"tenantlog/ingestion/normalizer"
	core "tenantlog/ingestion/service/core"
	grpchandler "tenantlog/ingestion/service/grpc"
	httphandler "tenantlog/ingestion/service/http"
	"tenantlog/internal/messaging"
	"tenantlog/internal/messaging/memory"
	worker "tenantlog/processing"
	"tenantlog/storage/store"
)

const shutdownTimeout = 15 * time.Second

func main() {
	app := &cli.App{
		Name:  "ingestion",
		Usage: "Accept tenant logs over HTTP and gRPC and queue them for redaction",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the ingestion YAML config",
				Value:   "./config/" + config.IngestionConfigFile,
				EnvVars: []string{"TENANTLOG_INGESTION_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Override logging level (debug, info, warn, error)",
			},
			&cli.BoolFlag{
				Name:  "with-worker",
				Usage: "Also run a worker pool in this process (shares the queue when the backend is memory)",
			},
			&cli.StringFlag{
				Name:  "worker-config",
				Usage: "Path to the worker YAML config, used with --with-worker",
				Value: "./config/" + config.WorkerConfigFile,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.LoadIngestionConfig(c.String("config"))
	if err != nil {
		return fmt.Errorf("failed to load ingestion configuration: %w", err)
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}

	logger, err := config.NewLogger(cfg.Logging, "ingestion")
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var opts []messaging.Option
	if cfg.Queue.Backend == config.QueueMemory {
		broker := memory.NewBroker(cfg.Queue.Memory, logger.Named("memory"))
		opts = append(opts, messaging.WithBroker(broker))
		if !c.Bool("with-worker") {
			logger.Warn("memory queue backend without --with-worker: queued logs are never processed")
		}
	}

	logger.Info("initializing producer", zap.String("backend", cfg.Queue.Backend))
	prod, err := messaging.NewProducer(cfg.Queue, logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize producer: %w", err)
	}

	svc := core.NewService(normalizer.New(), prod, cfg.PublishTimeout, logger.Named("service"))
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Warn("producer close failed", zap.Error(err))
		}
	}()

	logHandler := httphandler.NewLogHandler(svc, cfg.MaxRequestBytes, logger.Named("http"))

	var wg sync.WaitGroup
	// Cancelled after the listeners drain, so the worker sees every accepted record.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	errCh := make(chan error, 3)

	if c.Bool("with-worker") {
		st, err := startWorker(ctx, workerCtx, c.String("worker-config"), cfg, logger, opts, &wg, errCh)
		if err != nil {
			return err
		}
		defer st.Close()
		logHandler.AddReadinessCheck("store", st.Ping)
	}

	var httpServer *http.Server
	if cfg.HttpListenAddr != "" {
		httpServer = &http.Server{
			Addr:           cfg.HttpListenAddr,
			Handler:        httphandler.NewRouter(logHandler, logger.Named("http")),
			ReadTimeout:    cfg.HttpServer.ReadTimeout,
			WriteTimeout:   cfg.HttpServer.WriteTimeout,
			IdleTimeout:    cfg.HttpServer.IdleTimeout,
			MaxHeaderBytes: cfg.HttpServer.MaxHeaderBytes,
		}
		go func() {
			logger.Info("HTTP server listening", zap.String("addr", cfg.HttpListenAddr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("HTTP server failed: %w", err)
			}
		}()
	} else {
		logger.Info("http_listen_addr not configured, skipping HTTP server startup")
	}

	var grpcServer *grpc.Server
	if cfg.GrpcListenAddr != "" {
		lis, err := net.Listen("tcp", cfg.GrpcListenAddr)
		if err != nil {
			return fmt.Errorf("unable to listen on gRPC address %s: %w", cfg.GrpcListenAddr, err)
		}
		grpcServer = grpchandler.NewGRPCServer(grpchandler.NewServer(svc, logger.Named("grpc")), logger.Named("grpc"))
		go func() {
			logger.Info("gRPC server listening", zap.String("addr", cfg.GrpcListenAddr))
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				errCh <- fmt.Errorf("gRPC server failed: %w", err)
			}
		}()
	} else {
		logger.Info("grpc_listen_addr not configured, skipping gRPC server startup")
	}

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal, starting graceful shutdown")
	case runErr = <-errCh:
		logger.Error("server failed, shutting down", zap.Error(runErr))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("HTTP server shutdown failed", zap.Error(err))
		}
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}

	stopWorker()
	wg.Wait()
	logger.Info("ingestion service stopped")
	return runErr
}

// startWorker runs a co-located worker pool until workerCtx is cancelled.
func startWorker(ctx, workerCtx context.Context, path string, ingestCfg *config.IngestionConfig, logger *zap.Logger, opts []messaging.Option, wg *sync.WaitGroup, errCh chan<- error) (store.Store, error) {
	wcfg, err := config.LoadWorkerConfig(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load worker configuration: %w", err)
	}
	if wcfg.Queue.Backend != ingestCfg.Queue.Backend {
		return nil, fmt.Errorf("worker queue backend %q does not match ingestion backend %q", wcfg.Queue.Backend, ingestCfg.Queue.Backend)
	}

	st, err := store.NewStore(ctx, wcfg.Store, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	cons, err := messaging.NewConsumer(wcfg.Queue, logger, opts...)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to initialize consumer: %w", err)
	}

	w := worker.New(wcfg.Processing, logger.Named("worker"), st, cons)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := w.Run(workerCtx); err != nil {
			errCh <- fmt.Errorf("worker stopped: %w", err)
		}
		// The memory broker is also the producer; the service closes it.
		if wcfg.Queue.Backend != config.QueueMemory {
			_ = cons.Close()
		}
	}()
	return st, nil
}
