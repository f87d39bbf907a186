package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"tenantlog/config"
	"tenantlog/internal/messaging"
	worker "tenantlog/processing"
	"tenantlog/storage/store"
)

func main() {
	app := &cli.App{
		Name:  "worker",
		Usage: "Redact queued tenant logs and store the results",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to the worker YAML config",
				Value:   "./config/" + config.WorkerConfigFile,
				EnvVars: []string{"TENANTLOG_WORKER_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Override logging level (debug, info, warn, error)",
			},
		},
		Action: runCommand,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Consume the queue until interrupted (default)",
				Action: runCommand,
			},
			{
				Name:   "inspect",
				Usage:  "Print one processed log",
				Action: inspectCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tenant", Aliases: []string{"t"}, Usage: "Tenant id", Required: true},
					&cli.StringFlag{Name: "log-id", Usage: "Log id", Required: true},
				},
			},
			{
				Name:   "list",
				Usage:  "Print the processed logs of one tenant",
				Action: listCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tenant", Aliases: []string{"t"}, Usage: "Tenant id", Required: true},
					&cli.IntFlag{Name: "limit", Usage: "Maximum number of documents", Value: store.DefaultListLimit},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup(c *cli.Context) (*config.WorkerConfig, *zap.Logger, error) {
	cfg, err := config.LoadWorkerConfig(c.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load worker configuration: %w", err)
	}
	if lvl := c.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}
	logger, err := config.NewLogger(cfg.Logging, "worker")
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func runCommand(c *cli.Context) error {
	cfg, logger, err := setup(c)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.NewStore(ctx, cfg.Store, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize store: %w", err)
	}
	defer st.Close()

	cons, err := messaging.NewConsumer(cfg.Queue, logger)
	if err != nil {
		if errors.Is(err, messaging.ErrNoLocalBroker) {
			return fmt.Errorf("%w: run the ingestion service with --with-worker, or select kafka or rabbitmq", err)
		}
		return fmt.Errorf("failed to initialize consumer: %w", err)
	}
	defer cons.Close()

	logger.Info("worker started",
		zap.String("queue", cfg.Queue.Backend),
		zap.String("store", cfg.Store.Backend))
	if err := worker.New(cfg.Processing, logger.Named("worker"), st, cons).Run(ctx); err != nil {
		return err
	}
	logger.Info("worker shut down gracefully")
	return nil
}

func openStore(c *cli.Context) (store.Store, func(), error) {
	cfg, logger, err := setup(c)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.NewStore(c.Context, cfg.Store, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	return st, func() {
		_ = st.Close()
		_ = logger.Sync()
	}, nil
}

func inspectCommand(c *cli.Context) error {
	st, done, err := openStore(c)
	if err != nil {
		return err
	}
	defer done()

	doc, err := st.Get(c.Context, c.String("tenant"), c.String("log-id"))
	if err != nil {
		return err
	}
	return printJSON(doc)
}

func listCommand(c *cli.Context) error {
	st, done, err := openStore(c)
	if err != nil {
		return err
	}
	defer done()

	docs, err := st.List(c.Context, c.String("tenant"), c.Int("limit"))
	if err != nil {
		return err
	}
	return printJSON(docs)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
