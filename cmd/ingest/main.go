package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/vanshika/txscreen/internal/app"
	"github.com/vanshika/txscreen/internal/config"
	"github.com/vanshika/txscreen/internal/domain"
	"github.com/vanshika/txscreen/internal/generator"
	"github.com/vanshika/txscreen/internal/logging"
	"github.com/vanshika/txscreen/internal/service"
)

var errEmptyDataset = errors.New("dataset is empty")

type ingestOptions struct {
	configFile   string
	datasetDir   string
	usersPath    string
	transactions string
	workers      int
	quiet        bool
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts ingestOptions

	cmd := &cobra.Command{
		Use:          "ingest",
		Short:        "Load historical users and transactions into the configured store",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configFile, "config", "", "optional YAML config file")
	flags.StringVar(&opts.datasetDir, "dataset-dir", "./seed-data", "directory containing users.json and transactions.json")
	flags.StringVar(&opts.usersPath, "users", "", "path to users.json (overrides dataset-dir)")
	flags.StringVar(&opts.transactions, "transactions", "", "path to transactions.json (overrides dataset-dir)")
	flags.IntVar(&opts.workers, "workers", 4, "number of concurrent workers for ingestion")
	flags.BoolVar(&opts.quiet, "quiet", false, "disable progress bars")
	return cmd
}

func run(ctx context.Context, opts ingestOptions) error {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger := logging.New(cfg.Logging).With("component", "ingest")

	dataset, err := generator.ReadDataset(opts.datasetDir, opts.usersPath, opts.transactions)
	if err != nil {
		return err
	}
	users, txs, err := decodeDataset(dataset)
	if err != nil {
		return err
	}

	store, closeStore, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := closeStore(context.Background()); err != nil {
			logger.Warn("closing store failed", "error", err)
		}
	}()

	ingestor := service.NewBulkIngestor(store, opts.workers)
	start := time.Now()

	logger.Info("ingesting users", "count", len(users), "workers", opts.workers)
	bar := newBar(len(users), "users", opts.quiet)
	ingestor.OnProgress(func(n int) { _ = bar.Add(n) })
	if err := ingestor.IngestUsers(ctx, users); err != nil {
		return fmt.Errorf("user ingestion failed: %w", err)
	}
	_ = bar.Finish()

	logger.Info("ingesting transactions", "count", len(txs))
	bar = newBar(len(txs), "transactions", opts.quiet)
	ingestor.OnProgress(func(n int) { _ = bar.Add(n) })
	if err := ingestor.IngestTransactions(ctx, txs); err != nil {
		return fmt.Errorf("transaction ingestion failed: %w", err)
	}
	_ = bar.Finish()

	logger.Info("ingestion complete", "duration", time.Since(start).String(), "users", len(users), "transactions", len(txs))
	return nil
}

func decodeDataset(ds generator.Dataset) ([]domain.User, []domain.Transaction, error) {
	if len(ds.Users) == 0 || len(ds.Transactions) == 0 {
		return nil, nil, errEmptyDataset
	}

	users := make([]domain.User, 0, len(ds.Users))
	for _, doc := range ds.Users {
		u, err := doc.User()
		if err != nil {
			return nil, nil, err
		}
		users = append(users, u)
	}

	txs := make([]domain.Transaction, 0, len(ds.Transactions))
	for _, doc := range ds.Transactions {
		tx, err := doc.Transaction()
		if err != nil {
			return nil, nil, err
		}
		txs = append(txs, tx)
	}
	return users, txs, nil
}

func newBar(total int, label string, quiet bool) *progressbar.ProgressBar {
	if quiet {
		return progressbar.DefaultSilent(int64(total))
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription("ingesting "+label),
	)
}
