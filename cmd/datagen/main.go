package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vanshika/txscreen/internal/app"
	"github.com/vanshika/txscreen/internal/config"
	"github.com/vanshika/txscreen/internal/generator"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	genCfg := generator.DefaultConfig()
	var (
		configFile  string
		outputDir   string
		writeStdout bool
	)

	cmd := &cobra.Command{
		Use:          "datagen",
		Short:        "Generate a synthetic screened transaction history",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(configFile)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			genCfg.BurstChance = clampProbability(genCfg.BurstChance)
			genCfg.HighRiskChance = clampProbability(genCfg.HighRiskChance)
			genCfg.LargeAmountChance = clampProbability(genCfg.LargeAmountChance)

			ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
			defer cancel()

			dataset, err := generator.New(genCfg, app.NewEvaluator(cfg.Rules)).Generate(ctx)
			if err != nil {
				return fmt.Errorf("generation failed: %w", err)
			}

			if writeStdout {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(dataset)
			}
			if err := generator.WriteDataset(dataset, outputDir); err != nil {
				return fmt.Errorf("failed to write dataset: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generated %d users and %d transactions into %s\n", len(dataset.Users), len(dataset.Transactions), outputDir)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configFile, "config", "", "optional YAML config file supplying rule thresholds")
	flags.IntVar(&genCfg.NumUsers, "users", genCfg.NumUsers, "number of users to generate")
	flags.IntVar(&genCfg.NumTransactions, "transactions", genCfg.NumTransactions, "number of transactions to generate")
	flags.Float64Var(&genCfg.BurstChance, "burst-chance", genCfg.BurstChance, "probability that a sender transacts again within minutes")
	flags.Float64Var(&genCfg.HighRiskChance, "high-risk-chance", genCfg.HighRiskChance, "probability of a high-risk destination country")
	flags.Float64Var(&genCfg.LargeAmountChance, "large-amount-chance", genCfg.LargeAmountChance, "probability of an amount above the large-transaction threshold")
	flags.Int64Var(&genCfg.Seed, "seed", genCfg.Seed, "random seed for deterministic generation")
	flags.StringVar(&outputDir, "output-dir", "seed-data", "directory to write users.json and transactions.json")
	flags.BoolVar(&writeStdout, "stdout", false, "write combined dataset to stdout instead of files")
	return cmd
}

func clampProbability(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
