package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/yairfalse/awsutils/internal/config"
	"github.com/yairfalse/awsutils/internal/cost"
	"github.com/yairfalse/awsutils/internal/emitter"
)

var (
	costParentID  string
	costByService bool
	costThreshold float64
	costWindow    time.Duration
	costFormat    string
)

// costsCmd represents the costs command
var costsCmd = &cobra.Command{
	Use:   "costs",
	Short: "Sum recent spend per account under an organizational unit",
	Long: `List the accounts directly under an AWS Organizations parent and sum
their unblended cost over the last 30 days.

Accounts spending less than the threshold are reported as delete
candidates; the rest are reported for review.`,
	Example: `  awsutils costs --parent-id ou-abcd-12345678
  awsutils costs --parent-id ou-abcd-12345678 --by-service --threshold 5
  awsutils costs --parent-id r-abcd --window 168h -o yaml`,
	RunE: runCosts,
}

func init() {
	rootCmd.AddCommand(costsCmd)

	flags := costsCmd.Flags()
	flags.StringVar(&costParentID, "parent-id", "", "Organizations root or OU id")
	flags.BoolVar(&costByService, "by-service", false, "Group cost by service as well as account")
	flags.Float64Var(&costThreshold, "threshold", cost.DefaultThreshold, "Accounts below this total are delete candidates")
	flags.DurationVar(&costWindow, "window", cost.DefaultWindow, "How far back to sum spend")
	flags.StringVarP(&costFormat, "format", "o", "", "Output format: json, yaml")
}

func runCosts(cmd *cobra.Command, _ []string) error {
	return runCommand(cmd, "costs",
		func(cfg *config.Config) error {
			applyCostFlags(cmd, cfg)
			return cfg.ValidateCosts()
		},
		func(ctx context.Context, a *app) error {
			return costs(ctx, a, cmd.OutOrStdout())
		},
	)
}

func applyCostFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("parent-id") {
		cfg.Cost.ParentID = costParentID
	}
	if flags.Changed("by-service") {
		cfg.Cost.ByService = costByService
	}
	if flags.Changed("threshold") {
		cfg.Cost.Threshold = costThreshold
	}
	if flags.Changed("window") {
		cfg.Cost.Window = costWindow
	}
	if flags.Changed("format") {
		cfg.Output.Format = costFormat
	}
}

func costs(ctx context.Context, a *app, out io.Writer) error {
	cfg := a.cfg

	format, err := emitter.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg, primaryRegion(cfg))
	if err != nil {
		return err
	}

	reporter := cost.NewReporter(awsCfg,
		cost.WithThreshold(cfg.Cost.Threshold),
		cost.WithWindow(cfg.Cost.Window),
	)

	accounts, err := reporter.ListAccounts(ctx, cfg.Cost.ParentID)
	if err != nil {
		return err
	}
	log.Info().Str("parent_id", cfg.Cost.ParentID).Int("accounts", len(accounts)).Msg("accounts listed")

	summary, err := reporter.Summarize(ctx, accounts, cfg.Cost.ByService)
	if err != nil {
		return fmt.Errorf("summarize costs: %w", err)
	}
	log.Info().
		Int("delete", len(summary.Delete)).
		Int("review", len(summary.Review)).
		Msg("costs summarized")

	emitters := []emitter.Emitter{emitter.NewWriterEmitter(out, format)}
	if cfg.Output.S3Bucket != "" {
		emitters = append(emitters, emitter.NewS3Emitter(awsCfg, cfg.Output.S3Bucket, cfg.Output.S3Prefix))
	}

	emit := emitter.NewMultiEmitter(emitters...)
	defer func() { _ = emit.Close() }()

	return emit.Emit(ctx, "account_costs", summary)
}
