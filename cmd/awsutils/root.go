package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/yairfalse/awsutils/internal/config"
	"github.com/yairfalse/awsutils/internal/telemetry"
)

var (
	version = "0.1.0"

	configPath  string
	debug       bool
	metricsFile string
	awsRegion   string
	awsProfile  string

	rootCmd = &cobra.Command{
		Use:   "awsutils",
		Short: "AWS inventory, cost and EKS access utilities",
		Long: `awsutils - small utilities around AWS account inventory

Find every publicly reachable IP across an AWS Config aggregator,
sum the last month of spend per account under an organizational unit,
and get admin access to an EKS cluster through an assumed role.`,
		Version:           version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setupLogging,
	}
)

// Execute runs the root command
func Execute() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}
}

func init() {
	rootCmd.SetVersionTemplate(`awsutils {{.Version}}
`)

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "Path to TOML config file")
	flags.BoolVar(&debug, "debug", false, "Enable debug logging")
	flags.StringVar(&metricsFile, "metrics-file", "", "Write metrics in Prometheus text format to this file")
	flags.StringVarP(&awsRegion, "region", "r", "", "AWS region (defaults to the SDK chain)")
	flags.StringVar(&awsProfile, "profile", "", "AWS shared config profile")
}

func setupLogging(_ *cobra.Command, _ []string) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	return nil
}

// app carries what every command run needs.
type app struct {
	cfg       *config.Config
	telemetry *telemetry.Provider
}

// loadConfig reads the config file, applies environment overrides and
// the global flags.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return nil, err
	}

	if awsRegion != "" {
		cfg.AWS.Regions = []string{awsRegion}
	}
	if awsProfile != "" {
		cfg.AWS.Profile = awsProfile
	}
	if metricsFile != "" {
		cfg.OTEL.Metrics.File = metricsFile
	}
	return cfg, nil
}

// applyLogLevel honours log.level unless --debug was given.
func applyLogLevel(cfg *config.Config) {
	if debug {
		return
	}
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("unknown log level, using info")
		return
	}
	zerolog.SetGlobalLevel(level)
}

// runCommand loads and validates config, sets up telemetry, and runs fn
// inside a span named after the command. Duration and failures are
// recorded, and metrics are written to the textfile when one is set.
func runCommand(
	cmd *cobra.Command,
	name string,
	validate func(*config.Config) error,
	fn func(ctx context.Context, a *app) error,
) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyLogLevel(cfg)

	if err := validate(cfg); err != nil {
		return err
	}

	provider, err := telemetry.NewProvider(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			log.Debug().Err(err).Msg("telemetry shutdown")
		}
	}()

	logger := telemetry.NewLogger(zerolog.ConsoleWriter{Out: os.Stderr}, cfg.OTEL.ServiceName, name)
	log.Logger = logger.Logger

	a := &app{cfg: cfg, telemetry: provider}

	ctx, span := provider.StartSpan(ctx, "awsutils."+name, attribute.String("command", name))
	logger.Started(ctx)

	start := time.Now()
	runErr := fn(ctx, a)
	elapsed := time.Since(start)
	provider.RecordCommandDuration(ctx, name, elapsed)
	logger.Finished(ctx, elapsed, runErr)

	if runErr != nil {
		provider.RecordError(ctx, name)
		span.RecordError(runErr)
		span.SetStatus(codes.Error, runErr.Error())
	}
	span.End()

	if cfg.OTEL.Metrics.File != "" {
		if err := provider.WriteMetrics(cfg.OTEL.Metrics.File); err != nil {
			log.Error().Err(err).Msg("failed to write metrics file")
		}
	}

	return runErr
}

// loadAWSConfig loads the SDK config for region, using the configured profile.
// An empty region keeps whatever the SDK chain resolves.
func loadAWSConfig(ctx context.Context, cfg *config.Config, region string) (aws.Config, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsLoadOptions(cfg, region)...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	return awsCfg, nil
}

func awsLoadOptions(cfg *config.Config, region string) []func(*awsconfig.LoadOptions) error {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if cfg.AWS.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(cfg.AWS.Profile))
	}
	return opts
}

// primaryRegion returns the first configured region, or "" for the SDK default.
func primaryRegion(cfg *config.Config) string {
	if len(cfg.AWS.Regions) > 0 {
		return cfg.AWS.Regions[0]
	}
	return ""
}
