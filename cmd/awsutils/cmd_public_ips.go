package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yairfalse/awsutils/internal/config"
	"github.com/yairfalse/awsutils/internal/emitter"
	"github.com/yairfalse/awsutils/internal/filter"
	"github.com/yairfalse/awsutils/internal/publicip"
	"github.com/yairfalse/awsutils/internal/resolver"
	"github.com/yairfalse/awsutils/internal/source"
	"github.com/yairfalse/awsutils/internal/telemetry"
	"github.com/yairfalse/awsutils/pkg/inventory"
)

// publicIPsResult is the name results are emitted under.
const publicIPsResult = "all_public_ips"

var (
	ipSource       string
	ipAggregator   string
	ipRecordsFile  string
	ipPrint        bool
	ipSaveFile     bool
	ipSaveFileName string
	ipFormat       string
	ipSearch       string
	ipS3Bucket     string
	ipS3Prefix     string
	ipBaseline     string
	ipExcludeTypes []string
	ipAccounts     []string
	ipRegions      []string
)

// publicIPsCmd represents the public-ips command
var publicIPsCmd = &cobra.Command{
	Use:   "public-ips",
	Short: "List every publicly reachable IP in the inventory",
	Long: `Query AWS Config for resources with a public address and format them.

Network interfaces and Elastic IPs carry their address directly. Load
balancers, RDS instances and EKS endpoints are only known by DNS name;
those names are resolved together in one concurrent batch.

Records can come from an AWS Config aggregator, a direct scan of the
current account, or a file of records saved earlier.`,
	Example: `  awsutils public-ips --aggregator org-aggregator --print
  awsutils public-ips --source direct --region eu-west-1 --print
  awsutils public-ips --source file --records-file records.json --search-ip 203.0.113.10
  awsutils public-ips --save-file --baseline all_public_ips_FORMATTED.json`,
	RunE: runPublicIPs,
}

func init() {
	rootCmd.AddCommand(publicIPsCmd)

	flags := publicIPsCmd.Flags()
	flags.StringVar(&ipSource, "source", "", "Inventory source: aggregator, direct, file")
	flags.StringVar(&ipAggregator, "aggregator", "", "AWS Config aggregator name")
	flags.StringVar(&ipRecordsFile, "records-file", "", "Records file for the file source")
	flags.BoolVar(&ipPrint, "print", false, "Pretty print results to stdout")
	flags.BoolVar(&ipSaveFile, "save-file", false, "Save results to a file")
	flags.StringVar(&ipSaveFileName, "save-file-name", "", "File to save results to")
	flags.StringVarP(&ipFormat, "format", "o", "", "Output format: json, yaml")
	flags.StringVar(&ipSearch, "search-ip", "", "Report the resources reachable on this IP")
	flags.StringVar(&ipS3Bucket, "s3-bucket", "", "Upload results to this S3 bucket")
	flags.StringVar(&ipS3Prefix, "s3-prefix", "", "Key prefix for the S3 upload")
	flags.StringVar(&ipBaseline, "baseline", "", "Results file of an earlier run to report changes against")
	flags.StringSliceVar(&ipExcludeTypes, "exclude-type", nil, "Resource types to leave out")
	flags.StringSliceVar(&ipAccounts, "account", nil, "Only keep these accounts")
	flags.StringSliceVar(&ipRegions, "only-region", nil, "Only keep these regions")
}

func runPublicIPs(cmd *cobra.Command, _ []string) error {
	return runCommand(cmd, "public-ips",
		func(cfg *config.Config) error {
			applyPublicIPFlags(cmd, cfg)
			return cfg.ValidatePublicIPs()
		},
		func(ctx context.Context, a *app) error {
			return publicIPs(ctx, a, cmd.OutOrStdout())
		},
	)
}

// applyPublicIPFlags overrides config with the flags given on the command line.
func applyPublicIPFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("source") {
		cfg.Inventory.Source = ipSource
	}
	if flags.Changed("aggregator") {
		cfg.Inventory.AggregatorName = ipAggregator
	}
	if flags.Changed("records-file") {
		cfg.Inventory.RecordsFile = ipRecordsFile
	}
	if flags.Changed("print") {
		cfg.Output.Print = ipPrint
	}
	if flags.Changed("save-file") {
		cfg.Output.SaveFile = ipSaveFile
	}
	if flags.Changed("save-file-name") {
		cfg.Output.SaveFileName = ipSaveFileName
	}
	if flags.Changed("format") {
		cfg.Output.Format = ipFormat
	}
	if flags.Changed("search-ip") {
		cfg.Output.SearchIP = ipSearch
	}
	if flags.Changed("s3-bucket") {
		cfg.Output.S3Bucket = ipS3Bucket
	}
	if flags.Changed("s3-prefix") {
		cfg.Output.S3Prefix = ipS3Prefix
	}
	if flags.Changed("baseline") {
		cfg.Output.Baseline = ipBaseline
	}
	if flags.Changed("exclude-type") {
		cfg.Inventory.ExcludeTypes = ipExcludeTypes
	}
	if flags.Changed("account") {
		cfg.Inventory.Accounts = ipAccounts
	}
	if flags.Changed("only-region") {
		cfg.Inventory.Regions = ipRegions
	}
}

func publicIPs(ctx context.Context, a *app, out io.Writer) error {
	cfg := a.cfg
	span := trace.SpanFromContext(ctx)

	format, err := emitter.ParseFormat(cfg.Output.Format)
	if err != nil {
		return err
	}

	sources, err := buildSources(ctx, cfg)
	if err != nil {
		return err
	}

	var raw []string
	for _, src := range sources {
		records, err := src.Records(ctx)
		if err != nil {
			return fmt.Errorf("read %s records: %w", src.Name(), err)
		}
		a.telemetry.RecordSourceRecords(ctx, src.Name(), len(records))
		raw = append(raw, records...)
	}

	formatter, err := publicip.New(resolver.New(),
		publicip.WithTimeout(cfg.Inventory.ResolveTimeout),
		publicip.WithConcurrency(cfg.Inventory.ResolveConcurrency),
		publicip.WithMeterProvider(a.telemetry.MeterProvider()),
		publicip.WithTracer(a.telemetry.Tracer()),
	)
	if err != nil {
		return fmt.Errorf("create formatter: %w", err)
	}

	start := time.Now()
	result := formatter.Format(ctx, raw)
	exposures := filter.New(cfg.Inventory.ExcludeTypes, cfg.Inventory.Accounts, cfg.Inventory.Regions).
		Apply(result.Records)

	telemetry.RecordFormatCompletedEvent(span, cfg.Inventory.Source,
		int64(len(raw)), int64(len(exposures)), int64(len(result.Skipped)), time.Since(start).Seconds())
	span.SetAttributes(attribute.Int("exposures", len(exposures)))

	if len(result.Skipped) > 0 {
		log.Warn().Int("skipped", len(result.Skipped)).Msg("some inventory records could not be formatted")
	}
	log.Info().
		Str("source", cfg.Inventory.Source).
		Int("records", len(raw)).
		Int("exposures", len(exposures)).
		Msg("public ips formatted")

	prom, err := emitter.NewPrometheusEmitterWithProvider(a.telemetry.MeterProvider())
	if err != nil {
		return fmt.Errorf("create prometheus emitter: %w", err)
	}
	if err := loadBaseline(prom, cfg.Output.Baseline); err != nil {
		return err
	}
	for _, diff := range prom.Diffs(exposures) {
		telemetry.RecordExposureChangeEvent(span, diff)
	}

	emitters := outputEmitters(cfg, format, out)
	if cfg.Output.S3Bucket != "" {
		awsCfg, err := loadAWSConfig(ctx, cfg, primaryRegion(cfg))
		if err != nil {
			return err
		}
		emitters = append(emitters, emitter.NewS3Emitter(awsCfg, cfg.Output.S3Bucket, cfg.Output.S3Prefix))
	}
	emitters = append(emitters, prom)

	emit := emitter.NewMultiEmitter(emitters...)
	defer func() { _ = emit.Close() }()

	if err := emit.Emit(ctx, publicIPsResult, exposures); err != nil {
		return fmt.Errorf("emit public ips: %w", err)
	}

	if cfg.Output.SearchIP != "" {
		return reportSearch(out, format, cfg.Output.SearchIP, publicip.Search(exposures, cfg.Output.SearchIP))
	}
	return nil
}

// buildSources returns the configured inventory sources. The direct source
// scans each configured region, or the SDK default region when none is set.
func buildSources(ctx context.Context, cfg *config.Config) ([]source.Source, error) {
	switch cfg.Inventory.Source {
	case config.SourceFile:
		return []source.Source{source.NewFile(cfg.Inventory.RecordsFile)}, nil

	case config.SourceDirect:
		regions := cfg.AWS.Regions
		if len(regions) == 0 {
			regions = []string{""}
		}
		sources := make([]source.Source, 0, len(regions))
		for _, region := range regions {
			awsCfg, err := loadAWSConfig(ctx, cfg, region)
			if err != nil {
				return nil, err
			}
			direct, err := source.NewDirect(ctx, awsCfg)
			if err != nil {
				return nil, fmt.Errorf("create direct source: %w", err)
			}
			sources = append(sources, direct)
		}
		return sources, nil

	default:
		awsCfg, err := loadAWSConfig(ctx, cfg, primaryRegion(cfg))
		if err != nil {
			return nil, err
		}
		return []source.Source{
			source.NewAggregator(awsCfg, cfg.Inventory.AggregatorName, cfg.Inventory.Queries),
		}, nil
	}
}

// outputEmitters returns the stdout and file emitters enabled in config.
func outputEmitters(cfg *config.Config, format emitter.Format, out io.Writer) []emitter.Emitter {
	var emitters []emitter.Emitter
	if cfg.Output.Print {
		emitters = append(emitters, emitter.NewWriterEmitter(out, format))
	}
	if cfg.Output.SaveFile {
		emitters = append(emitters, emitter.NewFileEmitter(cfg.Output.SaveFileName, format))
	}
	return emitters
}

// loadBaseline seeds the change tracker from an earlier results file.
// A missing file means this is the first run.
func loadBaseline(prom *emitter.PrometheusEmitter, path string) error {
	if path == "" {
		return nil
	}

	baseline, err := emitter.ReadExposures(path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info().Str("path", path).Msg("no baseline yet")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load baseline: %w", err)
	}

	prom.SetBaseline(baseline)
	log.Debug().Str("path", path).Int("exposures", len(baseline)).Msg("baseline loaded")
	return nil
}

// reportSearch prints the resources reachable on ip.
func reportSearch(out io.Writer, format emitter.Format, ip string, matches []inventory.Exposure) error {
	if len(matches) == 0 {
		_, err := fmt.Fprintf(out, "no matches found for %s\n", ip)
		return err
	}

	if _, err := fmt.Fprintf(out, "match found for %s\n", ip); err != nil {
		return err
	}
	w := emitter.NewWriterEmitter(out, format)
	for _, m := range matches {
		if err := w.Emit(context.Background(), "match", m); err != nil {
			return err
		}
	}
	return nil
}
