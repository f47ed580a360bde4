// Package config handles TOML configuration for awsutils.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/yairfalse/awsutils/pkg/inventory"
)

// Inventory sources.
const (
	SourceAggregator = "aggregator"
	SourceDirect     = "direct"
	SourceFile       = "file"
)

// Configuration errors reported by the Validate methods.
var (
	ErrMissingAggregator  = errors.New("inventory: aggregator_name required (or AGGREGATOR_NAME)")
	ErrMissingRecordsFile = errors.New("inventory: records_file required for the file source")
	ErrMissingParentID    = errors.New("cost: parent_id required")
	ErrMissingCluster     = errors.New("eks: cluster_name required")
	ErrMissingRole        = errors.New("eks: role_arn required")
)

// Config is the root configuration structure.
type Config struct {
	AWS       AWSConfig       `toml:"aws"`
	Inventory InventoryConfig `toml:"inventory"`
	Output    OutputConfig    `toml:"output"`
	Cost      CostConfig      `toml:"cost"`
	EKS       EKSConfig       `toml:"eks"`
	OTEL      OTELConfig      `toml:"otel"`
	Log       LogConfig       `toml:"log"`
}

// AWSConfig holds AWS provider settings.
type AWSConfig struct {
	Regions []string `toml:"regions"`
	Profile string   `toml:"profile"`
}

// InventoryConfig selects where records come from and how they are formatted.
type InventoryConfig struct {
	Source             string            `toml:"source"`
	AggregatorName     string            `toml:"aggregator_name"`
	RecordsFile        string            `toml:"records_file"`
	Queries            []inventory.Query `toml:"queries"`
	ResolveTimeoutStr  string            `toml:"resolve_timeout"`
	ResolveTimeout     time.Duration     `toml:"-"`
	ResolveConcurrency int               `toml:"resolve_concurrency"`
	ExcludeTypes       []string          `toml:"exclude_types"`
	Accounts           []string          `toml:"accounts"`
	Regions            []string          `toml:"regions"`
}

// OutputConfig controls where results go.
type OutputConfig struct {
	Print        bool   `toml:"print"`
	Format       string `toml:"format"`
	SaveFile     bool   `toml:"save_file"`
	SaveFileName string `toml:"save_file_name"`
	S3Bucket     string `toml:"s3_bucket"`
	S3Prefix     string `toml:"s3_prefix"`
	SearchIP     string `toml:"search_ip"`
	Baseline     string `toml:"baseline"`
}

// CostConfig holds cost report settings.
type CostConfig struct {
	ParentID  string        `toml:"parent_id"`
	ByService bool          `toml:"by_service"`
	Threshold float64       `toml:"threshold"`
	WindowStr string        `toml:"window"`
	Window    time.Duration `toml:"-"`
}

// EKSConfig holds cluster access settings.
type EKSConfig struct {
	ClusterName string `toml:"cluster_name"`
	Region      string `toml:"region"`
	RoleARN     string `toml:"role_arn"`
	Kubeconfig  string `toml:"kubeconfig"`
	Namespace   string `toml:"namespace"`
}

// OTELConfig holds OpenTelemetry settings.
type OTELConfig struct {
	Endpoint    string        `toml:"endpoint"`
	Insecure    bool          `toml:"insecure"`
	ServiceName string        `toml:"service_name"`
	Traces      TracesConfig  `toml:"traces"`
	Metrics     MetricsConfig `toml:"metrics"`
}

// TracesConfig holds tracing settings.
type TracesConfig struct {
	Enabled    bool    `toml:"enabled"`
	SampleRate float64 `toml:"sample_rate"`
}

// MetricsConfig holds metrics settings.
type MetricsConfig struct {
	Enabled bool `toml:"enabled"`
	// File receives metrics in Prometheus text format when set.
	File string `toml:"file"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg, toml.MetaData{})
	_ = parseDurations(cfg)
	return cfg
}

// Load reads and parses a TOML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(cfg, md)

	if err := parseDurations(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadOrDefault loads path, or returns the defaults when path is empty.
// Environment overrides are applied in both cases.
func LoadOrDefault(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		var err error
		if cfg, err = Load(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills unset fields. Fields where zero is a valid setting
// are only defaulted when md shows the key was absent from the file.
func applyDefaults(cfg *Config, md toml.MetaData) {
	if cfg.Inventory.Source == "" {
		cfg.Inventory.Source = SourceAggregator
	}
	if len(cfg.Inventory.Queries) == 0 {
		cfg.Inventory.Queries = inventory.DefaultQueries()
	}
	if cfg.Inventory.ResolveTimeoutStr == "" {
		cfg.Inventory.ResolveTimeoutStr = "5s"
	}
	if cfg.Inventory.ResolveConcurrency == 0 {
		cfg.Inventory.ResolveConcurrency = 16
	}
	if cfg.Output.Format == "" {
		cfg.Output.Format = "json"
	}
	if cfg.Output.SaveFileName == "" {
		cfg.Output.SaveFileName = "all_public_ips_FORMATTED.json"
	}
	if !md.IsDefined("cost", "threshold") {
		cfg.Cost.Threshold = 1.0
	}
	if cfg.Cost.WindowStr == "" {
		cfg.Cost.WindowStr = "720h"
	}
	if cfg.EKS.Namespace == "" {
		cfg.EKS.Namespace = "default"
	}
	if cfg.OTEL.ServiceName == "" {
		cfg.OTEL.ServiceName = "awsutils"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

func parseDurations(cfg *Config) error {
	d, err := time.ParseDuration(cfg.Inventory.ResolveTimeoutStr)
	if err != nil {
		return fmt.Errorf("parse resolve_timeout %q: %w", cfg.Inventory.ResolveTimeoutStr, err)
	}
	cfg.Inventory.ResolveTimeout = d

	w, err := time.ParseDuration(cfg.Cost.WindowStr)
	if err != nil {
		return fmt.Errorf("parse window %q: %w", cfg.Cost.WindowStr, err)
	}
	cfg.Cost.Window = w
	return nil
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("AGGREGATOR_NAME"); ok && v != "" {
		c.Inventory.AggregatorName = v
	}
	if v, ok := lookup("PRINT"); ok {
		c.Output.Print = envBool(v)
	}
	if v, ok := lookup("SAVE_FILE"); ok {
		c.Output.SaveFile = envBool(v)
	}
	if v, ok := lookup("SAVE_FILE_NAME"); ok && v != "" {
		c.Output.SaveFileName = v
	}
	if v, ok := lookup("SEARCH_IP"); ok && v != "" {
		c.Output.SearchIP = v
	}
	if v, ok := lookup("CONFIG_QUERIES"); ok && v != "" {
		queries, err := parseQueries(v)
		if err != nil {
			return err
		}
		c.Inventory.Queries = queries
	}
	return nil
}

// envBool accepts the usual boolean spellings; any other non-empty value is true.
func envBool(v string) bool {
	if b, err := strconv.ParseBool(v); err == nil {
		return b
	}
	return v != ""
}

// parseQueries decodes a JSON object of name to expression, ordered by name.
func parseQueries(v string) ([]inventory.Query, error) {
	var m map[string]string
	if err := json.Unmarshal([]byte(v), &m); err != nil {
		return nil, fmt.Errorf("parse CONFIG_QUERIES: %w", err)
	}

	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)

	queries := make([]inventory.Query, 0, len(names))
	for _, name := range names {
		queries = append(queries, inventory.Query{Name: name, Expression: m[name]})
	}
	return queries, nil
}

// Validate checks settings shared by every command.
func (c *Config) Validate() error {
	if c.OTEL.Traces.SampleRate < 0.0 || c.OTEL.Traces.SampleRate > 1.0 {
		return fmt.Errorf("otel: traces.sample_rate must be between 0.0 and 1.0 (got %v)", c.OTEL.Traces.SampleRate)
	}
	return nil
}

// ValidatePublicIPs checks the settings used by the public-ips command.
func (c *Config) ValidatePublicIPs() error {
	if err := c.Validate(); err != nil {
		return err
	}

	switch c.Inventory.Source {
	case SourceAggregator:
		if c.Inventory.AggregatorName == "" {
			return ErrMissingAggregator
		}
		if len(c.Inventory.Queries) == 0 {
			return fmt.Errorf("inventory: at least one query required")
		}
	case SourceFile:
		if c.Inventory.RecordsFile == "" {
			return ErrMissingRecordsFile
		}
	case SourceDirect:
	default:
		return fmt.Errorf("inventory: unknown source %q", c.Inventory.Source)
	}

	if c.Inventory.ResolveTimeout <= 0 {
		return fmt.Errorf("inventory: resolve_timeout must be positive (got %v)", c.Inventory.ResolveTimeout)
	}
	if c.Inventory.ResolveConcurrency < 1 {
		return fmt.Errorf("inventory: resolve_concurrency must be at least 1 (got %d)", c.Inventory.ResolveConcurrency)
	}
	return nil
}

// ValidateCosts checks the settings used by the costs command.
func (c *Config) ValidateCosts() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Cost.ParentID == "" {
		return ErrMissingParentID
	}
	if c.Cost.Window <= 0 {
		return fmt.Errorf("cost: window must be positive (got %v)", c.Cost.Window)
	}
	return nil
}

// ValidateEKS checks the settings used by the kubeconfig and pods commands.
func (c *Config) ValidateEKS() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.EKS.ClusterName == "" {
		return ErrMissingCluster
	}
	if c.EKS.RoleARN == "" {
		return ErrMissingRole
	}
	return nil
}
