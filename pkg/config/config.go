// Package config loads contractsort settings.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (CONTRACTSORT_VENDOR_THRESHOLD, CONTRACTSORT_LOG_LEVEL, etc.)
//  2. YAML config file (contractsort.yaml in the working directory by default)
//  3. Hardcoded defaults
//
// Environment variables map to keys by dropping the prefix and splitting on
// the first underscore only:
//
//	CONTRACTSORT_VENDOR_MASTER_LIST -> vendor.master_list
//	CONTRACTSORT_INGEST_BATCH_SIZE  -> ingest.batch_size
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"github.com/japaniel/contractsort/pkg/classify"
	"github.com/japaniel/contractsort/pkg/dates"
	"github.com/japaniel/contractsort/pkg/extract"
	"github.com/japaniel/contractsort/pkg/logging"
	"github.com/japaniel/contractsort/pkg/metadata"
	"github.com/japaniel/contractsort/pkg/registry"
	"github.com/japaniel/contractsort/pkg/signature"
	"github.com/japaniel/contractsort/pkg/vendor"
)

const (
	maxConfigFileSize = 1024 * 1024 // 1MB

	// EnvPrefix starts every environment override.
	EnvPrefix = "CONTRACTSORT_"
	// DefaultPath is read when no path is given and the file exists.
	DefaultPath = "contractsort.yaml"
	// DefaultSQLitePath is the registry location for the sqlite backend.
	DefaultSQLitePath = "contractsort.db"
	// DefaultCacheDir holds downloaded master lists.
	DefaultCacheDir = ".contractsort-cache"
)

// Registry backends.
const (
	BackendJSON   = "json"
	BackendSQLite = "sqlite"
)

// ErrInvalid is wrapped by every configuration error.
var ErrInvalid = errors.New("invalid configuration")

// Config holds the complete contractsort configuration.
type Config struct {
	Log       logging.Options         `koanf:"log"`
	Registry  RegistryConfig          `koanf:"registry"`
	Locator   signature.LocatorConfig `koanf:"locator"`
	Signature SignatureConfig         `koanf:"signature"`
	Dates     dates.Config            `koanf:"dates"`
	Vendor    VendorConfig            `koanf:"vendor"`
	Classify  classify.Config         `koanf:"classify"`
	Ingest    IngestConfig            `koanf:"ingest"`
}

// RegistryConfig selects where tracking records are kept.
type RegistryConfig struct {
	Backend string `koanf:"backend"`
	Path    string `koanf:"path"`
}

// SignatureConfig holds the ordered signature rules.
type SignatureConfig struct {
	Rules []signature.RuleConfig `koanf:"rules"`
}

// VendorConfig holds vendor matching settings. A zero threshold means the
// default. MasterList is a file path or an http(s) URL; downloaded lists are
// kept in CacheDir for CacheTTL.
type VendorConfig struct {
	Threshold  int           `koanf:"threshold"`
	MasterList string        `koanf:"master_list"`
	CacheDir   string        `koanf:"cache_dir"`
	CacheTTL   time.Duration `koanf:"cache_ttl"`
}

// IngestConfig holds batch pipeline settings.
type IngestConfig struct {
	Workers       int           `koanf:"workers"`
	BatchSize     int           `koanf:"batch_size"`
	FlushInterval time.Duration `koanf:"flush_interval"`
	SegmentLines  int           `koanf:"segment_lines"`
	Naming        string        `koanf:"naming"`
}

// Load reads configuration from the YAML file at path, then applies
// environment overrides, defaults and validation. An empty path reads
// DefaultPath when it exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultPath
	}
	content, err := readConfigFile(path)
	switch {
	case err == nil:
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, err
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

// envKey maps CONTRACTSORT_SECTION_FIELD_NAME to section.field_name.
func envKey(s string) string {
	lower := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
	parts := strings.SplitN(lower, "_", 2)
	if len(parts) == 1 {
		return lower
	}
	return parts[0] + "." + parts[1]
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: config path %s is a directory", ErrInvalid, path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("%w: config file too large: %d bytes (max %d)", ErrInvalid, info.Size(), maxConfigFileSize)
	}
	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}

	if cfg.Registry.Backend == "" {
		cfg.Registry.Backend = BackendJSON
	}
	if cfg.Registry.Path == "" {
		if cfg.Registry.Backend == BackendSQLite {
			cfg.Registry.Path = DefaultSQLitePath
		} else {
			cfg.Registry.Path = registry.DefaultFileName
		}
	}

	if cfg.Locator.TailSegments == 0 {
		cfg.Locator.TailSegments = signature.DefaultTailSegments
	}
	if len(cfg.Locator.Anchors) == 0 {
		cfg.Locator.Anchors = signature.DefaultAnchors()
	}
	if len(cfg.Signature.Rules) == 0 {
		cfg.Signature.Rules = signature.DefaultRules()
	}

	dd := dates.DefaultConfig()
	if len(cfg.Dates.Anchors) == 0 {
		cfg.Dates.Anchors = dd.Anchors
	}
	if cfg.Dates.Window == 0 {
		cfg.Dates.Window = dd.Window
	}
	if cfg.Dates.MinYear == 0 {
		cfg.Dates.MinYear = dd.MinYear
	}
	if cfg.Dates.MaxYear == 0 {
		cfg.Dates.MaxYear = dd.MaxYear
	}

	if cfg.Vendor.Threshold == 0 {
		cfg.Vendor.Threshold = vendor.DefaultThreshold
	}
	if cfg.Vendor.CacheDir == "" {
		cfg.Vendor.CacheDir = DefaultCacheDir
	}
	if cfg.Vendor.CacheTTL == 0 {
		cfg.Vendor.CacheTTL = 24 * time.Hour
	}

	if cfg.Classify.HeaderChars == 0 {
		cfg.Classify.HeaderChars = classify.DefaultHeaderChars
	}
	if len(cfg.Classify.Rules) == 0 {
		cfg.Classify.Rules = classify.DefaultRules()
	}

	if cfg.Ingest.Workers == 0 {
		cfg.Ingest.Workers = 4
	}
	if cfg.Ingest.BatchSize == 0 {
		cfg.Ingest.BatchSize = 50
	}
	if cfg.Ingest.FlushInterval == 0 {
		cfg.Ingest.FlushInterval = 100 * time.Millisecond
	}
	if cfg.Ingest.SegmentLines == 0 {
		cfg.Ingest.SegmentLines = extract.DefaultSegmentLines
	}
	if cfg.Ingest.Naming == "" {
		cfg.Ingest.Naming = string(metadata.NamingEnhanced)
	}
}

// Validate checks ranges and enum values and compiles every pattern, so a
// bad rule is reported before any document is processed.
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level: %v", ErrInvalid, err)
	}
	if !logging.ValidFormat(c.Log.Format) {
		return fmt.Errorf("%w: log.format must be json or console, got %q", ErrInvalid, c.Log.Format)
	}
	switch c.Registry.Backend {
	case BackendJSON, BackendSQLite:
	default:
		return fmt.Errorf("%w: registry.backend must be json or sqlite, got %q", ErrInvalid, c.Registry.Backend)
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("%w: ingest.workers must be >= 1, got %d", ErrInvalid, c.Ingest.Workers)
	}
	if c.Ingest.BatchSize < 1 {
		return fmt.Errorf("%w: ingest.batch_size must be >= 1, got %d", ErrInvalid, c.Ingest.BatchSize)
	}
	if c.Ingest.SegmentLines < 0 {
		return fmt.Errorf("%w: ingest.segment_lines must be >= 0, got %d", ErrInvalid, c.Ingest.SegmentLines)
	}
	if c.Ingest.FlushInterval < 0 {
		return fmt.Errorf("%w: ingest.flush_interval must not be negative", ErrInvalid)
	}
	if _, err := metadata.ParseNamingFormat(c.Ingest.Naming); err != nil {
		return fmt.Errorf("%w: ingest.naming: %v", ErrInvalid, err)
	}
	if c.Vendor.CacheTTL < 0 {
		return fmt.Errorf("%w: vendor.cache_ttl must not be negative", ErrInvalid)
	}
	if c.Classify.HeaderChars < 0 {
		return fmt.Errorf("%w: classify.header_chars must be >= 0, got %d", ErrInvalid, c.Classify.HeaderChars)
	}
	if _, err := c.stages(nil); err != nil {
		return err
	}
	return nil
}
