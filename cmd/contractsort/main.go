// Package main implements the contractsort CLI: batch classification of
// contract documents into the tracking registry, and registry queries.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/japaniel/contractsort/pkg/config"
	"github.com/japaniel/contractsort/pkg/logging"
	"github.com/japaniel/contractsort/pkg/registry"
)

var (
	// configPath is the YAML config file; empty means contractsort.yaml when present
	configPath string
	// registryPath overrides registry.path from the config
	registryPath string
	// jsonOutput switches command output from tables to JSON
	jsonOutput bool
	// version information
	version = "dev"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "contractsort",
	Short: "Classify contract documents and track their retention",
	Long: `contractsort reads extracted contract text, decides whether each document
is signed, finds its effective, expiration, renewal and review dates, matches
the vendor against a master list and assigns a document type and retention
category. Results are kept in a durable tracking registry that can be queried
by category or upcoming expiration.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./contractsort.yaml when present)")
	rootCmd.PersistentFlags().StringVar(&registryPath, "registry", "", "registry location, overriding registry.path")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")
}

// loadConfig reads the configuration and applies command line overrides.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if registryPath != "" {
		cfg.Registry.Path = registryPath
	}
	return cfg, nil
}

// newLogger builds the command logger. Logs go to stderr so stdout stays
// parseable.
func newLogger(cmd *cobra.Command, cfg *config.Config) (*zap.Logger, error) {
	logger, err := logging.NewWithWriter(cfg.Log, cmd.ErrOrStderr())
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	return logger, nil
}

// openRegistry opens the configured store and loads the registry from it.
// The returned func releases the store.
func openRegistry(ctx context.Context, cfg *config.Config, opts ...registry.Option) (*registry.Registry, func(), error) {
	store, closer, err := cfg.OpenStore()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open registry store: %w", err)
	}
	reg, err := registry.Open(ctx, store, opts...)
	if err != nil {
		closer.Close()
		return nil, nil, err
	}
	return reg, func() { closer.Close() }, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
