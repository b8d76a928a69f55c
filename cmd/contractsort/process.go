package main

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/japaniel/contractsort/pkg/extract"
	"github.com/japaniel/contractsort/pkg/ingest"
	"github.com/japaniel/contractsort/pkg/metadata"
	"github.com/japaniel/contractsort/pkg/registry"
	"github.com/japaniel/contractsort/pkg/vendor"
)

var (
	processMasterList string
	processOCR        bool
	processMetrics    string
	processSidecarDir string
)

func init() {
	rootCmd.AddCommand(processCmd)
	processCmd.Flags().StringVar(&processMasterList, "master-list", "", "vendor master list (.txt, .csv or .json), overriding vendor.master_list")
	processCmd.Flags().BoolVar(&processOCR, "ocr", false, "mark extracted text as OCR output")
	processCmd.Flags().StringVar(&processMetrics, "metrics-textfile", "", "write run metrics in node-exporter textfile format")
	processCmd.Flags().StringVar(&processSidecarDir, "sidecar-dir", "", "write one metadata JSON file per committed document into this directory")
}

// processCmd runs the batch pipeline over files and folders
var processCmd = &cobra.Command{
	Use:   "process <path|url>...",
	Short: "Classify documents and commit them to the registry",
	Long: `Classify every supported document under the given paths and commit the
records to the tracking registry. Folders are walked recursively; the name of
the folder holding a file is used as its vendor candidate. http(s) arguments
are fetched as online agreements.

A document that cannot be read is reported and skipped. A registry write
failure stops the run and exits non-zero. Processing a source that is
already registered (same path or URL as given on the command line)
updates its record in place and keeps its tracking id.

Examples:
  # Process a folder of extracted contracts (re-running updates in place)
  contractsort process ./contracts

  # Match vendors against a master list and keep sidecar files
  contractsort process --master-list vendors.csv --sidecar-dir ./metadata ./contracts

  # Export metrics for node-exporter
  contractsort process --metrics-textfile /var/lib/node_exporter/contractsort.prom ./contracts`,
	Args: cobra.MinimumNArgs(1),
	RunE: runProcess,
}

func runProcess(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if processMasterList != "" {
		cfg.Vendor.MasterList = processMasterList
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	opts := cfg.ExtractOptions(processOCR)
	inputs, err := collectInputs(args, opts)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no supported documents found")
	}

	promReg := prometheus.NewRegistry()
	metrics := ingest.NewMetrics(promReg)

	reg, closeStore, err := openRegistry(ctx, cfg, registry.WithLogger(logger), registry.WithCommitHook(metrics.CommitHook()))
	if err != nil {
		return err
	}
	defer closeStore()

	// Numbering continues from what the registry already holds, and a source
	// seen before updates its existing record.
	existing := reg.All()
	seq := metadata.NewSequencer()
	seq.Seed(existing)
	namer, err := cfg.Namer(seq)
	if err != nil {
		return err
	}
	processor, err := cfg.Processor(ctx, logger, namer, metadata.WithPrevious(metadata.PreviousBySource(existing)))
	if err != nil {
		return err
	}

	ig := ingest.NewIngester(processor, reg)
	ig.Workers = cfg.Ingest.Workers
	ig.BatchSize = cfg.Ingest.BatchSize
	ig.FlushInterval = cfg.Ingest.FlushInterval
	ig.Logger = logger
	ig.Metrics = metrics

	report, runErr := ig.Run(ctx, inputs)

	if processSidecarDir != "" {
		if err := writeSidecars(processSidecarDir, report); err != nil {
			logger.Error("failed to write sidecar files", zap.Error(err))
		}
	}
	if processMetrics != "" {
		if err := prometheus.WriteToTextfile(processMetrics, promReg); err != nil {
			logger.Error("failed to write metrics textfile", zap.String("path", processMetrics), zap.Error(err))
		}
	}

	if jsonOutput {
		if err := writeJSON(cmd.OutOrStdout(), report); err != nil {
			return err
		}
	} else {
		printReport(cmd.OutOrStdout(), report)
	}

	if runErr != nil {
		return fmt.Errorf("run stopped: %w", runErr)
	}
	if report.Failed > 0 {
		return fmt.Errorf("%d of %d documents failed", report.Failed, len(inputs))
	}
	return nil
}

// collectInputs expands folders into the supported files below them.
// Hidden files and folders are skipped. http(s) arguments are fetched.
func collectInputs(args []string, opts extract.Options) ([]ingest.Input, error) {
	var out []ingest.Input
	seen := make(map[string]bool)
	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			out = append(out, ingest.FileInput(p, opts))
		}
	}
	for _, root := range args {
		if vendor.IsRemote(root) {
			if !seen[root] {
				seen[root] = true
				out = append(out, ingest.URLInput(root, "", nil, opts))
			}
			continue
		}
		info, err := os.Stat(root)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			if !extract.Supported(root) {
				return nil, fmt.Errorf("%w: %s", extract.ErrUnsupported, root)
			}
			add(root)
			continue
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if path != root && strings.HasPrefix(d.Name(), ".") {
				if d.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if !d.IsDir() && extract.Supported(path) {
				add(path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", root, err)
		}
	}
	return out, nil
}

// writeSidecars stores each committed record as <name>.metadata.json.
func writeSidecars(dir string, report ingest.Report) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, out := range report.Outcomes {
		if !out.Committed || out.Record == nil {
			continue
		}
		name := out.TrackingID
		if out.CanonicalName != "" {
			name = strings.TrimSuffix(out.CanonicalName, filepath.Ext(out.CanonicalName))
		}
		f, err := os.Create(filepath.Join(dir, name+".metadata.json"))
		if err != nil {
			return err
		}
		err = writeJSON(f, out.Record)
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func printReport(w io.Writer, report ingest.Report) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tSTATUS\tTYPE\tNAME\tERROR")
	for _, out := range report.Outcomes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", out.Source, out.Status, out.DocumentType, out.CanonicalName, out.Error)
	}
	tw.Flush()
	fmt.Fprintf(w, "\nprocessed %d (final %d, supporting %d), failed %d, committed %d in %s\n",
		report.Processed, report.Final, report.Supporting, report.Failed, report.Committed, report.Elapsed.Round(1e6))
}
