package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/japaniel/contractsort/pkg/dates"
	"github.com/japaniel/contractsort/pkg/ingest"
	"github.com/japaniel/contractsort/pkg/metadata"
	"github.com/japaniel/contractsort/pkg/vendor"
)

var (
	classifyVendor     string
	classifyMasterList string
	classifyOCR        bool
)

func init() {
	rootCmd.AddCommand(classifyCmd)
	classifyCmd.Flags().StringVar(&classifyVendor, "vendor", "", "raw vendor name (default: the name of the file's folder)")
	classifyCmd.Flags().StringVar(&classifyMasterList, "master-list", "", "vendor master list, overriding vendor.master_list")
	classifyCmd.Flags().BoolVar(&classifyOCR, "ocr", false, "mark extracted text as OCR output")
}

// classifyCmd analyzes one document without touching the registry
var classifyCmd = &cobra.Command{
	Use:   "classify <file|url>",
	Short: "Analyze a single document without recording it",
	Long: `Run the signature, date, vendor and type analysis on one document and print
the resulting metadata record. The registry is not opened or modified.

Examples:
  contractsort classify ./contracts/Acme/msa.txt
  contractsort classify --vendor "Acme Corp" --json draft.html
  contractsort classify --vendor Globex https://globex.example.com/legal/terms`,
	Args: cobra.ExactArgs(1),
	RunE: runClassify,
}

func runClassify(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if classifyMasterList != "" {
		cfg.Vendor.MasterList = classifyMasterList
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	namer, err := cfg.Namer(nil)
	if err != nil {
		return err
	}
	processor, err := cfg.Processor(cmd.Context(), logger, namer)
	if err != nil {
		return err
	}

	opts := cfg.ExtractOptions(classifyOCR)
	in := ingest.FileInput(args[0], opts)
	if vendor.IsRemote(args[0]) {
		in = ingest.URLInput(args[0], "", nil, opts)
	}
	if classifyVendor != "" {
		in.VendorHint = classifyVendor
	}
	text, err := in.Load(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}
	if text.IsEmpty() {
		logger.Warn("no text extracted", zap.String("document", args[0]))
	}
	rec, err := processor.Process(cmd.Context(), ingest.Document{Name: in.Name, Text: text, VendorHint: in.VendorHint})
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), rec)
	}
	printRecord(cmd.OutOrStdout(), rec)
	return nil
}

func printRecord(w io.Writer, rec metadata.Record) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Source:\t%s\n", rec.SourceName)
	fmt.Fprintf(tw, "Tracking ID:\t%s\n", rec.TrackingID)
	fmt.Fprintf(tw, "Status:\t%s (%s)\n", rec.Status, rec.Signature.Reason)
	fmt.Fprintf(tw, "Type:\t%s\n", rec.DocumentType)
	fmt.Fprintf(tw, "Retention:\t%s (review required: %t)\n", rec.Category(), rec.Classification.DestructionReviewRequired)
	fmt.Fprintf(tw, "Vendor:\t%s [%s, score %d]\n", rec.Vendor.Name(), rec.Vendor.Method, rec.Vendor.Score)
	for _, k := range dates.Kinds() {
		if d, ok := rec.Dates[k]; ok {
			fmt.Fprintf(tw, "%s:\t%s (%s)\n", k, d.Value, d.Confidence)
		}
	}
	if rec.CanonicalName != "" {
		fmt.Fprintf(tw, "Canonical name:\t%s\n", rec.CanonicalName)
	}
	tw.Flush()
}
