package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/japaniel/contractsort/pkg/classify"
	"github.com/japaniel/contractsort/pkg/dates"
	"github.com/japaniel/contractsort/pkg/metadata"
	"github.com/japaniel/contractsort/pkg/registry"
)

// errNotFound is returned by query get for an unknown tracking id.
var errNotFound = errors.New("record not found")

var queryMonths int

func init() {
	rootCmd.AddCommand(queryCmd)
	rootCmd.AddCommand(summaryCmd)

	queryCmd.AddCommand(queryExpiringCmd)
	queryCmd.AddCommand(queryCategoryCmd)
	queryCmd.AddCommand(queryGetCmd)

	queryExpiringCmd.Flags().IntVar(&queryMonths, "months", 6, "look-ahead window in calendar months")
}

// queryCmd is the parent command for registry queries
var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Query the tracking registry",
	Long:  `Read-only queries against the tracking registry.`,
}

// queryExpiringCmd lists documents expiring soon
var queryExpiringCmd = &cobra.Command{
	Use:   "expiring",
	Short: "List documents expiring within a number of months",
	Long: `List every document whose expiration date falls between today and today
plus the given number of months, inclusive, ordered by expiration date.
Documents without an expiration date are never listed.

Examples:
  contractsort query expiring
  contractsort query expiring --months 12 --json`,
	Args: cobra.NoArgs,
	RunE: runQueryExpiring,
}

// queryCategoryCmd lists documents in a retention category
var queryCategoryCmd = &cobra.Command{
	Use:   "category <LONG_TERM|SHORT_TERM|INDEFINITE|TIED_TO_PARENT>",
	Short: "List documents in a retention category",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueryCategory,
}

// queryGetCmd prints one record
var queryGetCmd = &cobra.Command{
	Use:   "get <tracking-id>",
	Short: "Print the record for a tracking id",
	Args:  cobra.ExactArgs(1),
	RunE:  runQueryGet,
}

// summaryCmd prints registry statistics
var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Print registry statistics",
	Long: `Print the number of tracked documents per retention category, type and
status, with the earliest and latest expiration dates.`,
	Args: cobra.NoArgs,
	RunE: runSummary,
}

func runQueryExpiring(cmd *cobra.Command, args []string) error {
	reg, done, err := readRegistry(cmd)
	if err != nil {
		return err
	}
	defer done()

	found, err := reg.QueryExpiringWithin(queryMonths)
	if err != nil {
		return err
	}
	if jsonOutput {
		if found == nil {
			found = []registry.Expiring{}
		}
		return writeJSON(cmd.OutOrStdout(), found)
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "EXPIRES\tDAYS\tSTATUS\tTYPE\tVENDOR\tSOURCE")
	for _, e := range found {
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%s\n",
			e.Expiration, e.DaysUntil, e.Status, e.Record.DocumentType, e.Record.Vendor.Name(), e.Record.SourceName)
	}
	tw.Flush()
	fmt.Fprintf(cmd.OutOrStdout(), "\n%d document(s) expiring within %d month(s)\n", len(found), queryMonths)
	return nil
}

func runQueryCategory(cmd *cobra.Command, args []string) error {
	cat, err := classify.ParseCategory(args[0])
	if err != nil {
		return err
	}
	reg, done, err := readRegistry(cmd)
	if err != nil {
		return err
	}
	defer done()

	recs := reg.QueryByCategory(cat)
	sort.Slice(recs, func(i, j int) bool { return recs[i].SourceName < recs[j].SourceName })
	if jsonOutput {
		if recs == nil {
			recs = []metadata.Record{}
		}
		return writeJSON(cmd.OutOrStdout(), recs)
	}
	printRecords(cmd.OutOrStdout(), recs, reg.Today())
	return nil
}

func runQueryGet(cmd *cobra.Command, args []string) error {
	reg, done, err := readRegistry(cmd)
	if err != nil {
		return err
	}
	defer done()

	rec, ok := reg.Get(args[0])
	if !ok {
		return fmt.Errorf("%w: %s", errNotFound, args[0])
	}
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), rec)
	}
	printRecord(cmd.OutOrStdout(), rec)
	return nil
}

func runSummary(cmd *cobra.Command, args []string) error {
	reg, done, err := readRegistry(cmd)
	if err != nil {
		return err
	}
	defer done()

	s := reg.Summary()
	if jsonOutput {
		return writeJSON(cmd.OutOrStdout(), s)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Total documents: %d\n", s.TotalDocuments)
	fmt.Fprintf(w, "With expiration: %d\n", s.DocumentsWithExpiration)
	if s.EarliestExpiration != nil {
		fmt.Fprintf(w, "Expirations:     %s to %s\n", s.EarliestExpiration, s.LatestExpiration)
	}
	fmt.Fprintln(w)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tCOUNT\tEARLIEST\tLATEST")
	for _, cat := range classify.Categories() {
		cs, ok := s.ByCategory[cat]
		if !ok {
			continue
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", cat, cs.Count, dateOrDash(cs.EarliestExpiration), dateOrDash(cs.LatestExpiration))
	}
	tw.Flush()
	fmt.Fprintln(w)

	tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TYPE\tCOUNT")
	for _, t := range classify.DocTypes() {
		if n := s.ByType[t]; n > 0 {
			fmt.Fprintf(tw, "%s\t%d\n", t, n)
		}
	}
	tw.Flush()
	fmt.Fprintf(w, "\nfinal %d, supporting %d\n", s.ByStatus[metadata.StatusFinal], s.ByStatus[metadata.StatusSupporting])
	return nil
}

// readRegistry opens the registry for a read-only command.
func readRegistry(cmd *cobra.Command) (*registry.Registry, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	return openRegistry(cmd.Context(), cfg, registry.WithLogger(logger))
}

func printRecords(w io.Writer, recs []metadata.Record, today dates.Date) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TRACKING ID\tSTATUS\tTYPE\tVENDOR\tEXPIRES\tSOURCE")
	for _, rec := range recs {
		exp := "-"
		if d, ok := rec.Expiration(); ok {
			exp = d.String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", rec.TrackingID, rec.Status, rec.DocumentType, rec.Vendor.Name(), exp, rec.SourceName)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d document(s) as of %s\n", len(recs), today)
}

func dateOrDash(d *dates.Date) string {
	if d == nil {
		return "-"
	}
	return d.String()
}
