package main

import (
	"context"
	"fmt"

	"github.com/fatih/color"
	"github.com/goodtune/worklog/internal/timespan"
	"github.com/spf13/cobra"
)

var checkRepair bool

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check stored spans for consistency",
	Long: `Scan every log entry for overlapping spans, spans that should have been
merged, totals that disagree with their spans and more than one running span.

With --repair every entry is consolidated through the ledger.`,
	Example: `  worklog -c config.yaml check
  worklog check --repair`,
	Args: cobra.NoArgs,
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().BoolVar(&checkRepair, "repair", false, "Consolidate every entry and fix the reported problems")
	checkCmd.Flags().BoolVar(&outputJSON, "json", false, "Print JSON output")
	rootCmd.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	ledger, closeStore, err := openLedger()
	if err != nil {
		return err
	}
	defer closeStore()

	ctx := context.Background()
	report, err := ledger.Inspect(ctx)
	if err != nil {
		return fmt.Errorf("consistency scan failed: %w", err)
	}

	if outputJSON {
		if err := printJSON(report); err != nil {
			return err
		}
	} else {
		printReport(report)
	}

	if report.OK() {
		return nil
	}
	if !checkRepair {
		return fmt.Errorf("%d problem(s) found, run with --repair to fix", len(report.Findings))
	}

	if err := ledger.Consolidate(ctx); err != nil {
		return fmt.Errorf("repair failed: %w", err)
	}
	after, err := ledger.Inspect(ctx)
	if err != nil {
		return fmt.Errorf("consistency scan failed: %w", err)
	}
	if !after.OK() {
		if !outputJSON {
			printReport(after)
		}
		return fmt.Errorf("%d problem(s) remain after repair", len(after.Findings))
	}

	if !outputJSON {
		color.New(color.FgGreen, color.Bold).Println("REPAIRED")
	}
	return nil
}

// printReport prints the scan result with colors
func printReport(report *timespan.Report) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	cyan.Println("TIME SPAN CHECK")
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	fmt.Printf("Entries:  %d\n", report.Entries)
	fmt.Printf("Spans:    %d\n", report.Spans)
	fmt.Printf("Running:  %d\n", report.Open)
	fmt.Println()

	if report.OK() {
		green.Println("OK")
	}
	for _, f := range report.Findings {
		switch f.Kind {
		case timespan.FindingOverlap, timespan.FindingMultipleOpen:
			red.Printf("%-15s", f.Kind)
		default:
			yellow.Printf("%-15s", f.Kind)
		}
		if f.EntryID != 0 {
			fmt.Printf(" entry %-5d", f.EntryID)
		}
		fmt.Printf(" %s", f.Detail)
		if len(f.SpanIDs) > 0 {
			fmt.Printf(" %v", f.SpanIDs)
		}
		fmt.Println()
	}

	fmt.Println()
	cyan.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()
}
