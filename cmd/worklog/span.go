package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/goodtune/worklog/internal/api"
	"github.com/goodtune/worklog/internal/storage"
	"github.com/goodtune/worklog/internal/timespan"
	"github.com/spf13/cobra"
)

var (
	spanStart string
	spanEnd   string
	spanNew   bool
)

var spanCmd = &cobra.Command{
	Use:   "span",
	Short: "Track and edit time spans",
	Long: `Track and edit time spans. Every change is snapped to the 15 minute grid and
consolidated with nearby spans of the same entry.`,
}

var spanStartCmd = &cobra.Command{
	Use:   "start [ENTRY_ID]",
	Short: "Start or continue work on an entry",
	Long: `Start or continue work on an entry. Any other running span is closed first.

With --new a log entry is created from the entry flags and started in one step.`,
	Example: `  worklog span start 12
  worklog span start --new --project Platform --task "Incident follow-up" --category okr`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSpanStart,
}

var spanResumeCmd = &cobra.Command{
	Use:   "resume ENTRY_ID",
	Short: "Resume work on an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(args[0], func(ctx context.Context, l *timespan.Ledger, id int64) error {
			span, err := l.Resume(ctx, id)
			if err != nil {
				return err
			}
			return printSpan(span)
		})
	},
}

var spanPauseCmd = &cobra.Command{
	Use:     "pause SPAN_ID",
	Aliases: []string{"stop"},
	Short:   "Close a running span",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(args[0], func(ctx context.Context, l *timespan.Ledger, id int64) error {
			span, err := l.Pause(ctx, id)
			if err != nil {
				return err
			}
			return printSpan(span)
		})
	},
}

var spanListCmd = &cobra.Command{
	Use:   "list ENTRY_ID",
	Short: "List the consolidated spans of an entry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(args[0], func(ctx context.Context, l *timespan.Ledger, id int64) error {
			spans, err := l.Spans(ctx, id)
			if err != nil {
				return err
			}
			return printSpans(spans)
		})
	},
}

var spanActiveCmd = &cobra.Command{
	Use:   "active",
	Short: "Show the running span",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger, closeStore, err := openLedger()
		if err != nil {
			return err
		}
		defer closeStore()

		span, err := ledger.ActiveSpan(context.Background())
		if err != nil {
			return err
		}
		return printSpan(span)
	},
}

var spanCreateCmd = &cobra.Command{
	Use:     "create ENTRY_ID",
	Short:   "Record a span manually",
	Example: `  worklog span create 12 --start 2024-03-04T09:00 --end 2024-03-04T10:30`,
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(args[0], func(ctx context.Context, l *timespan.Ledger, id int64) error {
			start, err := api.ParseTimestamp(spanStart)
			if err != nil {
				return err
			}
			end, err := parseEnd(spanEnd)
			if err != nil {
				return err
			}
			span, err := l.Create(ctx, id, start, end)
			if err != nil {
				return err
			}
			return printSpan(span)
		})
	},
}

var spanUpdateCmd = &cobra.Command{
	Use:   "update SPAN_ID",
	Short: "Replace the boundaries of a span",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(args[0], func(ctx context.Context, l *timespan.Ledger, id int64) error {
			start, err := api.ParseTimestamp(spanStart)
			if err != nil {
				return err
			}
			end, err := parseEnd(spanEnd)
			if err != nil {
				return err
			}
			span, err := l.Update(ctx, id, start, end)
			if err != nil {
				return err
			}
			return printSpan(span)
		})
	},
}

var spanAdjustCmd = &cobra.Command{
	Use:   "adjust SPAN_ID HOURS",
	Short: "Move the end of a closed span by a number of hours",
	Example: `  worklog span adjust 7 0.5
  worklog span adjust 7 -- -0.25`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		delta, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("invalid hours: %s", args[1])
		}
		return withLedger(args[0], func(ctx context.Context, l *timespan.Ledger, id int64) error {
			span, err := l.Adjust(ctx, id, delta)
			if err != nil {
				return err
			}
			return printSpan(span)
		})
	},
}

var spanDeleteCmd = &cobra.Command{
	Use:   "delete SPAN_ID",
	Short: "Delete a span",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(args[0], func(ctx context.Context, l *timespan.Ledger, id int64) error {
			if err := l.Delete(ctx, id); err != nil {
				return err
			}
			fmt.Printf("Deleted span %d\n", id)
			return nil
		})
	},
}

// withLedger parses an ID argument and runs fn against a freshly opened ledger.
func withLedger(arg string, fn func(ctx context.Context, l *timespan.Ledger, id int64) error) error {
	id, err := parseID(arg)
	if err != nil {
		return err
	}
	ledger, closeStore, err := openLedger()
	if err != nil {
		return err
	}
	defer closeStore()

	return fn(context.Background(), ledger, id)
}

func runSpanStart(cmd *cobra.Command, args []string) error {
	if !spanNew {
		if len(args) != 1 {
			return fmt.Errorf("an entry ID is required unless --new is given")
		}
		return withLedger(args[0], func(ctx context.Context, l *timespan.Ledger, id int64) error {
			span, err := l.Start(ctx, id)
			if err != nil {
				return err
			}
			return printSpan(span)
		})
	}
	if len(args) != 0 {
		return fmt.Errorf("--new does not take an entry ID")
	}

	category, err := storage.ParseCategory(entryCategory)
	if err != nil {
		return err
	}
	date := entryDate
	if date == "" {
		date = today()
	}

	ledger, closeStore, err := openLedger()
	if err != nil {
		return err
	}
	defer closeStore()

	span, err := ledger.StartNew(context.Background(), timespan.NewEntry{
		Date:            date,
		Category:        category,
		Project:         entryProject,
		Task:            entryTask,
		Notes:           entryNotes,
		AdditionalHours: entryAdditional,
	})
	if err != nil {
		return err
	}
	return printSpan(span)
}

func init() {
	spanStartCmd.Flags().BoolVar(&spanNew, "new", false, "Create the entry described by the entry flags and start it")
	spanStartCmd.Flags().StringVar(&entryDate, "date", "", "Entry date (YYYY-MM-DD) - defaults to today")
	spanStartCmd.Flags().StringVar(&entryCategory, "category", string(storage.CategoryRoutineWork), "Work category")
	spanStartCmd.Flags().StringVar(&entryProject, "project", "", "Project name")
	spanStartCmd.Flags().StringVar(&entryTask, "task", "", "Task description")
	spanStartCmd.Flags().StringVar(&entryNotes, "notes", "", "Free-form notes")
	spanStartCmd.Flags().Float64Var(&entryAdditional, "additional-hours", 0, "Manually recorded hours")

	for _, c := range []*cobra.Command{spanCreateCmd, spanUpdateCmd} {
		c.Flags().StringVar(&spanStart, "start", "", "Start timestamp (RFC3339, or UTC when no zone is given)")
		c.Flags().StringVar(&spanEnd, "end", "", "End timestamp; omit for a running span")
		_ = c.MarkFlagRequired("start")
	}

	spanCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Print JSON output")
	spanCmd.AddCommand(
		spanStartCmd,
		spanResumeCmd,
		spanPauseCmd,
		spanListCmd,
		spanActiveCmd,
		spanCreateCmd,
		spanUpdateCmd,
		spanAdjustCmd,
		spanDeleteCmd,
	)
	rootCmd.AddCommand(spanCmd)
}
