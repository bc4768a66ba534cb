package main

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/worklog/internal/storage"
	"github.com/goodtune/worklog/internal/timespan"
	"github.com/spf13/cobra"
)

var (
	entryDate       string
	entryCategory   string
	entryProject    string
	entryTask       string
	entryNotes      string
	entryStatus     string
	entryAdditional float64

	statsFrom string
	statsTo   string
)

var entryCmd = &cobra.Command{
	Use:   "entry",
	Short: "Manage log entries",
}

var entryCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a log entry",
	Example: `  worklog entry create --project Platform --task "Code review" --category okr
  worklog entry create --date 2024-03-04 --project Support --task Triage --category "routine work"`,
	Args: cobra.NoArgs,
	RunE: runEntryCreate,
}

var entryShowCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show a log entry",
	Args:  cobra.ExactArgs(1),
	RunE:  runEntryShow,
}

var entryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the log entries of a day",
	Args:  cobra.NoArgs,
	RunE:  runEntryList,
}

var entryHoursCmd = &cobra.Command{
	Use:   "hours ID HOURS",
	Short: "Set the manual additional hours of a log entry",
	Args:  cobra.ExactArgs(2),
	RunE:  runEntryHours,
}

var entryUpdateCmd = &cobra.Command{
	Use:   "update ID",
	Short: "Edit the fields of a log entry",
	Long: `Edit the fields of a log entry. Only the flags given are changed;
the hours are recomputed from the entry's spans.`,
	Example: `  worklog entry update 12 --task "Release notes" --category "team contribution"`,
	Args:    cobra.ExactArgs(1),
	RunE:    runEntryUpdate,
}

var entryDeleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Delete a log entry and all of its spans",
	Args:  cobra.ExactArgs(1),
	RunE:  runEntryDelete,
}

var statsCmd = &cobra.Command{
	Use:     "stats",
	Short:   "Show hours per day and category",
	Example: `  worklog stats --from 2024-03-01 --to 2024-03-31`,
	Args:    cobra.NoArgs,
	RunE:    runStats,
}

func init() {
	entryCreateCmd.Flags().StringVar(&entryDate, "date", "", "Entry date (YYYY-MM-DD) - defaults to today")
	entryCreateCmd.Flags().StringVar(&entryCategory, "category", string(storage.CategoryRoutineWork), "Work category")
	entryCreateCmd.Flags().StringVar(&entryProject, "project", "", "Project name (required)")
	entryCreateCmd.Flags().StringVar(&entryTask, "task", "", "Task description (required)")
	entryCreateCmd.Flags().StringVar(&entryNotes, "notes", "", "Free-form notes")
	entryCreateCmd.Flags().Float64Var(&entryAdditional, "additional-hours", 0, "Manually recorded hours")

	entryCreateCmd.Flags().StringVar(&entryStatus, "status", storage.StatusCompleted, "Entry status")

	entryUpdateCmd.Flags().StringVar(&entryDate, "date", "", "Entry date (YYYY-MM-DD)")
	entryUpdateCmd.Flags().StringVar(&entryCategory, "category", "", "Work category")
	entryUpdateCmd.Flags().StringVar(&entryProject, "project", "", "Project name")
	entryUpdateCmd.Flags().StringVar(&entryTask, "task", "", "Task description")
	entryUpdateCmd.Flags().StringVar(&entryNotes, "notes", "", "Free-form notes")
	entryUpdateCmd.Flags().StringVar(&entryStatus, "status", "", "Entry status")
	entryUpdateCmd.Flags().Float64Var(&entryAdditional, "additional-hours", 0, "Manually recorded hours")

	entryListCmd.Flags().StringVar(&entryDate, "date", "", "Entry date (YYYY-MM-DD) - defaults to today")

	statsCmd.Flags().StringVar(&statsFrom, "from", "", "First day (YYYY-MM-DD) - defaults to today")
	statsCmd.Flags().StringVar(&statsTo, "to", "", "Last day (YYYY-MM-DD) - defaults to --from")
	statsCmd.Flags().BoolVar(&outputJSON, "json", false, "Print JSON output")

	entryCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "Print JSON output")
	entryCmd.AddCommand(entryCreateCmd, entryShowCmd, entryListCmd, entryHoursCmd, entryUpdateCmd, entryDeleteCmd)
	rootCmd.AddCommand(entryCmd, statsCmd)
}

func today() string {
	return time.Now().UTC().Format(timespan.DateLayout)
}

func runEntryCreate(cmd *cobra.Command, args []string) error {
	ledger, closeStore, err := openLedger()
	if err != nil {
		return err
	}
	defer closeStore()

	date := entryDate
	if date == "" {
		date = today()
	}
	category, err := storage.ParseCategory(entryCategory)
	if err != nil {
		return err
	}

	entry, err := ledger.CreateEntry(context.Background(), timespan.NewEntry{
		Date:            date,
		Category:        category,
		Project:         entryProject,
		Task:            entryTask,
		Status:          entryStatus,
		Notes:           entryNotes,
		AdditionalHours: entryAdditional,
	})
	if err != nil {
		return err
	}
	return printEntry(entry)
}

func runEntryShow(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	ledger, closeStore, err := openLedger()
	if err != nil {
		return err
	}
	defer closeStore()

	entry, err := ledger.Entry(context.Background(), id)
	if err != nil {
		return err
	}
	return printEntry(entry)
}

func runEntryList(cmd *cobra.Command, args []string) error {
	ledger, closeStore, err := openLedger()
	if err != nil {
		return err
	}
	defer closeStore()

	date := entryDate
	if date == "" {
		date = today()
	}
	entries, err := ledger.EntriesByDate(context.Background(), date)
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(entries)
	}

	total := 0.0
	for i := range entries {
		fmt.Printf("%4d  %-22s %-20s %-30s %6.2fh\n",
			entries[i].ID, entries[i].Category, entries[i].Project, entries[i].Task, entries[i].Hours)
		total += entries[i].Hours
	}
	fmt.Printf("%d entr(ies) on %s, %.2fh total\n", len(entries), date, total)
	return nil
}

func runEntryHours(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	var hours float64
	if _, err := fmt.Sscanf(args[1], "%g", &hours); err != nil {
		return fmt.Errorf("invalid hours: %s", args[1])
	}

	ledger, closeStore, err := openLedger()
	if err != nil {
		return err
	}
	defer closeStore()

	entry, err := ledger.SetAdditionalHours(context.Background(), id, hours)
	if err != nil {
		return err
	}
	return printEntry(entry)
}

// entryEdits overlays the changed update flags on the current entry.
func entryEdits(cmd *cobra.Command, current *storage.LogEntry) timespan.NewEntry {
	n := timespan.NewEntry{
		Date:            current.Date,
		Category:        current.Category,
		Project:         current.Project,
		Task:            current.Task,
		Status:          current.Status,
		Notes:           current.Notes,
		AdditionalHours: current.AdditionalHours,
	}
	flags := cmd.Flags()
	if flags.Changed("date") {
		n.Date = entryDate
	}
	if flags.Changed("category") {
		n.Category = storage.Category(entryCategory)
	}
	if flags.Changed("project") {
		n.Project = entryProject
	}
	if flags.Changed("task") {
		n.Task = entryTask
	}
	if flags.Changed("status") {
		n.Status = entryStatus
	}
	if flags.Changed("notes") {
		n.Notes = entryNotes
	}
	if flags.Changed("additional-hours") {
		n.AdditionalHours = entryAdditional
	}
	return n
}

func runEntryUpdate(cmd *cobra.Command, args []string) error {
	return withLedger(args[0], func(ctx context.Context, l *timespan.Ledger, id int64) error {
		current, err := l.Entry(ctx, id)
		if err != nil {
			return err
		}
		entry, err := l.UpdateEntry(ctx, id, entryEdits(cmd, current))
		if err != nil {
			return err
		}
		return printEntry(entry)
	})
}

func runEntryDelete(cmd *cobra.Command, args []string) error {
	return withLedger(args[0], func(ctx context.Context, l *timespan.Ledger, id int64) error {
		if err := l.DeleteEntry(ctx, id); err != nil {
			return err
		}
		if outputJSON {
			return printJSON(map[string]bool{"deleted": true})
		}
		fmt.Printf("Deleted entry %d\n", id)
		return nil
	})
}

func runStats(cmd *cobra.Command, args []string) error {
	from := statsFrom
	if from == "" {
		from = today()
	}
	to := statsTo
	if to == "" {
		to = from
	}

	ledger, closeStore, err := openLedger()
	if err != nil {
		return err
	}
	defer closeStore()

	stats, err := ledger.Stats(context.Background(), from, to)
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(stats)
	}

	total := 0.0
	for _, day := range stats {
		fmt.Printf("%s  %6.2fh\n", day.Date, day.TotalHours)
		for _, category := range storage.Categories {
			if hours, ok := day.CategoryHours[category]; ok {
				fmt.Printf("    %-22s %6.2fh\n", category, hours)
			}
		}
		total += day.TotalHours
	}
	fmt.Printf("%d day(s) from %s to %s, %.2fh total\n", len(stats), from, to, total)
	return nil
}
