package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/worklog/internal/api"
	"github.com/goodtune/worklog/internal/config"
	"github.com/goodtune/worklog/internal/storage"
	"github.com/goodtune/worklog/internal/timespan"
	"github.com/rs/zerolog"
)

var outputJSON bool

// openLedger opens storage directly for one-shot commands. With the bolt
// backend this waits for the file lock held by a running server.
func openLedger() (*timespan.Ledger, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	// Create a quiet logger for command mode
	logger := zerolog.New(os.Stderr).Level(zerolog.WarnLevel).With().Timestamp().Logger()

	store, err := openStorage(cfg.Storage)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	ledger, err := newLedger(cfg, store, logger)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}

	return ledger, func() { _ = store.Close() }, nil
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid ID: %s", s)
	}
	return id, nil
}

// parseEnd parses an optional end timestamp; empty means open.
func parseEnd(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := api.ParseTimestamp(s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printSpan(span *storage.TimeSpan) error {
	if outputJSON {
		return printJSON(span)
	}
	if span == nil {
		fmt.Println("No session running")
		return nil
	}

	green := color.New(color.FgGreen, color.Bold)
	end := "running"
	if span.End != nil {
		end = span.End.Format(time.RFC3339)
	} else {
		_, _ = green.Print("● ")
	}
	fmt.Printf("span %d  entry %d  %s -> %s", span.ID, span.EntryID, span.Start.Format(time.RFC3339), end)
	if span.End != nil {
		fmt.Printf("  (%s)", span.Duration())
	}
	fmt.Println()
	return nil
}

func printSpans(spans []storage.TimeSpan) error {
	if outputJSON {
		return printJSON(spans)
	}
	for i := range spans {
		if err := printSpan(&spans[i]); err != nil {
			return err
		}
	}
	fmt.Printf("%d span(s), %.2fh settled\n", len(spans), timespan.SettledHours(spans))
	return nil
}

func printEntry(entry *storage.LogEntry) error {
	if outputJSON {
		return printJSON(entry)
	}

	cyan := color.New(color.FgCyan, color.Bold)
	_, _ = cyan.Printf("entry %d", entry.ID)
	fmt.Printf("  %s\n", entry.UUID)
	fmt.Printf("Date:       %s\n", entry.Date)
	fmt.Printf("Category:   %s\n", entry.Category)
	fmt.Printf("Project:    %s\n", entry.Project)
	fmt.Printf("Task:       %s\n", entry.Task)
	if entry.Notes != "" {
		fmt.Printf("Notes:      %s\n", entry.Notes)
	}
	fmt.Printf("Hours:      %.2f (additional %.2f)\n", entry.Hours, entry.AdditionalHours)
	return nil
}
