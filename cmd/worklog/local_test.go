package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/worklog/internal/config"
	"github.com/goodtune/worklog/internal/timespan"
	"github.com/rs/zerolog"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{"12", 12, false},
		{"0", 0, true},
		{"-3", 0, true},
		{"abc", 0, true},
	}

	for _, tt := range tests {
		got, err := parseID(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("parseID(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("parseID(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestParseEnd(t *testing.T) {
	end, err := parseEnd("")
	if err != nil || end != nil {
		t.Fatalf("expected open end, got %v, %v", end, err)
	}

	end, err = parseEnd("2024-03-04T10:30:00+01:00")
	if err != nil {
		t.Fatalf("parse end: %v", err)
	}
	if want := time.Date(2024, 3, 4, 9, 30, 0, 0, time.UTC); !end.Equal(want) {
		t.Fatalf("end = %s, want %s", end, want)
	}

	if _, err := parseEnd("half past ten"); err == nil {
		t.Fatal("expected error for unparseable end")
	}
}

func TestOpenStorageBackends(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  config.StorageConfig
	}{
		{"bolt", config.StorageConfig{Type: config.StorageBolt, Path: filepath.Join(dir, "worklog.bolt")}},
		{"default", config.StorageConfig{Path: filepath.Join(dir, "default.bolt")}},
		{"sqlite", config.StorageConfig{Type: config.StorageSQLite, Path: filepath.Join(dir, "worklog.db")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store, err := openStorage(tt.cfg)
			if err != nil {
				t.Fatalf("open storage: %v", err)
			}
			defer func() { _ = store.Close() }()

			cfg := config.Defaults()
			ledger, err := newLedger(cfg, store, zerolog.Nop())
			if err != nil {
				t.Fatalf("new ledger: %v", err)
			}
			entry, err := ledger.CreateEntry(context.Background(), timespan.NewEntry{
				Date:     "2024-03-04",
				Category: "okr",
				Project:  "Platform",
				Task:     "Storage smoke test",
			})
			if err != nil {
				t.Fatalf("create entry: %v", err)
			}
			if entry.ID == 0 || entry.UUID == "" {
				t.Fatalf("expected stored entry, got %+v", entry)
			}
		})
	}

	if _, err := openStorage(config.StorageConfig{Type: "etcd"}); err == nil {
		t.Fatal("expected error for unknown storage type")
	}
}
