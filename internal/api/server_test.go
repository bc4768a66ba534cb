package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/goodtune/worklog/internal/storage"
	"github.com/goodtune/worklog/internal/storage/bolt"
	"github.com/goodtune/worklog/internal/timespan"
	"github.com/rs/zerolog"
)

type testServer struct {
	handler http.Handler
	clock   *timespan.TestClock
}

func newTestServer(t *testing.T, origins ...string) *testServer {
	t.Helper()
	store, err := bolt.Open(filepath.Join(t.TempDir(), "worklog.bolt"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	clock := &timespan.TestClock{CurrentTime: time.Date(2024, 3, 4, 10, 0, 0, 0, time.UTC)}
	ledger, err := timespan.NewLedger(store, timespan.Config{}, clock, zerolog.Nop())
	if err != nil {
		t.Fatalf("new ledger: %v", err)
	}

	srv := NewServer(Config{ListenAddr: "127.0.0.1:0", AllowedOrigins: origins}, ledger, zerolog.Nop())
	return &testServer{handler: srv.Handler(), clock: clock}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if out != nil {
		if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
			t.Fatalf("%s %s: decode response %q: %v", method, path, rec.Body.String(), err)
		}
	}
	return rec.Code
}

func (s *testServer) createEntry(t *testing.T) storage.LogEntry {
	t.Helper()
	var entry storage.LogEntry
	code := s.do(t, "POST", "/api/v1/logs", map[string]interface{}{
		"date":     "2024-03-04",
		"category": "routine work",
		"project":  "Platform",
		"task":     "Review",
	}, &entry)
	if code != http.StatusCreated {
		t.Fatalf("create entry: status %d", code)
	}
	return entry
}

func TestStartPauseAndHours(t *testing.T) {
	s := newTestServer(t)
	entry := s.createEntry(t)
	if entry.Category != storage.CategoryRoutineWork {
		t.Fatalf("expected normalised category, got %q", entry.Category)
	}

	var span storage.TimeSpan
	if code := s.do(t, "POST", "/api/v1/timespans/start", map[string]int64{"log_entry_id": entry.ID}, &span); code != http.StatusOK {
		t.Fatalf("start: status %d", code)
	}
	if span.End != nil || span.EntryID != entry.ID {
		t.Fatalf("unexpected started span: %+v", span)
	}

	var active *storage.TimeSpan
	if code := s.do(t, "GET", "/api/v1/timespans/active", nil, &active); code != http.StatusOK {
		t.Fatalf("active: status %d", code)
	}
	if active == nil || active.ID != span.ID {
		t.Fatalf("expected span %d active, got %+v", span.ID, active)
	}

	s.clock.Advance(90 * time.Minute)
	var paused storage.TimeSpan
	if code := s.do(t, "POST", fmt.Sprintf("/api/v1/timespans/%d/pause", span.ID), nil, &paused); code != http.StatusOK {
		t.Fatalf("pause: status %d", code)
	}
	if paused.End == nil {
		t.Fatalf("expected paused span to be closed")
	}

	var got storage.LogEntry
	if code := s.do(t, "GET", fmt.Sprintf("/api/v1/logs/%d", entry.ID), nil, &got); code != http.StatusOK {
		t.Fatalf("get entry: status %d", code)
	}
	if got.Hours != 1.5 {
		t.Fatalf("expected 1.5 hours, got %v", got.Hours)
	}

	active = &storage.TimeSpan{}
	s.do(t, "GET", "/api/v1/timespans/active", nil, &active)
	if active != nil {
		t.Fatalf("expected no active span, got %+v", active)
	}
}

func TestStartNewEntryRequiresFields(t *testing.T) {
	s := newTestServer(t)

	var resp ErrorResponse
	code := s.do(t, "POST", "/api/v1/timespans/start", map[string]string{"date": "2024-03-04"}, &resp)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
	if resp.Code != http.StatusBadRequest || resp.Message == "" {
		t.Fatalf("unexpected error body: %+v", resp)
	}
}

func TestNotFoundResponses(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		method string
		path   string
		body   interface{}
	}{
		{"POST", "/api/v1/timespans/99/pause", nil},
		{"POST", "/api/v1/timespans/99/adjust", map[string]float64{"hours": 1}},
		{"PUT", "/api/v1/timespans/99", map[string]string{"start_timestamp": "2024-03-04T09:00:00Z"}},
		{"DELETE", "/api/v1/timespans/99", nil},
		{"GET", "/api/v1/logs/99", nil},
		{"GET", "/api/v1/logs/99/timespans", nil},
		{"POST", "/api/v1/logs/99/resume", nil},
		{"POST", "/api/v1/timespans/start", map[string]int64{"log_entry_id": 99}},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			var resp ErrorResponse
			if code := s.do(t, tt.method, tt.path, tt.body, &resp); code != http.StatusNotFound {
				t.Fatalf("expected 404, got %d", code)
			}
			if resp.Code != http.StatusNotFound {
				t.Fatalf("unexpected error body: %+v", resp)
			}
		})
	}
}

func TestCreateSpanNormalisesTimestamps(t *testing.T) {
	s := newTestServer(t)
	entry := s.createEntry(t)

	var raw map[string]interface{}
	code := s.do(t, "POST", fmt.Sprintf("/api/v1/logs/%d/timespans", entry.ID), map[string]string{
		"start_timestamp": "2024-03-04T08:58:00",
		"end_timestamp":   "2024-03-04T11:31:00+02:00",
	}, &raw)
	if code != http.StatusOK {
		t.Fatalf("create span: status %d", code)
	}
	if raw["start_timestamp"] != "2024-03-04T09:00:00Z" {
		t.Fatalf("unexpected start: %v", raw["start_timestamp"])
	}
	if raw["end_timestamp"] != "2024-03-04T09:30:00Z" {
		t.Fatalf("unexpected end: %v", raw["end_timestamp"])
	}

	var spans []storage.TimeSpan
	if code := s.do(t, "GET", fmt.Sprintf("/api/v1/logs/%d/timespans", entry.ID), nil, &spans); code != http.StatusOK {
		t.Fatalf("list spans: status %d", code)
	}
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
}

func TestAdditionalHoursAndUUIDLookup(t *testing.T) {
	s := newTestServer(t)
	entry := s.createEntry(t)

	var updated storage.LogEntry
	code := s.do(t, "PUT", fmt.Sprintf("/api/v1/logs/%d/additional-hours", entry.ID),
		map[string]float64{"additional_hours": 0.8}, &updated)
	if code != http.StatusOK {
		t.Fatalf("set additional hours: status %d", code)
	}
	if updated.AdditionalHours != 0.75 || updated.Hours != 0.75 {
		t.Fatalf("unexpected hours: %+v", updated)
	}

	var byUUID storage.LogEntry
	if code := s.do(t, "GET", "/api/v1/logs/uuid/"+entry.UUID, nil, &byUUID); code != http.StatusOK {
		t.Fatalf("get by uuid: status %d", code)
	}
	if byUUID.ID != entry.ID {
		t.Fatalf("expected entry %d, got %d", entry.ID, byUUID.ID)
	}

	var list struct {
		Logs  []storage.LogEntry `json:"logs"`
		Count int                `json:"count"`
	}
	if code := s.do(t, "GET", "/api/v1/logs?date=2024-03-04", nil, &list); code != http.StatusOK {
		t.Fatalf("list: status %d", code)
	}
	if list.Count != 1 {
		t.Fatalf("expected 1 entry, got %d", list.Count)
	}
}

func TestUpdateAndDeleteEntry(t *testing.T) {
	s := newTestServer(t)
	entry := s.createEntry(t)

	var span storage.TimeSpan
	if code := s.do(t, "POST", "/api/v1/timespans/start", map[string]int64{"log_entry_id": entry.ID}, &span); code != http.StatusOK {
		t.Fatalf("start: status %d", code)
	}
	s.clock.Advance(time.Hour)

	var updated storage.LogEntry
	code := s.do(t, "PUT", fmt.Sprintf("/api/v1/logs/%d", entry.ID), map[string]interface{}{
		"date":             "2024-03-05",
		"category":         "Team Contribution",
		"project":          "Billing",
		"task":             "Trace invoices",
		"status":           "In Progress",
		"additional_hours": 0.5,
	}, &updated)
	if code != http.StatusOK {
		t.Fatalf("update: status %d", code)
	}
	if updated.Date != "2024-03-05" || updated.Project != "Billing" || updated.Status != "In Progress" {
		t.Fatalf("fields not replaced: %+v", updated)
	}
	if updated.UUID != entry.UUID {
		t.Fatalf("expected uuid %s to survive update, got %s", entry.UUID, updated.UUID)
	}

	var deleted map[string]bool
	if code := s.do(t, "DELETE", fmt.Sprintf("/api/v1/logs/%d", entry.ID), nil, &deleted); code != http.StatusOK {
		t.Fatalf("delete: status %d", code)
	}
	if !deleted["deleted"] {
		t.Fatalf("unexpected delete body: %v", deleted)
	}

	if code := s.do(t, "GET", fmt.Sprintf("/api/v1/logs/%d", entry.ID), nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected deleted entry to be gone, got %d", code)
	}
	if code := s.do(t, "POST", fmt.Sprintf("/api/v1/timespans/%d/pause", span.ID), nil, nil); code != http.StatusNotFound {
		t.Fatalf("expected span to be deleted with its entry, got %d", code)
	}
	var active *storage.TimeSpan
	s.do(t, "GET", "/api/v1/timespans/active", nil, &active)
	if active != nil {
		t.Fatalf("expected no active span after delete, got %+v", active)
	}

	tests := []struct {
		method string
		path   string
		body   interface{}
		want   int
	}{
		{"PUT", "/api/v1/logs/99", map[string]string{"date": "2024-03-04", "category": "OKR", "project": "P", "task": "T"}, http.StatusNotFound},
		{"PUT", "/api/v1/logs/99", map[string]string{"date": "2024-03-04"}, http.StatusBadRequest},
		{"DELETE", "/api/v1/logs/99", nil, http.StatusNotFound},
	}
	for _, tt := range tests {
		var resp ErrorResponse
		if code := s.do(t, tt.method, tt.path, tt.body, &resp); code != tt.want {
			t.Errorf("%s %s: expected %d, got %d", tt.method, tt.path, tt.want, code)
		}
	}
}

func TestStats(t *testing.T) {
	s := newTestServer(t)

	for _, e := range []map[string]interface{}{
		{"date": "2024-03-04", "category": "OKR", "project": "P", "task": "Standup", "additional_hours": 0.5},
		{"date": "2024-03-04", "category": "OKR", "project": "P", "task": "Review", "additional_hours": 1},
		{"date": "2024-03-04", "category": "Team Contribution", "project": "P", "task": "Bug", "additional_hours": 2},
		{"date": "2024-03-06", "category": "OKR", "project": "P", "task": "Planning", "additional_hours": 0.25},
		{"date": "2024-03-09", "category": "OKR", "project": "P", "task": "Outside", "additional_hours": 4},
	} {
		if code := s.do(t, "POST", "/api/v1/logs", e, nil); code != http.StatusCreated {
			t.Fatalf("create %v: status %d", e["task"], code)
		}
	}

	var stats []timespan.DailyStat
	if code := s.do(t, "GET", "/api/v1/stats?start_date=2024-03-04&end_date=2024-03-08", nil, &stats); code != http.StatusOK {
		t.Fatalf("stats: status %d", code)
	}
	if len(stats) != 2 {
		t.Fatalf("expected 2 days, got %+v", stats)
	}
	if stats[0].Date != "2024-03-04" || stats[0].TotalHours != 3.5 {
		t.Fatalf("unexpected first day: %+v", stats[0])
	}
	if stats[0].CategoryHours[storage.CategoryOKR] != 1.5 || stats[0].CategoryHours[storage.CategoryTeamContribution] != 2 {
		t.Fatalf("unexpected category split: %v", stats[0].CategoryHours)
	}
	if stats[1].Date != "2024-03-06" || stats[1].TotalHours != 0.25 {
		t.Fatalf("unexpected second day: %+v", stats[1])
	}

	for _, path := range []string{
		"/api/v1/stats",
		"/api/v1/stats?start_date=2024-03-04",
		"/api/v1/stats?start_date=2024-03-08&end_date=2024-03-04",
		"/api/v1/stats?start_date=yesterday&end_date=2024-03-04",
	} {
		if code := s.do(t, "GET", path, nil, nil); code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", path, code)
		}
	}
}

func TestAdjustRejectsOutOfRangeHours(t *testing.T) {
	s := newTestServer(t)
	entry := s.createEntry(t)

	var span storage.TimeSpan
	if code := s.do(t, "POST", "/api/v1/timespans/start", map[string]int64{"log_entry_id": entry.ID}, &span); code != http.StatusOK {
		t.Fatalf("start: status %d", code)
	}

	var resp ErrorResponse
	code := s.do(t, "POST", fmt.Sprintf("/api/v1/timespans/%d/adjust", span.ID), map[string]float64{"hours": 3e6}, &resp)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", code)
	}
}

func TestStartReportsBindFailure(t *testing.T) {
	taken, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer taken.Close()

	srv := NewServer(Config{ListenAddr: taken.Addr().String()}, nil, zerolog.Nop())
	if err := srv.Start(); err == nil {
		_ = srv.Stop()
		t.Fatalf("expected Start to fail on %s", taken.Addr())
	}

	free := NewServer(Config{ListenAddr: "127.0.0.1:0"}, nil, zerolog.Nop())
	if err := free.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer free.Stop()
	if free.Addr() == nil {
		t.Fatalf("expected bound address")
	}
}

func TestInvalidBody(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("POST", "/api/v1/logs", bytes.NewBufferString(`{"date":`))
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}

	var resp ErrorResponse
	code := s.do(t, "POST", "/api/v1/logs", map[string]string{
		"date": "2024-03-04", "category": "Hobby", "project": "P", "task": "T",
	}, &resp)
	if code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unknown category, got %d", code)
	}
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t, "http://localhost:5173")

	req := httptest.NewRequest("OPTIONS", "/api/v1/timespans/start", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:5173" {
		t.Fatalf("unexpected allow origin %q", got)
	}
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	var status map[string]interface{}
	if code := s.do(t, "GET", "/healthz", nil, &status); code != http.StatusOK {
		t.Fatalf("expected 200, got %d", code)
	}
	if status["status"] != "ok" || status["tracking"] != false {
		t.Fatalf("unexpected health body: %v", status)
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	tests := []struct {
		in      string
		wantErr bool
	}{
		{"2024-03-04T09:00:00Z", false},
		{"2024-03-04T11:00:00+02:00", false},
		{"2024-03-04T09:00:00", false},
		{"2024-03-04T09:00:00.000000", false},
		{"2024-03-04T09:00", false},
		{"2024-03-04 09:00:00", false},
		{"09:00", true},
		{"", true},
	}

	for _, tt := range tests {
		got, err := ParseTimestamp(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTimestamp(%q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", tt.in, err)
			continue
		}
		if !got.Equal(want) || got.Location() != time.UTC {
			t.Errorf("ParseTimestamp(%q) = %s, want %s", tt.in, got, want)
		}
	}
}
