package telemetry

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// --- LogBuffer Tests ---

func TestLogBuffer_GetLogs_Order(t *testing.T) {
	buf := NewLogBuffer(3)
	for _, msg := range []string{"a", "b", "c", "d"} {
		buf.Add(map[string]any{"message": msg})
	}

	if buf.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", buf.Len())
	}

	logs, err := buf.GetLogs(context.Background(), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// "a" вытеснена, порядок хронологический
	want := []string{"b", "c", "d"}
	for i, w := range want {
		if logs[i]["message"] != w {
			t.Errorf("logs[%d]: expected %q, got %v", i, w, logs[i]["message"])
		}
	}

	logs, _ = buf.GetLogs(context.Background(), 2)
	if len(logs) != 2 || logs[0]["message"] != "c" || logs[1]["message"] != "d" {
		t.Errorf("expected last two entries [c d], got %v", logs)
	}
}

func TestLogBuffer_Empty(t *testing.T) {
	logs, err := NewLogBuffer(0).GetLogs(context.Background(), 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("expected no logs, got %d", len(logs))
	}
}

func TestLogBuffer_Handler(t *testing.T) {
	buf := NewLogBuffer(10)
	logger := slog.New(buf.Handler(slog.LevelInfo)).With("operation_id", "op-1")

	logger.Debug("skipped")
	logger.WithGroup("req").Info("handled", "status", 200, "error", errors.New("boom"), "took", time.Second)

	logs, _ := buf.GetLogs(context.Background(), 0)
	if len(logs) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(logs))
	}

	entry := logs[0]
	if entry["message"] != "handled" || entry["level"] != "INFO" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if entry["operation_id"] != "op-1" {
		t.Errorf("expected operation_id 'op-1', got %v", entry["operation_id"])
	}
	if entry["req.error"] != "boom" {
		t.Errorf("expected req.error 'boom', got %v", entry["req.error"])
	}
	if entry["req.took"] != "1s" {
		t.Errorf("expected req.took '1s', got %v", entry["req.took"])
	}
}

// --- TeeHandler Tests ---

func TestTeeHandler(t *testing.T) {
	buf := NewLogBuffer(10)
	var sb strings.Builder
	text := slog.NewTextHandler(&sb, &slog.HandlerOptions{Level: slog.LevelWarn})

	logger := slog.New(NewTeeHandler(text, buf.Handler(slog.LevelInfo)))
	logger.Info("info only in buffer")
	logger.Warn("both")

	if buf.Len() != 2 {
		t.Errorf("expected 2 buffered entries, got %d", buf.Len())
	}
	if strings.Contains(sb.String(), "info only") || !strings.Contains(sb.String(), "both") {
		t.Errorf("unexpected text output: %s", sb.String())
	}
}

// --- Metrics Tests ---

func TestMetrics_FetchMetrics(t *testing.T) {
	m := NewMetrics()
	m.OperationExecuted("health", "ok", 10*time.Millisecond)
	m.AckSent(true)

	lines, err := m.FetchMetrics()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var found bool
	for _, line := range lines {
		if strings.HasPrefix(line, "#") {
			t.Errorf("comment line in output: %s", line)
		}
		if strings.HasPrefix(line, `egress_agent_operations_executed_total{kind="health",status="ok"}`) {
			found = true
		}
	}
	if !found {
		t.Error("operations_executed_total sample not found")
	}
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.EventReceived("operation")
	m.OperationExecuted("health", "ok", time.Millisecond)
	m.SetQueueDepth("operations", 3)

	lines, err := m.FetchMetrics()
	if err != nil || len(lines) != 0 {
		t.Errorf("expected empty output, got %v (err %v)", lines, err)
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics()
	m.EventMalformed()

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if !strings.Contains(string(body), "egress_agent_events_malformed_total 1") {
		t.Errorf("expected malformed counter in output")
	}
}
