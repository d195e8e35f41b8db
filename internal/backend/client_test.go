package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func hasStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

func newTestClient(t *testing.T, h http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewHTTPClient(Config{
		BaseURL:       srv.URL + "/",
		AgentID:       "agent-1",
		Token:         "secret",
		RetryInterval: time.Millisecond,
	})
}

// --- Request Tests ---

func TestExecuteOperation_SendsAuthHeadersAndJSON(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get(HeaderAgentID) != "agent-1" || r.Header.Get(HeaderAgentToken) != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path != "/api/v1/agent/operations/op-1/ack" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	resp, err := c.ExecuteOperation(context.Background(), AckPath("op-1"), http.MethodPost, map[string]any{"a": 1})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp["ok"] != true {
		t.Errorf("expected ok=true, got %v", resp)
	}
	if got["a"] != float64(1) {
		t.Errorf("expected payload a=1, got %v", got)
	}
}

func TestExecuteOperation_EmptyAndPlainBody(t *testing.T) {
	body := ""
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, body)
	})

	resp, err := c.ExecuteOperation(context.Background(), PathPing, http.MethodGet, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(resp) != 0 {
		t.Errorf("expected empty map, got %v", resp)
	}

	body = "pong"
	resp, err = c.ExecuteOperation(context.Background(), PathPing, http.MethodGet, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp["body"] != "pong" {
		t.Errorf("expected body=pong, got %v", resp)
	}
}

// --- Retry Tests ---

func TestExecuteOperation_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	})

	if err := c.PushResults(context.Background(), "op-1", map[string]any{"x": 1}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 calls, got %d", calls.Load())
	}
}

func TestExecuteOperation_GivesUpAfterMaxTries(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	})

	_, err := c.DownloadOperation(context.Background(), "op-1")
	if !hasStatus(err, http.StatusInternalServerError) {
		t.Fatalf("expected 500 status error, got %v", err)
	}
	if calls.Load() != defaultMaxTries {
		t.Errorf("expected %d calls, got %d", defaultMaxTries, calls.Load())
	}
}

func TestExecuteOperation_ClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad token", http.StatusForbidden)
	})

	_, err := c.ExecuteOperation(context.Background(), PathLogs, http.MethodPost, map[string]any{})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusForbidden || se.Body != "bad token" {
		t.Errorf("unexpected status error: %+v", se)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}
}

// --- Event Stream Tests ---

func TestOpenEventStream(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != PathEvents || r.Header.Get("Accept") != "text/event-stream" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, "data: {}\n\n")
	})

	rc, err := c.OpenEventStream(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close()

	data, _ := io.ReadAll(rc)
	if string(data) != "data: {}\n\n" {
		t.Errorf("unexpected stream content %q", data)
	}
}

func TestOpenEventStream_Unauthorized(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	if _, err := c.OpenEventStream(context.Background()); !hasStatus(err, http.StatusUnauthorized) {
		t.Errorf("expected 401 status error, got %v", err)
	}
}
