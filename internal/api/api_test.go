package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shaiso/egress-agent/internal/results"
)

// fakeService — Service для тестов.
type fakeService struct {
	running   bool
	reachErr  error
	operation string
	queryID   string
	queryErr  error
	lastTrace string
}

func (s *fakeService) HealthInformation(traceID string) map[string]any {
	s.lastTrace = traceID
	return map[string]any{"version": "1.0", "trace_id": traceID}
}

func (s *fakeService) RunReachabilityTest(context.Context, string) (map[string]any, error) {
	if s.reachErr != nil {
		return nil, s.reachErr
	}
	return map[string]any{"pong": true}, nil
}

func (s *fakeService) QueryCompleted(_ context.Context, operationJSON []byte, queryID string) error {
	s.operation = string(operationJSON)
	s.queryID = queryID
	return s.queryErr
}

func (s *fakeService) IsRunning() bool { return s.running }

func newTestServer(t *testing.T, svc *fakeService) *httptest.Server {
	t.Helper()
	h := NewHandler(Config{
		Service: svc,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("agent_up 1\n"))
		}),
	})
	srv := httptest.NewServer(h.Routes())
	t.Cleanup(srv.Close)
	return srv
}

func decodeRows(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body RowsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Data) != 1 || len(body.Data[0]) != 2 {
		t.Fatalf("expected one row with two columns, got %v", body.Data)
	}
	s, ok := body.Data[0][1].(string)
	if !ok {
		t.Fatalf("expected JSON string column, got %T", body.Data[0][1])
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		t.Fatalf("decode row: %v", err)
	}
	return out
}

// --- Health Tests ---

func TestHealthcheck(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	resp, err := http.Get(srv.URL + "/api/v1/test/healthcheck")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(resp.Body)
	if resp.StatusCode != http.StatusOK || buf.String() != "OK" {
		t.Errorf("expected 200 OK, got %d %q", resp.StatusCode, buf.String())
	}
}

func TestHealth_GetWithTraceID(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/api/v1/test/health?trace_id=t-1")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	if body["trace_id"] != "t-1" {
		t.Errorf("expected trace_id t-1, got %v", body)
	}
}

func TestHealth_PostRows(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	resp, err := http.Post(srv.URL+"/api/v1/test/health", "application/json", strings.NewReader(`{"data":[[0]]}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()

	if row := decodeRows(t, resp); row["version"] != "1.0" {
		t.Errorf("unexpected row: %v", row)
	}
}

func TestHealthz(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc)

	resp, _ := http.Get(srv.URL + "/healthz")
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 when stopped, got %d", resp.StatusCode)
	}

	svc.running = true
	resp, _ = http.Get(srv.URL + "/healthz")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 when running, got %d", resp.StatusCode)
	}
}

// --- Reachability Tests ---

func TestReachability(t *testing.T) {
	svc := &fakeService{}
	srv := newTestServer(t, svc)

	resp, err := http.Post(srv.URL+"/api/v1/test/reachability", "application/json", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if row := decodeRows(t, resp); row["pong"] != true {
		t.Errorf("unexpected row: %v", row)
	}
	resp.Body.Close()

	svc.reachErr = errors.New("connection refused")
	resp, _ = http.Post(srv.URL+"/api/v1/test/reachability", "application/json", nil)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", resp.StatusCode)
	}
}

// --- Query Completed Tests ---

func TestQueryCompleted(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		wantOp     string
		wantQuery  string
		queryErr   error
	}{
		{
			name:       "object operation",
			body:       `{"operation":{"operation_id":"op-1"},"query_id":"q-1"}`,
			wantStatus: http.StatusOK,
			wantOp:     `{"operation_id":"op-1"}`,
			wantQuery:  "q-1",
		},
		{
			name:       "string operation",
			body:       `{"operation":"{\"operation_id\":\"op-2\"}","query_id":"q-2"}`,
			wantStatus: http.StatusOK,
			wantOp:     `{"operation_id":"op-2"}`,
			wantQuery:  "q-2",
		},
		{
			name:       "data rows",
			body:       `{"data":[[0,"{\"operation_id\":\"op-3\"}","q-3"]]}`,
			wantStatus: http.StatusOK,
			wantOp:     `{"operation_id":"op-3"}`,
			wantQuery:  "q-3",
		},
		{name: "missing operation", body: `{"query_id":"q"}`, wantStatus: http.StatusBadRequest},
		{name: "short row", body: `{"data":[[0]]}`, wantStatus: http.StatusBadRequest},
		{name: "bad json", body: `{`, wantStatus: http.StatusBadRequest},
		{
			name:       "publisher stopped",
			body:       `{"operation":{"operation_id":"op-4"},"query_id":"q-4"}`,
			queryErr:   results.ErrStopped,
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{queryErr: tt.queryErr}
			srv := newTestServer(t, svc)

			resp, err := http.Post(srv.URL+"/api/v1/agent/query_completed", "application/json", strings.NewReader(tt.body))
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			resp.Body.Close()

			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("expected %d, got %d", tt.wantStatus, resp.StatusCode)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}
			if svc.operation != tt.wantOp || svc.queryID != tt.wantQuery {
				t.Errorf("expected %s/%s, got %s/%s", tt.wantOp, tt.wantQuery, svc.operation, svc.queryID)
			}
		})
	}
}

// --- Routing Tests ---

func TestMetricsAndNotFound(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	resp, _ := http.Get(srv.URL + "/metrics")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200 for /metrics, got %d", resp.StatusCode)
	}

	resp, _ = http.Get(srv.URL + "/api/v1/unknown")
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	h := Recovery(NewHandler(Config{}).logger)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
