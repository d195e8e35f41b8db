package events

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shaiso/egress-agent/internal/mq"
)

// --- Decode Tests ---

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr bool
		check   func(t *testing.T, ev Event)
	}{
		{
			name: "operation",
			data: `{"operation_id":"abc","path":"/api/v1/test/health","operation":{"trace_id":"t1"}}`,
			check: func(t *testing.T, ev Event) {
				if !ev.IsOperation() || ev.OperationID != "abc" || ev.Path != "/api/v1/test/health" {
					t.Errorf("unexpected event: %+v", ev)
				}
				if ev.Operation["trace_id"] != "t1" {
					t.Errorf("expected trace_id t1, got %v", ev.Operation)
				}
			},
		},
		{
			name: "control",
			data: `{"type":"push_metrics"}`,
			check: func(t *testing.T, ev Event) {
				if ev.IsOperation() || ev.Type != TypePushMetrics {
					t.Errorf("unexpected event: %+v", ev)
				}
			},
		},
		{name: "bad json", data: `{"operation_id":`, wantErr: true},
		{name: "array", data: `[1,2]`, wantErr: true},
		{name: "null", data: `null`, wantErr: true},
		{name: "no shape", data: `{"foo":"bar"}`, wantErr: true},
		{name: "operation not object", data: `{"operation_id":"a","operation":"x"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ev, err := Decode([]byte(tt.data))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformed) {
					t.Fatalf("expected ErrMalformed, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, ev)
		})
	}
}

// --- ReadStream Tests ---

func TestReadStream(t *testing.T) {
	stream := ": keepalive\n" +
		"data: {\"type\":\"push_metrics\"}\n" +
		"\n" +
		"event: operation\n" +
		"data: {\"operation_id\":\"a\",\n" +
		"data:\"path\":\"p\"}\n" +
		"\n" +
		":\n" +
		"data: tail"

	var got []string
	if err := ReadStream(strings.NewReader(stream), func(data []byte) {
		got = append(got, string(data))
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		`{"type":"push_metrics"}`,
		"{\"operation_id\":\"a\",\n\"path\":\"p\"}",
		"tail",
	}
	if len(got) != len(want) {
		t.Fatalf("expected %d events, got %d: %q", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}

func TestReadStream_SkipsEmptyData(t *testing.T) {
	stream := "data:\n\n" +
		"data: \n\n" +
		"data: {\"type\":\"push_metrics\"}\n\n"

	var got []string
	if err := ReadStream(strings.NewReader(stream), func(data []byte) {
		got = append(got, string(data))
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 1 || got[0] != `{"type":"push_metrics"}` {
		t.Errorf("expected only the push_metrics event, got %q", got)
	}
}

// --- SSE Receiver Tests ---

// fakeOpener отдаёт заранее заданные потоки, затем ошибку.
type fakeOpener struct {
	mu      sync.Mutex
	streams []string
	opened  int
}

func (f *fakeOpener) OpenEventStream(ctx context.Context) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opened++
	if len(f.streams) == 0 {
		return nil, errors.New("connection refused")
	}
	s := f.streams[0]
	f.streams = f.streams[1:]
	return io.NopCloser(strings.NewReader(s)), nil
}

func (f *fakeOpener) openedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened
}

func TestSSEReceiver_ReconnectsAfterDisconnect(t *testing.T) {
	opener := &fakeOpener{streams: []string{
		"data: {\"type\":\"push_metrics\"}\n\n",
		"data: {\"operation_id\":\"abc\",\"path\":\"/x\"}\n\n",
	}}
	r := NewSSEReceiver(SSEConfig{
		Opener:          opener,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan string, 4)
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, func(_ context.Context, data []byte) {
			received <- string(data)
		})
	}()

	for i := 0; i < 2; i++ {
		select {
		case <-received:
		case <-time.After(2 * time.Second):
			t.Fatalf("timeout waiting for event %d", i)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for opener.openedCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if opener.openedCount() < 3 {
		t.Errorf("expected reconnect attempts after failures, got %d opens", opener.openedCount())
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

// --- Client Tests ---

// chanReceiver доставляет тела из канала.
type chanReceiver struct {
	ch chan []byte
}

func (r *chanReceiver) Name() string { return "test" }

func (r *chanReceiver) Run(ctx context.Context, deliver DeliverFunc) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data := <-r.ch:
			deliver(ctx, data)
		}
	}
}

func TestClient_DeliversAndDropsMalformed(t *testing.T) {
	recv := &chanReceiver{ch: make(chan []byte)}
	c := NewClient(ClientConfig{Receiver: recv})

	got := make(chan Event, 4)
	if err := c.Start(context.Background(), func(_ context.Context, ev Event) {
		if ev.OperationID == "boom" {
			panic("handler failure")
		}
		got <- ev
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer c.Stop()

	recv.ch <- []byte("not json")
	recv.ch <- []byte(`{"operation_id":"boom","path":"/x"}`)
	recv.ch <- []byte(`{"operation_id":"abc","path":"/x"}`)

	select {
	case ev := <-got:
		if ev.OperationID != "abc" {
			t.Errorf("expected abc, got %s", ev.OperationID)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout: loop did not survive malformed event and panic")
	}
}

func TestClient_StartStopCycles(t *testing.T) {
	recv := &chanReceiver{ch: make(chan []byte)}
	c := NewClient(ClientConfig{Receiver: recv})

	for i := 0; i < 3; i++ {
		if err := c.Start(context.Background(), func(context.Context, Event) {}); err != nil {
			t.Fatalf("cycle %d: unexpected error: %v", i, err)
		}
		if err := c.Start(context.Background(), func(context.Context, Event) {}); !errors.Is(err, ErrAlreadyStarted) {
			t.Errorf("cycle %d: expected ErrAlreadyStarted, got %v", i, err)
		}
		c.Stop()
	}
	c.Stop()
}

// --- AMQP Receiver Tests ---

type fakeConsumer struct {
	bodies [][]byte
	acked  atomic.Int32
}

func (f *fakeConsumer) Run(ctx context.Context, handler mq.Handler) error {
	for _, b := range f.bodies {
		if err := handler(ctx, b); err == nil {
			f.acked.Add(1)
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestAMQPReceiver_AcksEveryDelivery(t *testing.T) {
	consumer := &fakeConsumer{bodies: [][]byte{
		[]byte(`{"type":"push_metrics"}`),
		[]byte(`garbage`),
	}}
	r := NewAMQPReceiver(consumer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var delivered atomic.Int32
	done := make(chan error, 1)
	go func() {
		done <- r.Run(ctx, func(context.Context, []byte) { delivered.Add(1) })
	}()

	deadline := time.Now().Add(2 * time.Second)
	for consumer.acked.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-done

	if delivered.Load() != 2 || consumer.acked.Load() != 2 {
		t.Errorf("expected 2 delivered and acked, got %d/%d", delivered.Load(), consumer.acked.Load())
	}
}
