package ack

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"
)

type recordingSender struct {
	mu   sync.Mutex
	sent []string
	fail map[string]bool
}

func (r *recordingSender) send(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, id)
	if r.fail[id] {
		return errors.New("backend unavailable")
	}
	return nil
}

func (r *recordingSender) Sent() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.sent)
}

// --- Sender Tests ---

func TestSender_FlushSendsPending(t *testing.T) {
	rec := &recordingSender{}
	s := New(Config{Send: rec.send})

	s.Schedule("b")
	s.Schedule("a")

	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := rec.Sent(); !slices.Equal(got, []string{"a", "b"}) {
		t.Errorf("expected acks for a, b; got %v", got)
	}
	if len(s.Pending()) != 0 {
		t.Errorf("expected no pending acks, got %v", s.Pending())
	}
}

func TestSender_CompletedSuppressesAck(t *testing.T) {
	rec := &recordingSender{}
	s := New(Config{Send: rec.send})

	s.Schedule("abc")
	s.Completed("abc")

	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rec.Sent()) != 0 {
		t.Errorf("expected no acks, got %v", rec.Sent())
	}
}

func TestSender_CompletedDuringFlushSkipsAck(t *testing.T) {
	var s *Sender
	var sent []string
	s = New(Config{Send: func(_ context.Context, id string) error {
		sent = append(sent, id)
		// результат "b" опубликован, пока отправляется ack для "a"
		if id == "a" {
			s.Completed("b")
		}
		return nil
	}})

	s.Schedule("a")
	s.Schedule("b")

	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !slices.Equal(sent, []string{"a"}) {
		t.Errorf("expected ack only for a, got %v", sent)
	}
	if len(s.Pending()) != 0 {
		t.Errorf("expected empty pending set, got %v", s.Pending())
	}
}

func TestSender_FailedAckStaysPending(t *testing.T) {
	rec := &recordingSender{fail: map[string]bool{"bad": true}}
	s := New(Config{Send: rec.send})

	s.Schedule("bad")
	s.Schedule("good")

	err := s.Flush(context.Background())
	if !errors.Is(err, ErrFlushIncomplete) {
		t.Fatalf("expected ErrFlushIncomplete, got %v", err)
	}
	if got := s.Pending(); !slices.Equal(got, []string{"bad"}) {
		t.Errorf("expected only bad pending, got %v", got)
	}

	// Следующий тик повторяет отправку.
	rec.mu.Lock()
	rec.fail = nil
	rec.mu.Unlock()

	if err := s.Flush(context.Background()); err != nil {
		t.Fatalf("unexpected error on retry: %v", err)
	}
	if len(s.Pending()) != 0 {
		t.Errorf("expected empty pending set, got %v", s.Pending())
	}
}

func TestSender_FlushEmpty(t *testing.T) {
	s := New(Config{Send: func(context.Context, string) error {
		t.Error("send must not be called for empty set")
		return nil
	}})
	if err := s.Flush(context.Background()); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestSender_StartFlushesOnTimer(t *testing.T) {
	sent := make(chan string, 1)
	s := New(Config{
		Interval: time.Second,
		Send: func(_ context.Context, id string) error {
			sent <- id
			return nil
		},
	})

	s.Schedule("abc")
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer s.Stop()

	select {
	case id := <-sent:
		if id != "abc" {
			t.Errorf("expected ack for abc, got %s", id)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("ack was not sent by the timer")
	}
}
