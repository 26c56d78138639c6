package sessions

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/notekit/notemcp/internal/jsonrpc"
)

type countingHandle struct {
	closes atomic.Int32
}

func (h *countingHandle) Dispatch(ctx context.Context, req *jsonrpc.Request) (*jsonrpc.Response, error) {
	return nil, nil
}

func (h *countingHandle) Close() error {
	h.closes.Add(1)
	return nil
}

func newTestStore(t *testing.T) (*Store, *time.Time) {
	t.Helper()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewStore(nil)
	s.now = func() time.Time { return now }
	return s, &now
}

func TestStoreCreateResume(t *testing.T) {
	s, _ := newTestStore(t)
	h := &countingHandle{}

	sess := s.Create("https://app.example.com", "203.0.113.7", "bearer", "", h)
	if sess.ID == "" {
		t.Fatal("expected a session id")
	}

	got, status := s.Resume(sess.ID, "https://app.example.com", "203.0.113.7")
	if status != ResumeOK {
		t.Fatalf("expected ResumeOK, got %v", status)
	}
	if got != sess {
		t.Fatal("expected the same session value")
	}
}

func TestStoreResumeUnknown(t *testing.T) {
	s, _ := newTestStore(t)
	if _, status := s.Resume("nope", "o", "p"); status != ResumeUnknown {
		t.Fatalf("expected ResumeUnknown, got %v", status)
	}
}

func TestStoreHijackTearsDown(t *testing.T) {
	s, _ := newTestStore(t)
	h := &countingHandle{}
	sess := s.Create("https://app.example.com", "203.0.113.7", "bearer", "", h)

	_, status := s.Resume(sess.ID, "https://evil.example.com", "203.0.113.7")
	if status != ResumeHijacked {
		t.Fatalf("expected ResumeHijacked, got %v", status)
	}
	if h.closes.Load() != 1 {
		t.Fatalf("expected handle closed once, got %d", h.closes.Load())
	}

	// The id is burned: the legitimate client now gets unknown-session.
	if _, status := s.Resume(sess.ID, "https://app.example.com", "203.0.113.7"); status != ResumeUnknown {
		t.Fatalf("expected ResumeUnknown after hijack, got %v", status)
	}
}

func TestStoreHijackOnProxyMismatch(t *testing.T) {
	s, _ := newTestStore(t)
	sess := s.Create("https://app.example.com", "203.0.113.7", "bearer", "", &countingHandle{})

	if _, status := s.Resume(sess.ID, "https://app.example.com", "198.51.100.9"); status != ResumeHijacked {
		t.Fatalf("expected ResumeHijacked on proxy address change, got %v", status)
	}
}

func TestStoreRemoveIdempotent(t *testing.T) {
	s, _ := newTestStore(t)
	h := &countingHandle{}
	sess := s.Create("o", "p", "bearer", "", h)

	if !s.Remove(sess.ID) {
		t.Fatal("first remove should report true")
	}
	if s.Remove(sess.ID) {
		t.Fatal("second remove should report false")
	}
	if h.closes.Load() != 1 {
		t.Fatalf("expected handle closed once, got %d", h.closes.Load())
	}
}

func TestStoreSweep(t *testing.T) {
	s, now := newTestStore(t)
	hOld := &countingHandle{}
	hFresh := &countingHandle{}

	old := s.Create("o", "p", "bearer", "", hOld)
	*now = now.Add(10 * time.Minute)
	fresh := s.Create("o", "p", "bearer", "", hFresh)

	if n := s.Sweep(5 * time.Minute); n != 1 {
		t.Fatalf("expected one session reaped, got %d", n)
	}
	if _, status := s.Resume(old.ID, "o", "p"); status != ResumeUnknown {
		t.Fatal("idle session should be gone")
	}
	if _, status := s.Resume(fresh.ID, "o", "p"); status != ResumeOK {
		t.Fatal("fresh session should survive the sweep")
	}
	if hOld.closes.Load() != 1 {
		t.Fatal("reaped session handle should be closed")
	}
}

func TestStoreResumeRenewsIdleClock(t *testing.T) {
	s, now := newTestStore(t)
	sess := s.Create("o", "p", "bearer", "", &countingHandle{})

	*now = now.Add(4 * time.Minute)
	if _, status := s.Resume(sess.ID, "o", "p"); status != ResumeOK {
		t.Fatal("resume failed")
	}

	*now = now.Add(4 * time.Minute)
	// 8 minutes after creation but only 4 since last touch.
	if n := s.Sweep(5 * time.Minute); n != 0 {
		t.Fatalf("touched session must not be reaped, got %d", n)
	}
}
