package auditlog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLineFormat(t *testing.T) {
	dir := t.TempDir()
	l, err := New("sys-1", dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	fixed := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }

	l.Info("tool call kb_search args={\"query\":\"x\"}", "203.0.113.7", "10.0.0.2")
	l.Flush()

	b, err := os.ReadFile(filepath.Join(dir, "2026-08-29_sys-1.log"))
	if err != nil {
		t.Fatal(err)
	}
	line := strings.TrimSpace(string(b))
	want := "2026-08-29T12:00:00Z [INFO] H:203.0.113.7 S:10.0.0.2 - tool call kb_search args={\"query\":\"x\"}"
	if line != want {
		t.Fatalf("line mismatch:\n got %q\nwant %q", line, want)
	}
}

func TestBufferSizeFlush(t *testing.T) {
	dir := t.TempDir()
	l, err := New("sys-1", dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	// Interval flush must not fire during the test.
	l.flushInterval = time.Hour

	for i := 0; i < defaultBufferSize-1; i++ {
		l.Info("line", "h", "s")
	}
	if _, err := os.Stat(filepath.Join(dir, l.fileName())); !os.IsNotExist(err) {
		t.Fatal("buffer should not have flushed yet")
	}

	l.Info("line", "h", "s")
	b, err := os.ReadFile(filepath.Join(dir, l.fileName()))
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(b), "\n"); got != defaultBufferSize {
		t.Fatalf("expected %d lines, got %d", defaultBufferSize, got)
	}
}

func TestIntervalFlush(t *testing.T) {
	dir := t.TempDir()
	l, err := New("sys-1", dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	l.flushInterval = 20 * time.Millisecond

	l.Info("lone line", "h", "s")

	deadline := time.Now().Add(2 * time.Second)
	for {
		if b, err := os.ReadFile(filepath.Join(dir, l.fileName())); err == nil && len(b) > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("interval flush never happened")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestCleanOldLogs(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "2020-01-01_sys-1.log")
	if err := os.WriteFile(stale, []byte("old\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	fresh := filepath.Join(dir, time.Now().UTC().Format("2006-01-02")+"_sys-1.log")
	if err := os.WriteFile(fresh, []byte("new\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := New("sys-1", dir, nil); err != nil {
		t.Fatal(err)
	}

	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("stale file should have been removed")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatal("fresh file should survive cleanup")
	}
}

func TestCloseDropsFurtherLines(t *testing.T) {
	dir := t.TempDir()
	l, err := New("sys-1", dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	l.Info("kept", "h", "s")
	l.Close()
	l.Info("dropped", "h", "s")
	l.Flush()

	b, err := os.ReadFile(filepath.Join(dir, l.fileName()))
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "dropped") {
		t.Fatal("line after Close must be dropped")
	}
}
