package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type sleepRecorder struct {
	calls []time.Duration
	err   error
}

func (r *sleepRecorder) sleep(_ context.Context, d time.Duration) error {
	r.calls = append(r.calls, d)
	return r.err
}

func failingChecker(failures int) (Checker, *int) {
	attempts := 0
	return CheckerFunc(func(string) error {
		attempts++
		if attempts <= failures {
			return errors.New("truncated")
		}
		return nil
	}), &attempts
}

func TestGate_ReadyOnThirdAttempt(t *testing.T) {
	checker, attempts := failingChecker(2)
	g := NewGate(5, time.Second, checker, nil)
	rec := &sleepRecorder{}
	g.sleep = rec.sleep

	if !g.Ready(context.Background(), "x.pdf") {
		t.Fatal("want ready")
	}
	if *attempts != 3 {
		t.Fatalf("attempts = %d, want 3", *attempts)
	}
	if len(rec.calls) != 2 {
		t.Fatalf("slept %d times, want 2", len(rec.calls))
	}
	for _, d := range rec.calls {
		if d != time.Second {
			t.Fatalf("slept %v, want 1s", d)
		}
	}
}

func TestGate_GivesUpWithoutTrailingSleep(t *testing.T) {
	checker, attempts := failingChecker(100)
	g := NewGate(5, time.Second, checker, nil)
	rec := &sleepRecorder{}
	g.sleep = rec.sleep

	if g.Ready(context.Background(), "x.pdf") {
		t.Fatal("want not ready")
	}
	if *attempts != 5 {
		t.Fatalf("attempts = %d, want 5", *attempts)
	}
	if len(rec.calls) != 4 {
		t.Fatalf("slept %d times, want 4", len(rec.calls))
	}
}

func TestGate_CancelledWhileWaiting(t *testing.T) {
	checker, attempts := failingChecker(100)
	g := NewGate(5, time.Hour, checker, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if g.Ready(ctx, "x.pdf") {
		t.Fatal("want not ready")
	}
	if *attempts != 1 {
		t.Fatalf("attempts = %d, want 1", *attempts)
	}
}

func TestGate_ZeroRetriesStillChecksOnce(t *testing.T) {
	checker, attempts := failingChecker(0)
	g := NewGate(0, time.Second, checker, nil)
	if !g.Ready(context.Background(), "x.pdf") || *attempts != 1 {
		t.Fatalf("attempts = %d", *attempts)
	}
}

func TestPDFChecker_RejectsIncompleteFiles(t *testing.T) {
	dir := t.TempDir()
	c := NewPDFChecker()

	if err := c.Check(filepath.Join(dir, "missing.pdf")); err == nil {
		t.Fatal("missing file must not be ready")
	}

	partial := filepath.Join(dir, "partial.pdf")
	if err := os.WriteFile(partial, []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := c.Check(partial); err == nil {
		t.Fatal("half-written pdf must not be ready")
	}
}
