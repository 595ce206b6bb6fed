package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type gatedProcessor struct {
	release chan struct{}

	mu       sync.Mutex
	running  int
	maxSeen  int
	done     []string
	canceled int32
}

func (p *gatedProcessor) Process(ctx context.Context, path string) Outcome {
	p.mu.Lock()
	p.running++
	if p.running > p.maxSeen {
		p.maxSeen = p.running
	}
	p.mu.Unlock()

	<-p.release
	if ctx.Err() != nil {
		atomic.AddInt32(&p.canceled, 1)
	}

	p.mu.Lock()
	p.running--
	p.done = append(p.done, path)
	p.mu.Unlock()
	return Outcome{Source: path}
}

func TestDispatcher_BoundsWorkersAndDrains(t *testing.T) {
	proc := &gatedProcessor{release: make(chan struct{})}
	d := NewDispatcher(proc, 2, nil)

	ctx, cancel := context.WithCancel(context.Background())
	scheduled := make(chan struct{})
	go func() {
		for i := 0; i < 6; i++ {
			d.FileCreated(ctx, fmt.Sprintf("%d.pdf", i))
		}
		close(scheduled)
	}()

	// two run, the third FileCreated blocks
	deadline := time.After(5 * time.Second)
	for {
		proc.mu.Lock()
		running := proc.running
		proc.mu.Unlock()
		if running == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("workers never started")
		case <-time.After(time.Millisecond):
		}
	}
	select {
	case <-scheduled:
		t.Fatal("dispatch should block while all workers are busy")
	default:
	}

	close(proc.release)
	<-scheduled
	cancel()
	d.FileCreated(ctx, "late.pdf")
	if err := d.Wait(); err != nil {
		t.Fatal(err)
	}

	if len(proc.done) != 6 {
		t.Fatalf("processed %d files, want 6", len(proc.done))
	}
	if proc.maxSeen > 2 {
		t.Fatalf("saw %d concurrent runs, limit is 2", proc.maxSeen)
	}
	if proc.canceled != 0 {
		t.Fatal("in-flight runs must not see the shutdown cancellation")
	}
	for _, p := range proc.done {
		if p == "late.pdf" {
			t.Fatal("files after shutdown must be ignored")
		}
	}
}

type panicProcessor struct{}

func (panicProcessor) Process(context.Context, string) Outcome { panic("boom") }

func TestDispatcher_RecoversPanics(t *testing.T) {
	d := NewDispatcher(panicProcessor{}, 1, nil)
	d.FileCreated(context.Background(), "x.pdf")
	if err := d.Wait(); err != nil {
		t.Fatal(err)
	}
}
