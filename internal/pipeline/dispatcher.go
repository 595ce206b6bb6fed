package pipeline

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// FileProcessor runs the pipeline for a single path.
type FileProcessor interface {
	Process(ctx context.Context, path string) Outcome
}

// Dispatcher turns watcher events into pipeline runs on a bounded set of
// goroutines. FileCreated blocks while all workers are busy.
type Dispatcher struct {
	proc   FileProcessor
	logger *slog.Logger
	g      errgroup.Group
}

func NewDispatcher(proc FileProcessor, workers int, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if workers < 1 {
		workers = 1
	}
	d := &Dispatcher{proc: proc, logger: logger}
	d.g.SetLimit(workers)
	return d
}

// FileCreated schedules path. Once ctx is done no new work is accepted; work
// already scheduled runs to completion with cancellation detached.
func (d *Dispatcher) FileCreated(ctx context.Context, path string) {
	if ctx.Err() != nil {
		d.logger.Info("shutting down, ignoring file", "path", path)
		return
	}
	runCtx := context.WithoutCancel(ctx)
	d.g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				d.logger.Error("pipeline panicked", "path", path, "panic", r)
			}
		}()
		d.proc.Process(runCtx, path)
		return nil
	})
}

// Wait blocks until every scheduled run has finished.
func (d *Dispatcher) Wait() error {
	return d.g.Wait()
}
