package ingest

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/joseph-ayodele/ocr-watcher/constants"
)

// Handler receives newly created PDF files. It may block; the native watcher
// keeps reading events into a queue while it does.
type Handler interface {
	FileCreated(ctx context.Context, path string)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, path string)

func (f HandlerFunc) FileCreated(ctx context.Context, path string) { f(ctx, path) }

// Watcher reports PDFs created under a directory tree until ctx is done.
type Watcher interface {
	Watch(ctx context.Context, h Handler) error
}

// NewWatcher returns the polling watcher when usePolling is set, otherwise the
// native one.
func NewWatcher(root string, usePolling bool, interval time.Duration, logger *slog.Logger) Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	if usePolling {
		return &PollWatcher{Root: root, Interval: interval, logger: logger.With("watcher", "poll")}
	}
	return &FSWatcher{Root: root, logger: logger.With("watcher", "fsnotify")}
}

// WalkPDFs calls fn for every visible PDF under root. Hidden directories are
// skipped entirely.
func WalkPDFs(root string, fn func(path string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			// vanished between readdir and stat
			if errors.Is(walkErr, fs.ErrNotExist) {
				return nil
			}
			return walkErr
		}
		if path != root && constants.IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() || !constants.IsPDF(path) {
			return nil
		}
		return fn(path)
	})
}

// FSWatcher uses inotify/kqueue/ReadDirectoryChangesW through fsnotify.
type FSWatcher struct {
	Root   string
	logger *slog.Logger

	started func()            // test hook, runs once the tree is being watched
	queued  func(path string) // test hook, runs after a path is queued
}

func (w *FSWatcher) Watch(ctx context.Context, h Handler) error {
	if w.logger == nil {
		w.logger = slog.Default()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.logger.Error("failed to create fsnotify watcher", "error", err)
		return err
	}
	defer func() {
		if err := fw.Close(); err != nil {
			w.logger.Warn("closing fsnotify watcher", "error", err)
		}
	}()

	if err := w.addTree(fw, w.Root, nil); err != nil {
		w.logger.Error("failed to add root directory", "root", w.Root, "error", err)
		return err
	}

	q := newPathQueue()
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		q.deliver(ctx, stop, h)
	}()
	defer wg.Wait()
	defer close(stop)

	enqueue := func(p string) {
		q.push(p)
		if w.queued != nil {
			w.queued(p)
		}
	}

	w.logger.Info("watching", "root", w.Root)
	if w.started != nil {
		w.started()
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case e, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !e.Has(fsnotify.Create) || constants.IsHidden(e.Name) {
				continue
			}
			st, err := os.Stat(e.Name)
			if err != nil {
				continue
			}
			if st.IsDir() {
				// a directory moved in brings its files without events of their own
				if err := w.addTree(fw, e.Name, enqueue); err != nil {
					w.logger.Warn("failed to add new directory to watcher", "path", e.Name, "error", err)
				}
				continue
			}
			if constants.IsPDF(e.Name) {
				w.logger.Debug("file created", "path", e.Name)
				enqueue(e.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				w.logger.Error("kernel event queue overflowed, new files may have been missed", "root", w.Root, "error", err)
				continue
			}
			w.logger.Error("watcher error", "error", err)
		}
	}
}

// pathQueue is an unbounded FIFO between the event loop and a slow handler.
type pathQueue struct {
	mu    sync.Mutex
	items []string
	ready chan struct{}
}

func newPathQueue() *pathQueue {
	return &pathQueue{ready: make(chan struct{}, 1)}
}

func (q *pathQueue) push(p string) {
	q.mu.Lock()
	q.items = append(q.items, p)
	q.mu.Unlock()
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

func (q *pathQueue) pop() (string, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return "", false
	}
	p := q.items[0]
	q.items = q.items[1:]
	return p, true
}

// deliver hands queued paths to h in order until stop is closed or ctx is done.
// Paths still queued at that point are dropped.
func (q *pathQueue) deliver(ctx context.Context, stop <-chan struct{}, h Handler) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-q.ready:
		}
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			default:
			}
			p, ok := q.pop()
			if !ok {
				break
			}
			h.FileCreated(ctx, p)
		}
	}
}

// addTree watches dir and every visible directory below it. When emit is set,
// PDFs already present are reported as well.
func (w *FSWatcher) addTree(fw *fsnotify.Watcher, dir string, emit func(string)) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if path != dir && constants.IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return fw.Add(path)
		}
		if emit != nil && d.Type().IsRegular() && constants.IsPDF(path) {
			emit(path)
		}
		return nil
	})
}

// PollWatcher rescans the tree every Interval. Files present when Watch starts
// are never reported.
type PollWatcher struct {
	Root     string
	Interval time.Duration
	logger   *slog.Logger
}

func (w *PollWatcher) Watch(ctx context.Context, h Handler) error {
	if w.logger == nil {
		w.logger = slog.Default()
	}
	interval := w.Interval
	if interval <= 0 {
		interval = time.Second
	}
	seen, err := w.snapshot()
	if err != nil {
		w.logger.Error("initial scan failed", "root", w.Root, "error", err)
		return err
	}
	w.logger.Info("polling", "root", w.Root, "interval", interval, "existing", len(seen))
	return w.poll(ctx, h, interval, seen)
}

func (w *PollWatcher) poll(ctx context.Context, h Handler, interval time.Duration, seen map[string]struct{}) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			current, err := w.snapshot()
			if err != nil {
				w.logger.Error("scan failed", "root", w.Root, "error", err)
				continue
			}
			for p := range current {
				if _, ok := seen[p]; !ok {
					w.logger.Debug("file created", "path", p)
					h.FileCreated(ctx, p)
				}
			}
			// forget removed files so a later file with the same name is new again
			seen = current
		}
	}
}

func (w *PollWatcher) snapshot() (map[string]struct{}, error) {
	set := map[string]struct{}{}
	err := WalkPDFs(w.Root, func(p string) error {
		set[p] = struct{}{}
		return nil
	})
	return set, err
}
