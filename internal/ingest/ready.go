package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

// Checker decides whether a file can be opened as a complete document.
type Checker interface {
	Check(path string) error
}

// CheckerFunc adapts a plain function to Checker.
type CheckerFunc func(path string) error

func (f CheckerFunc) Check(path string) error { return f(path) }

var pdfcpuOnce sync.Once

// PDFChecker validates the PDF structure with pdfcpu. A file that is still being
// written fails validation because its trailer and xref are not there yet.
type PDFChecker struct {
	conf *model.Configuration
}

func NewPDFChecker() *PDFChecker {
	pdfcpuOnce.Do(func() {
		// keep pdfcpu from creating a config dir under $HOME
		model.ConfigPath = "disable"
	})
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFChecker{conf: conf}
}

func (c *PDFChecker) Check(path string) error {
	return api.ValidateFile(path, c.conf)
}

// Gate waits for a file to become readable, retrying a bounded number of times.
type Gate struct {
	retries  int
	interval time.Duration
	checker  Checker
	logger   *slog.Logger
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewGate(retries int, interval time.Duration, checker Checker, logger *slog.Logger) *Gate {
	if retries < 1 {
		retries = 1
	}
	if checker == nil {
		checker = NewPDFChecker()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		retries:  retries,
		interval: interval,
		checker:  checker,
		logger:   logger,
		sleep:    sleepCtx,
	}
}

// Ready reports whether path passed the checker within the retry budget. There
// is no sleep after the last attempt, and cancellation ends the wait early.
func (g *Gate) Ready(ctx context.Context, path string) bool {
	for attempt := 1; attempt <= g.retries; attempt++ {
		err := g.checker.Check(path)
		if err == nil {
			if attempt > 1 {
				g.logger.Debug("file ready", "path", path, "attempt", attempt)
			}
			return true
		}
		g.logger.Debug("file not ready yet", "path", path, "attempt", attempt, "error", err)
		if attempt == g.retries {
			break
		}
		if err := g.sleep(ctx, g.interval); err != nil {
			g.logger.Info("readiness wait cancelled", "path", path)
			return false
		}
	}
	g.logger.Warn("file never became ready", "path", path, "retries", g.retries)
	return false
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
