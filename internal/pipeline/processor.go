package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/ocr-watcher/constants"
	"github.com/joseph-ayodele/ocr-watcher/internal/classify"
	"github.com/joseph-ayodele/ocr-watcher/internal/common"
	"github.com/joseph-ayodele/ocr-watcher/internal/ingest"
	"github.com/joseph-ayodele/ocr-watcher/internal/repository"
)

// Outcome is the end state of one pipeline run.
type Outcome struct {
	RunID       uuid.UUID
	Source      string
	OCROutput   string
	Destination string
	Codes       []classify.Code
	Status      constants.RunStatus
	Err         error
	StartedAt   time.Time
	FinishedAt  time.Time
}

// Record converts the outcome into a journal row.
func (o Outcome) Record() repository.RunRecord {
	rec := repository.RunRecord{
		ID:          o.RunID,
		Source:      o.Source,
		OCROutput:   o.OCROutput,
		Destination: o.Destination,
		Status:      o.Status,
		StartedAt:   o.StartedAt,
		FinishedAt:  o.FinishedAt,
	}
	for _, c := range o.Codes {
		rec.Codes = append(rec.Codes, string(c))
	}
	if o.Err != nil {
		rec.Error = o.Err.Error()
	}
	return rec
}

// Journal persists outcomes.
type Journal interface {
	Record(ctx context.Context, rec repository.RunRecord) error
}

// Processor coordinates the ingest stage (readiness, OCR, disposition) then
// classification. When the original is still in the input tree it is the file
// that gets filed, with its codes read from the OCR output; otherwise the OCR
// output itself is filed.
type Processor struct {
	Logger   *slog.Logger
	Ingest   *ingest.Stage
	Classify *classify.Stage
	Journal  Journal // optional

	locks keyedMutex
}

func NewProcessor(logger *slog.Logger, in *ingest.Stage, cl *classify.Stage, journal Journal) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{Logger: logger, Ingest: in, Classify: cl, Journal: journal}
}

// Process runs the whole pipeline for one file. Runs for the same path are
// serialized; different paths proceed in parallel.
func (p *Processor) Process(ctx context.Context, path string) Outcome {
	unlock := p.locks.Lock(path)
	defer unlock()

	runID := uuid.New()
	ctx = common.WithRunID(ctx, runID)
	out := Outcome{RunID: runID, Source: path, StartedAt: time.Now().UTC()}
	log := p.Logger.With("run_id", runID, "path", path)

	ir := p.Ingest.Run(ctx, path)
	out.OCROutput = ir.Output
	if !ir.OK() {
		out.Status = ir.Status
		out.Err = ir.Err
		return p.finish(ctx, log, out)
	}

	target := ir.Output
	if ir.Kept {
		target = path
	}
	cr := p.Classify.RunWithText(ctx, target, ir.Output)
	out.Codes = cr.Codes
	out.Destination = cr.Destination
	out.Err = cr.Err
	switch {
	case cr.Err != nil:
		out.Status = constants.RunStatusQuarantined
	case cr.Matched():
		out.Status = constants.RunStatusClassified
	default:
		out.Status = constants.RunStatusUnmatched
	}
	return p.finish(ctx, log, out)
}

func (p *Processor) finish(ctx context.Context, log *slog.Logger, out Outcome) Outcome {
	out.FinishedAt = time.Now().UTC()
	attrs := []any{"status", out.Status, "duration_ms", out.FinishedAt.Sub(out.StartedAt).Milliseconds()}
	if out.Destination != "" {
		attrs = append(attrs, "dest", out.Destination)
	}
	if out.Status.IsFailure() {
		log.Warn("processor.done", append(attrs, "error", out.Err)...)
	} else {
		log.Info("processor.done", attrs...)
	}

	if p.Journal != nil {
		if err := p.Journal.Record(context.WithoutCancel(ctx), out.Record()); err != nil {
			log.Error("processor.journal.failed", "error", err)
		}
	}
	return out
}

// keyedMutex hands out one mutex per key and forgets it when the last holder
// releases it.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) Lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[string]*refLock{}
	}
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

func (k *keyedMutex) size() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
