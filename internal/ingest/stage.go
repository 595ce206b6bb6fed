package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joseph-ayodele/ocr-watcher/constants"
	"github.com/joseph-ayodele/ocr-watcher/internal/common"
	"github.com/joseph-ayodele/ocr-watcher/internal/fsx"
	"github.com/joseph-ayodele/ocr-watcher/internal/ocr"
)

// Disposition is what happens to the original after a successful OCR pass.
type Disposition int

const (
	Leave Disposition = iota
	Delete
	Archive
)

func (d Disposition) String() string {
	switch d {
	case Delete:
		return "delete"
	case Archive:
		return "archive"
	default:
		return "leave"
	}
}

// DispositionFor picks the post-OCR action; delete wins over archive.
func DispositionFor(onDelete, onArchive bool) Disposition {
	switch {
	case onDelete:
		return Delete
	case onArchive:
		return Archive
	default:
		return Leave
	}
}

type StageConfig struct {
	OutputDir   string
	YearMonth   bool
	ArchiveDir  string
	Disposition Disposition
	Options     ocr.Options
}

// StageConfigFromConfig maps the process configuration onto the ingest stage.
func StageConfigFromConfig(cfg common.Config) StageConfig {
	return StageConfig{
		OutputDir:   cfg.Dirs.Output,
		YearMonth:   cfg.Dirs.OutputYearMonth,
		ArchiveDir:  cfg.Dirs.Archive,
		Disposition: DispositionFor(cfg.OCR.OnSuccessDelete, cfg.OCR.OnSuccessArchive),
		Options:     ocr.Options{Deskew: cfg.OCR.Deskew, Settings: cfg.OCR.Settings},
	}
}

// Result is the outcome of the ingest stage for one file. Status is empty when
// OCR succeeded and classification should follow.
type Result struct {
	Source   string
	Output   string
	ExitCode int
	Status   constants.RunStatus
	Err      error
	// Kept is set when the original is still at Source after the stage.
	Kept bool
}

// OK reports whether OCR produced an output file.
func (r Result) OK() bool { return r.Err == nil }

// Stage waits for a new file, runs OCR on it and disposes of the original.
type Stage struct {
	gate   *Gate
	engine ocr.Engine
	cfg    StageConfig
	placer *fsx.Placer
	logger *slog.Logger
	now    func() time.Time
}

// NewStage builds the ingest stage. Output and archive names are claimed through
// placer; pass the one the classify stage uses. A nil placer gets a private one.
func NewStage(gate *Gate, engine ocr.Engine, cfg StageConfig, placer *fsx.Placer, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	if placer == nil {
		placer = fsx.NewPlacer()
	}
	return &Stage{
		gate:   gate,
		engine: engine,
		cfg:    cfg,
		placer: placer,
		logger: logger.With("stage", "ingest"),
		now:    time.Now,
	}
}

// OutputDir is the directory OCR results go to right now.
func (s *Stage) OutputDir() string {
	if !s.cfg.YearMonth {
		return s.cfg.OutputDir
	}
	now := s.now()
	return filepath.Join(s.cfg.OutputDir, fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", int(now.Month())))
}

// ReserveOutput claims the output path for src. It is the basename of src, or
// basename(n) when an earlier result or a concurrent run holds that name.
func (s *Stage) ReserveOutput(src string) (string, error) {
	return s.placer.Reserve(s.OutputDir(), filepath.Base(src))
}

func (s *Stage) Run(ctx context.Context, path string) Result {
	log := s.logger.With("path", path, "run_id", common.RunIDFromContext(ctx))
	res := Result{Source: path, Kept: true}

	if !s.gate.Ready(ctx, path) {
		log.Warn("file could not be loaded, skipping")
		res.Status = constants.RunStatusNotReady
		res.Err = common.NewAppError(common.CodeNotReady, "file never became a readable pdf", common.ErrNotReady)
		return res
	}

	times, err := fsx.CaptureTimes(path)
	if err != nil {
		res.Status = constants.RunStatusNotReady
		res.Err = common.NewAppError(common.CodeNotReady, "stat source", errors.Join(common.ErrNotReady, err))
		return res
	}

	out, err := s.ReserveOutput(path)
	if err != nil {
		res.Status = constants.RunStatusOCRFailed
		res.Err = common.NewAppError(common.CodeOCRFailed, "prepare output", errors.Join(common.ErrOCREngine, err))
		return res
	}
	res.Output = out

	log.Info("running ocr", "output", out)
	start := time.Now()
	code, err := s.engine.OCR(ctx, path, out, s.cfg.Options)
	res.ExitCode = code
	if err != nil || code != 0 {
		cause := err
		if cause == nil {
			cause = fmt.Errorf("exit code %d", code)
		}
		log.Error("ocr failed", "exit_code", code, "error", cause)
		s.release(log, out)
		res.Output = ""
		res.Status = constants.RunStatusOCRFailed
		res.Err = common.NewAppError(common.CodeOCRFailed, "ocr engine", errors.Join(common.ErrOCREngine, cause))
		return res
	}
	log.Info("ocr done", "output", out, "duration_ms", time.Since(start).Milliseconds())

	if err := times.Apply(out); err != nil {
		log.Warn("could not restore timestamps on output", "error", err)
	}
	res.Kept = !s.dispose(log, path, times)
	return res
}

// release drops a reserved output that the engine never filled.
func (s *Stage) release(log *slog.Logger, out string) {
	st, err := os.Stat(out)
	if err != nil || st.Size() != 0 {
		return
	}
	if err := os.Remove(out); err != nil {
		log.Warn("could not release reserved output", "output", out, "error", err)
	}
}

// dispose handles the original after a successful OCR pass and reports whether
// it left Source. Failures here are logged only; the output already exists and
// classification goes on.
func (s *Stage) dispose(log *slog.Logger, path string, times fsx.FileTimes) bool {
	switch s.cfg.Disposition {
	case Delete:
		if err := os.Remove(path); err != nil {
			log.Error("could not delete original", "error", err)
			return false
		}
		log.Info("deleted original")
		return true
	case Archive:
		dst, err := s.placer.MoveInto(s.cfg.ArchiveDir, path, filepath.Base(path))
		if err != nil {
			log.Error("could not archive original", "error", err)
			return false
		}
		if err := times.Apply(dst); err != nil {
			log.Warn("could not restore timestamps on archive copy", "error", err)
		}
		log.Info("archived original", "dest", dst)
		return true
	default:
		return false
	}
}
