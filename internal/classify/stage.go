package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/joseph-ayodele/ocr-watcher/internal/common"
	"github.com/joseph-ayodele/ocr-watcher/internal/fsx"
	"github.com/joseph-ayodele/ocr-watcher/internal/ocr"
)

// Result is the outcome of classifying one document.
type Result struct {
	Source      string
	Codes       []Code
	Destination string
	Quarantined bool
	Err         error // extraction/relocation failure; quarantine was attempted
}

// Matched reports whether at least one code was found.
func (r Result) Matched() bool { return len(r.Codes) > 0 }

// Stage reads a document's text, derives its name from the codes it contains and
// files it away.
type Stage struct {
	text      ocr.TextExtractor
	relocator *Relocator
	logger    *slog.Logger
}

func NewStage(text ocr.TextExtractor, relocator *Relocator, logger *slog.Logger) *Stage {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stage{text: text, relocator: relocator, logger: logger.With("stage", "classify")}
}

// Run classifies path and relocates it. Any failure moves the file into the
// error directory instead. Run never panics and never returns without having
// decided where the file went.
func (s *Stage) Run(ctx context.Context, path string) Result {
	return s.RunWithText(ctx, path, path)
}

// RunWithText is Run with the codes read from textFrom instead of path, for
// when path is an unsearchable scan and textFrom its OCR copy.
func (s *Stage) RunWithText(ctx context.Context, path, textFrom string) Result {
	log := s.logger.With("path", path, "run_id", common.RunIDFromContext(ctx))
	if textFrom != path {
		log = log.With("text_from", textFrom)
	}
	log.Info("processing file")

	res := s.classify(ctx, path, textFrom)
	if res.Err == nil {
		if res.Matched() {
			log.Info("processed and moved file", "codes", res.Codes, "dest", res.Destination)
		} else {
			log.Info("no pattern found, moved file under original name", "dest", res.Destination)
		}
		return res
	}

	log.Error("error processing file", "error", res.Err)
	res.Destination = s.quarantine(log, path)
	res.Quarantined = res.Destination != ""
	return res
}

// classify extracts codes and moves the file into the final directory. Failures
// come back in Result.Err; the file is left where it was.
func (s *Stage) classify(ctx context.Context, path, textFrom string) (res Result) {
	res.Source = path
	defer func() {
		if r := recover(); r != nil {
			res.Err = common.NewAppError(common.CodeClassify, "panic during classification", fmt.Errorf("%w: %v", common.ErrRelocation, r))
		}
	}()

	text, err := s.text.ExtractText(ctx, textFrom)
	if err != nil {
		res.Err = common.NewAppError(common.CodeClassify, "extract text", errors.Join(common.ErrRelocation, err))
		return res
	}

	res.Codes = Extract(text)
	name := TargetName(res.Codes, filepath.Base(path))

	dst, err := s.relocator.ToFinal(path, name)
	if err != nil {
		res.Err = common.NewAppError(common.CodeClassify, "relocate", errors.Join(common.ErrRelocation, err))
		return res
	}
	res.Destination = dst
	return res
}

func (s *Stage) quarantine(log *slog.Logger, path string) string {
	exists, err := fsx.Exists(path)
	if err != nil || !exists {
		log.Error("cannot quarantine, file is gone", "error", err)
		return ""
	}
	dst, err := s.relocator.Quarantine(path)
	if err != nil {
		log.Error("quarantine failed", "error", common.NewAppError(common.CodeQuarantine, "move to error dir", err))
		return ""
	}
	log.Warn("moved file with error to error folder", "dest", dst)
	return dst
}
