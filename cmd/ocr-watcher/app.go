package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/ocr-watcher/internal/classify"
	"github.com/joseph-ayodele/ocr-watcher/internal/common"
	"github.com/joseph-ayodele/ocr-watcher/internal/fsx"
	"github.com/joseph-ayodele/ocr-watcher/internal/ingest"
	"github.com/joseph-ayodele/ocr-watcher/internal/ocr"
	"github.com/joseph-ayodele/ocr-watcher/internal/pipeline"
	"github.com/joseph-ayodele/ocr-watcher/internal/repository"
)

// app holds the wired components shared by the subcommands.
type app struct {
	cfg    common.Config
	logger *slog.Logger

	db   *repository.DB // nil when the journal is off
	runs repository.RunRepository

	text     *ocr.PDFText
	classify *classify.Stage
	proc     *pipeline.Processor
}

// loadConfig reads and validates the environment, and installs the logger.
func loadConfig() (common.Config, *slog.Logger, error) {
	cfg := common.LoadConfig()
	logger := common.NewLogger(stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		return cfg, logger, err
	}
	if cfg.OCR.OnSuccessDelete && cfg.OCR.OnSuccessArchive {
		logger.Warn("both OCR_ON_SUCCESS_DELETE and OCR_ON_SUCCESS_ARCHIVE are set; originals will be deleted")
	}
	return cfg, logger, nil
}

func newApp(ctx context.Context, cfg common.Config, logger *slog.Logger, withJournal bool) (*app, error) {
	a := &app{cfg: cfg, logger: logger}

	if withJournal && cfg.JournalEnabled() {
		db, err := repository.Open(ctx, repository.Config{
			DSN:         cfg.Journal.DSN,
			MaxConns:    int32(cfg.Watch.Workers) + 1,
			DialTimeout: 3 * time.Second,
		}, logger)
		if err != nil {
			return nil, common.WrapError(err, "open journal")
		}
		runs := repository.NewRunRepository(db, logger)
		if err := runs.Migrate(ctx); err != nil {
			db.Close(logger)
			return nil, err
		}
		a.db, a.runs = db, runs
	}

	runner := ocr.ExecRunner{}
	a.text = ocr.NewPDFText(cfg.OCR.Pdftotext, runner, logger)
	engine := ocr.NewOCRmyPDF(cfg.OCR.OCRmyPDF, runner, logger)

	placer := fsx.NewPlacer()
	relocator := classify.NewRelocator(cfg.Dirs.Final, cfg.Dirs.Error, placer, logger)
	a.classify = classify.NewStage(a.text, relocator, logger)

	gate := ingest.NewGate(cfg.Watch.Retries, cfg.Watch.PollInterval, ingest.NewPDFChecker(), logger)
	in := ingest.NewStage(gate, engine, ingest.StageConfigFromConfig(cfg), placer, logger)

	var journal pipeline.Journal
	if a.runs != nil {
		journal = a.runs
	}
	a.proc = pipeline.NewProcessor(logger, in, a.classify, journal)
	return a, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close(a.logger)
	}
}
