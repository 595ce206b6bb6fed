package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joseph-ayodele/ocr-watcher/constants"
	"github.com/joseph-ayodele/ocr-watcher/internal/classify"
	"github.com/joseph-ayodele/ocr-watcher/internal/export"
	"github.com/joseph-ayodele/ocr-watcher/internal/ingest"
	"github.com/joseph-ayodele/ocr-watcher/internal/pipeline"
	"github.com/joseph-ayodele/ocr-watcher/internal/repository"
	"github.com/joseph-ayodele/ocr-watcher/internal/server"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "ocr-watcher",
		Short: "Watch a directory for scanned PDFs, OCR them and file them by reference code",
		Long: `ocr-watcher watches OCR_INPUT_DIRECTORY for new PDF files, adds a text layer
with ocrmypdf, reads the text back with pdftotext and files the result under the
reference codes it contains. All settings come from OCR_* environment variables.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runWatch,
	}
	root.AddCommand(
		&cobra.Command{
			Use:   "watch",
			Short: "Watch the input directory until interrupted (default)",
			Args:  cobra.NoArgs,
			RunE:  runWatch,
		},
		newProcessCmd(),
		newClassifyCmd(),
		newCodesCmd(),
		newReportCmd(),
	)
	return root
}

func runWatch(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger, true)
	if err != nil {
		logger.Error("startup failed", "error", err)
		return err
	}
	defer a.close()

	if err := os.MkdirAll(cfg.Dirs.Input, 0o755); err != nil {
		logger.Error("cannot create input directory", "dir", cfg.Dirs.Input, "error", err)
		return err
	}

	disp := pipeline.NewDispatcher(a.proc, cfg.Watch.Workers, logger)
	w := ingest.NewWatcher(cfg.Dirs.Input, cfg.Watch.UsePolling, cfg.Watch.PollInterval, logger)

	logger.Info("starting ocr-watcher",
		"input", cfg.Dirs.Input,
		"output", cfg.Dirs.Output,
		"final", cfg.Dirs.Final,
		"polling", cfg.Watch.UsePolling,
		"workers", cfg.Watch.Workers,
		"journal", a.runs != nil,
	)

	g, gctx := errgroup.WithContext(ctx)
	var health *server.Health
	if cfg.Server.HealthAddr != "" {
		health = server.NewHealth(logger)
		g.Go(func() error { return health.ListenAndServe(gctx, cfg.Server.HealthAddr) })
	}
	g.Go(func() error {
		if health != nil {
			health.SetServing(true)
			defer health.SetServing(false)
		}
		return w.Watch(gctx, disp)
	})

	werr := g.Wait()
	logger.Info("shutting down, waiting for files in progress")
	_ = disp.Wait()
	if werr != nil {
		logger.Error("watcher stopped with error", "error", werr)
		return werr
	}
	logger.Info("stopped")
	return nil
}

func newProcessCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "process <file-or-dir>...",
		Short: "Run the full pipeline once for the given PDFs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger, true)
			if err != nil {
				return err
			}
			defer a.close()

			paths, err := expandPDFs(args)
			if err != nil {
				return err
			}

			var (
				mu     sync.Mutex
				failed int
				out    = cmd.OutOrStdout()
			)
			var g errgroup.Group
			g.SetLimit(cfg.Watch.Workers)
			for _, p := range paths {
				g.Go(func() error {
					o := a.proc.Process(cmd.Context(), p)
					mu.Lock()
					defer mu.Unlock()
					if o.Status.IsFailure() {
						failed++
					}
					fmt.Fprintf(out, "%s\t%s\t%s\n", o.Status, o.Source, o.Destination)
					return nil
				})
			}
			_ = g.Wait()
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(paths))
			}
			return nil
		},
	}
}

func newClassifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "classify <file>...",
		Short: "Rename and file already-OCRed PDFs by the codes they contain",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer a.close()

			failed := 0
			for _, p := range args {
				res := a.classify.Run(cmd.Context(), p)
				status := constants.RunStatusUnmatched
				switch {
				case res.Err != nil:
					status = constants.RunStatusQuarantined
					failed++
				case res.Matched():
					status = constants.RunStatusClassified
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", status, p, res.Destination)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		},
	}
}

func newCodesCmd() *cobra.Command {
	var showName bool
	cmd := &cobra.Command{
		Use:   "codes [file]",
		Short: "Print the normalized codes found in a PDF or text file (stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, logger, false)
			if err != nil {
				return err
			}
			defer a.close()

			text, err := readText(cmd.Context(), a, cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			codes := classify.Extract(text)
			out := cmd.OutOrStdout()
			if showName {
				base := "document.pdf"
				if len(args) == 1 {
					base = filepath.Base(args[0])
				}
				fmt.Fprintln(out, classify.TargetName(codes, base))
				return nil
			}
			for _, c := range codes {
				fmt.Fprintln(out, c)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showName, "name", false, "print the file name the codes map to instead")
	return cmd
}

func readText(ctx context.Context, a *app, stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 {
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	if constants.IsPDF(args[0]) {
		return a.text.ExtractText(ctx, args[0])
	}
	b, err := os.ReadFile(args[0])
	return string(b), err
}

func newReportCmd() *cobra.Command {
	var (
		outPath string
		limit   int
		status  string
	)
	cmd := &cobra.Command{
		Use:   "report",
		Short: "Export the processing journal to an XLSX workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := loadConfig()
			if err != nil {
				return err
			}
			if !cfg.JournalEnabled() {
				return fmt.Errorf("journal is disabled (OCR_JOURNAL_DSN=%q)", cfg.Journal.DSN)
			}
			a, err := newApp(cmd.Context(), cfg, logger, true)
			if err != nil {
				return err
			}
			defer a.close()

			opts := repository.ListOptions{Limit: limit, Status: constants.RunStatus(strings.ToUpper(status))}
			b, err := export.NewService(a.runs, logger).ExportRunsXLSX(cmd.Context(), opts)
			if err != nil {
				return err
			}
			if err := os.WriteFile(outPath, b, 0o644); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", outPath)
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "ocr-report.xlsx", "output workbook path")
	cmd.Flags().IntVar(&limit, "limit", 0, "only the newest N runs (0 = all)")
	cmd.Flags().StringVar(&status, "status", "", "only runs with this status")
	return cmd
}

// expandPDFs replaces directories with the PDFs below them.
func expandPDFs(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		st, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !st.IsDir() {
			paths = append(paths, arg)
			continue
		}
		if err := ingest.WalkPDFs(arg, func(p string) error {
			paths = append(paths, p)
			return nil
		}); err != nil {
			return nil, err
		}
	}
	return paths, nil
}
