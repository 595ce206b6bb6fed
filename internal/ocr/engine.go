package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"strings"
)

// Options are the per-invocation engine settings.
type Options struct {
	Deskew   bool
	Settings map[string]any // pass-through, never carries input/output keys
}

// Engine adds a text layer to in and writes the result to out. It returns the
// engine's exit status; err is non-nil only when the engine could not be run.
type Engine interface {
	OCR(ctx context.Context, in, out string, opts Options) (exitCode int, err error)
}

// OCRmyPDF drives the ocrmypdf command line.
type OCRmyPDF struct {
	bin    string
	runner Runner
	logger *slog.Logger
}

func NewOCRmyPDF(bin string, runner Runner, logger *slog.Logger) *OCRmyPDF {
	if bin == "" {
		bin = "ocrmypdf"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OCRmyPDF{bin: bin, runner: runner, logger: logger}
}

func (e *OCRmyPDF) OCR(ctx context.Context, in, out string, opts Options) (int, error) {
	args := make([]string, 0, 8)
	if opts.Deskew {
		args = append(args, "--deskew")
	}
	args = append(args, SettingsArgs(opts.Settings)...)
	// "--" so that file names starting with '-' are not read as flags
	args = append(args, "--", in, out)

	_, stderr, err := e.runner.Run(ctx, e.bin, e.logger, args...)
	code := ExitCode(err)
	if code < 0 {
		return code, fmt.Errorf("%s: %w", e.bin, err)
	}
	if code != 0 {
		e.logger.Warn("ocrmypdf returned non-zero", "exit_code", code, "stderr", truncate(strings.TrimSpace(string(stderr)), 2<<10))
	}
	return code, nil
}

// SettingsArgs renders the pass-through settings map as ocrmypdf flags. Keys are
// emitted in sorted order; snake_case keys become --kebab-case flags. true is a
// bare flag, false and null are dropped, arrays repeat the flag per element.
func SettingsArgs(settings map[string]any) []string {
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var args []string
	for _, k := range keys {
		flag := "--" + strings.ReplaceAll(strings.TrimLeft(k, "-"), "_", "-")
		args = appendSetting(args, flag, settings[k])
	}
	return args
}

func appendSetting(args []string, flag string, v any) []string {
	switch val := v.(type) {
	case nil:
		return args
	case bool:
		if val {
			args = append(args, flag)
		}
		return args
	case []any:
		for _, item := range val {
			args = appendSetting(args, flag, item)
		}
		return args
	case float64:
		return append(args, flag, strconv.FormatFloat(val, 'f', -1, 64))
	default:
		return append(args, flag, fmt.Sprint(val))
	}
}
