package ocr

import (
	"context"
	"fmt"
	"log/slog"
)

// TextExtractor returns the plain text of a page-oriented document.
type TextExtractor interface {
	ExtractText(ctx context.Context, path string) (string, error)
}

// PDFText extracts text with poppler's pdftotext.
type PDFText struct {
	bin    string
	runner Runner
	logger *slog.Logger
}

func NewPDFText(bin string, runner Runner, logger *slog.Logger) *PDFText {
	if bin == "" {
		bin = "pdftotext"
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PDFText{bin: bin, runner: runner, logger: logger}
}

// ExtractText returns the pdftotext output unchanged. Code matching depends on
// the exact spacing, so nothing is collapsed here.
func (p *PDFText) ExtractText(ctx context.Context, path string) (string, error) {
	// pdftotext -layout -enc UTF-8 -eol unix <path> -
	out, errb, err := p.runner.Run(ctx, p.bin, p.logger, "-layout", "-enc", "UTF-8", "-eol", "unix", path, "-")
	if err != nil {
		return "", fmt.Errorf("%s: %w: %s", p.bin, err, truncate(string(errb), 1<<10))
	}
	return string(out), nil
}
