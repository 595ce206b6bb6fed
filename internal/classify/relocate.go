package classify

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/joseph-ayodele/ocr-watcher/internal/fsx"
)

// Relocator moves documents into the final and error directories. Name probing
// goes through a shared fsx.Placer, so two files can never claim the same suffix
// and nothing else holding the Placer can race them.
type Relocator struct {
	finalDir string
	errorDir string
	placer   *fsx.Placer
	logger   *slog.Logger

	move func(src, dst string) error
}

// NewRelocator builds a Relocator. A nil placer gets a private one.
func NewRelocator(finalDir, errorDir string, placer *fsx.Placer, logger *slog.Logger) *Relocator {
	if logger == nil {
		logger = slog.Default()
	}
	if placer == nil {
		placer = fsx.NewPlacer()
	}
	return &Relocator{
		finalDir: finalDir,
		errorDir: errorDir,
		placer:   placer,
		logger:   logger,
		move:     fsx.Move,
	}
}

// ToFinal moves src into the final directory under name (or name(n)).
func (r *Relocator) ToFinal(src, name string) (string, error) {
	return r.moveInto(r.finalDir, src, name)
}

// Quarantine moves src into the error directory, keeping its basename when free.
func (r *Relocator) Quarantine(src string) (string, error) {
	return r.moveInto(r.errorDir, src, filepath.Base(src))
}

func (r *Relocator) moveInto(dir, src, name string) (string, error) {
	dst, err := r.placer.Place(dir, name, func(dst string) error {
		if err := r.move(src, dst); err != nil {
			return fmt.Errorf("move %q -> %q: %w", src, dst, err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if used := filepath.Base(dst); used != name {
		r.logger.Info("target name taken, using suffix", "wanted", name, "used", used, "dir", dir)
	}
	return dst, nil
}
