package fsx

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Placer hands out free names in directories. Every caller sharing a Placer
// probes and claims under the same lock, so two files never land on one name.
type Placer struct {
	mu sync.Mutex
}

func NewPlacer() *Placer { return &Placer{} }

// Place picks the first free variant of name in dir and calls place with the
// full destination while the lock is held. dir is created when missing.
func (p *Placer) Place(dir, name string, place func(dst string) error) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %q: %w", dir, err)
	}
	free, err := FreeName(dir, name)
	if err != nil {
		return "", fmt.Errorf("probe name in %q: %w", dir, err)
	}
	dst := filepath.Join(dir, free)
	if err := place(dst); err != nil {
		return "", err
	}
	return dst, nil
}

// Reserve claims a free name in dir by creating an empty placeholder there.
// The caller owns the returned path and overwrites or removes it.
func (p *Placer) Reserve(dir, name string) (string, error) {
	return p.Place(dir, name, func(dst string) error {
		f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return fmt.Errorf("reserve %q: %w", dst, err)
		}
		return f.Close()
	})
}

// MoveInto moves src into dir under name, or name(n) when name is taken.
func (p *Placer) MoveInto(dir, src, name string) (string, error) {
	return p.Place(dir, name, func(dst string) error {
		if err := Move(src, dst); err != nil {
			return fmt.Errorf("move %q -> %q: %w", src, dst, err)
		}
		return nil
	})
}
