package fsx

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Swappable so tests can simulate EXDEV and permission failures.
var renameFunc = os.Rename

// maxProbe bounds collision probing; reaching it means something is badly wrong.
const maxProbe = 100000

// Move relocates src to dst. It renames when possible and falls back to
// copy + remove when src and dst live on different filesystems. A failed copy
// never leaves a partial dst behind, and src is only removed after dst is synced.
func Move(src, dst string) error {
	err := renameFunc(src, dst)
	if err == nil {
		return nil
	}
	if !isEXDEV(err) {
		return err
	}
	if err := CopyFile(src, dst); err != nil {
		return fmt.Errorf("cross-device copy %q -> %q: %w", src, dst, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove source after copy %q: %w", src, err)
	}
	return nil
}

// CopyFile copies src to a new file dst. It refuses to overwrite an existing dst.
func CopyFile(src, dst string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	st, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, st.Mode().Perm())
	if err != nil {
		return err
	}
	defer func() {
		if cerr := out.Close(); cerr != nil && err == nil {
			err = cerr
		}
		if err != nil {
			_ = os.Remove(dst)
		}
	}()

	if _, err = io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}

// Exists reports whether path exists. Errors other than "not exist" are returned.
func Exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// FreeName returns name if dir/name is free, otherwise the first free
// "stem(n).ext" for n = 1, 2, ...
func FreeName(dir, name string) (string, error) {
	taken, err := Exists(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	if !taken {
		return name, nil
	}
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	for n := 1; n < maxProbe; n++ {
		candidate := fmt.Sprintf("%s(%d)%s", stem, n, ext)
		taken, err := Exists(filepath.Join(dir, candidate))
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no free name for %q in %q after %d attempts", name, dir, maxProbe)
}

// FileTimes are the timestamps captured from a source file before processing.
type FileTimes struct {
	Access time.Time
	Modify time.Time
}

// CaptureTimes reads the timestamps to reapply later. The modification time is
// used for both values, matching how scanners stamp new files.
func CaptureTimes(path string) (FileTimes, error) {
	st, err := os.Stat(path)
	if err != nil {
		return FileTimes{}, err
	}
	return FileTimes{Access: st.ModTime(), Modify: st.ModTime()}, nil
}

// Apply writes the captured times onto path.
func (t FileTimes) Apply(path string) error {
	return os.Chtimes(path, t.Access, t.Modify)
}
