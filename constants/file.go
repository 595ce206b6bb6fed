package constants

import (
	"path/filepath"
	"strings"
)

// PDFExt is the only extension the watcher reacts to (compared case-insensitively).
const PDFExt = "pdf"

// Default directory names used by the classification stage.
const (
	DefaultFinalDir = "final-output"
	DefaultErrorDir = "ERROR"
)

// MaxFilenameLength is the filename budget for classified documents, suffix included.
const MaxFilenameLength = 150

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsPDF reports whether path carries a .pdf extension in any letter case.
func IsPDF(path string) bool {
	return NormalizeExt(filepath.Ext(path)) == PDFExt
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
