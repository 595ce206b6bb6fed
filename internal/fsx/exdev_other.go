//go:build !unix

package fsx

// Cross-device detection is unix-only; elsewhere rename errors surface as-is.
func isEXDEV(error) bool { return false }
