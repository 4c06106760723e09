// Package pathutil provides helpers for reasoning about filesystem paths and
// open descriptors.
package pathutil

import (
	"os"
	"path/filepath"
)

// ExistingAncestor returns the nearest ancestor of path that exists,
// including path itself. It walks upward until a stat succeeds; the root form
// is returned even when nothing along the path exists.
func ExistingAncestor(path string) string {
	path = filepath.Clean(path)
	for {
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(path)
		if parent == path {
			return path
		}
		path = parent
	}
}

// SameFile reports whether lhs and rhs are two names for the same file, by
// device and inode identity. Equal or empty path strings report false: the
// comparison is only meaningful for two distinct names.
func SameFile(lhs, rhs string) bool {
	if lhs == rhs || lhs == "" || rhs == "" {
		return false
	}
	li, err := os.Stat(lhs)
	if err != nil {
		return false
	}
	ri, err := os.Stat(rhs)
	if err != nil {
		return false
	}
	return os.SameFile(li, ri)
}
