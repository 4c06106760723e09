//go:build !darwin && !linux

package pathutil

import "os"

// ForFile returns "" on platforms without a way to resolve a descriptor's
// current path.
func ForFile(f *os.File) string {
	return ""
}
