//go:build linux

package pathutil

import (
	"fmt"
	"os"
	"strings"
)

// ForFile returns the path currently bound to f's descriptor, which can
// differ from the name f was opened under after a rename. It returns "" when
// the path cannot be resolved, including for an unlinked file.
func ForFile(f *os.File) string {
	if f == nil {
		return ""
	}
	path, err := os.Readlink(fmt.Sprintf("/proc/self/fd/%d", f.Fd()))
	if err != nil {
		return ""
	}
	if strings.HasSuffix(path, " (deleted)") {
		return ""
	}
	return path
}
