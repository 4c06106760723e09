//go:build darwin

package pathutil

import (
	"os"
	"syscall"
	"unsafe"
)

// ForFile returns the path currently bound to f's descriptor, which can
// differ from the name f was opened under after a rename. It returns "" when
// the path cannot be resolved.
func ForFile(f *os.File) string {
	if f == nil {
		return ""
	}
	buf := make([]byte, 1024) // MAXPATHLEN
	_, _, errno := syscall.Syscall(syscall.SYS_FCNTL, f.Fd(), uintptr(syscall.F_GETPATH), uintptr(unsafe.Pointer(&buf[0])))
	if errno != 0 {
		return ""
	}
	end := 0
	for end < len(buf) && buf[end] != 0 {
		end++
	}
	return string(buf[:end])
}
