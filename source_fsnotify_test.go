//go:build !darwin

package pathwatch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Deleting a watched file must surface a delete even while the open
// descriptor keeps the inode alive; the kernel defers the watch's own delete
// notification until the last reference is gone, so only the parent watch can
// report it.
func TestSourceDeleteWhileDescriptorHeld(t *testing.T) {
	src, err := newEventSource()
	require.NoError(t, err)
	defer src.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0666))

	f, err := openEvent(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, src.Watch(1, path, f))

	require.NoError(t, os.Remove(path))
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-src.Events():
			require.True(t, ok, "source closed before reporting the delete")
			if ev.token == 1 && ev.flags&Delete != 0 {
				return
			}
		case <-deadline:
			t.Fatal("no delete reported while the descriptor is held open")
		}
	}
}

func TestUnwatchClosesDescriptor(t *testing.T) {
	src, err := newEventSource()
	require.NoError(t, err)
	defer src.Close()

	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0666))

	f, err := openEvent(path)
	require.NoError(t, err)
	require.NoError(t, src.Watch(1, path, f))

	src.Unwatch(1, path, f)
	require.ErrorIs(t, f.Close(), os.ErrClosed)
}
